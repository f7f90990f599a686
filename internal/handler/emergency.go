package handlers

import (
	"net/http"
	"strings"

	"Travault/internal/emergency"
	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/pkg/errors"
	"Travault/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) handleRaiseEmergency(c *gin.Context) {
	var in emergency.RaiseInput
	if !bindJSON(c, &in) {
		return
	}
	user := models.CurrentUser(c)
	res, err := h.emergency.RaiseEmergency(c.Request.Context(), user.ID, in)
	if err != nil {
		// 报告已保存，但通知或状态更新失败
		if res != nil {
			msg := "Server error"
			if errors.GetCode(err) == errors.CodeDispatch {
				msg = errors.GetMessage(err)
			}
			response.AbortWithStatus(c, http.StatusInternalServerError, msg, gin.H{"emergencyId": res.ReportID})
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, "Emergency alert sent successfully", gin.H{
		"emergencyId":       res.ReportID,
		"estimatedResponse": res.EstimatedResponse,
	})
}

type contactsQuery struct {
	Country   string   `form:"country"`
	Latitude  *float64 `form:"latitude"`
	Longitude *float64 `form:"longitude"`
}

func (h *Handlers) handleEmergencyContacts(c *gin.Context) {
	var q contactsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, "Invalid query parameters", nil)
		return
	}
	country := strings.ToUpper(strings.TrimSpace(q.Country))
	if country == "" {
		country = models.CurrentUser(c).Country
	}
	var p *geo.Point
	if q.Latitude != nil && q.Longitude != nil {
		p = &geo.Point{Lon: *q.Longitude, Lat: *q.Latitude}
	}
	contacts, err := h.proximity.FindNearbyContacts(c.Request.Context(), country, p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "", gin.H{"country": country, "contacts": contacts})
}

func (h *Handlers) handleEmergencyServices(c *gin.Context) {
	country, services, err := emergency.Services(c.Param("country"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "", gin.H{
		"country":      country,
		"services":     services,
		"instructions": emergency.Instructions,
	})
}

func (h *Handlers) handleCheckIn(c *gin.Context) {
	var in emergency.CheckInInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.emergency.CheckIn(c.Request.Context(), models.CurrentUser(c).ID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.EmergencyID != "" {
		response.Success(c, "Emergency check-in recorded. Help is being arranged.", gin.H{
			"emergencyId": res.EmergencyID,
			"checkIn":     res.CheckIn,
		})
		return
	}
	response.Success(c, "Safety check-in recorded successfully", gin.H{"checkIn": res.CheckIn})
}

func (h *Handlers) handleListReports(c *gin.Context) {
	var in emergency.ListInput
	if err := c.ShouldBindQuery(&in); err != nil {
		response.Fail(c, "Invalid query parameters", nil)
		return
	}
	reports, page, err := h.emergency.ListReports(c.Request.Context(), models.CurrentUser(c).ID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "", gin.H{"reports": reports, "pagination": page})
}

func (h *Handlers) handleGetReport(c *gin.Context) {
	report, err := h.emergency.GetReport(c.Request.Context(), models.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "", gin.H{"report": report})
}

func (h *Handlers) handleUpdateReport(c *gin.Context) {
	var in emergency.UpdateReportInput
	if !bindJSON(c, &in) {
		return
	}
	report, err := h.emergency.UpdateReport(c.Request.Context(), models.CurrentUser(c).ID, c.Param("id"), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "Emergency report updated successfully", gin.H{"report": report})
}

func (h *Handlers) handleAddReportUpdate(c *gin.Context) {
	var in emergency.AddUpdateInput
	if !bindJSON(c, &in) {
		return
	}
	update, err := h.emergency.AddUpdate(c.Request.Context(), models.CurrentUser(c).ID, c.Param("id"), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Report update added", gin.H{"update": update})
}
