package handlers

import (
	"Travault/internal/models"
	"Travault/internal/proximity"
	"Travault/internal/safety"
	"Travault/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) handleListAlerts(c *gin.Context) {
	var q proximity.AlertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, "Invalid query parameters", nil)
		return
	}
	alerts, err := h.proximity.FindSafetyAlerts(c.Request.Context(), models.CurrentUser(c).ID, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "", gin.H{"count": len(alerts), "alerts": alerts})
}

func (h *Handlers) handleCreateAlert(c *gin.Context) {
	var in safety.AlertInput
	if !bindJSON(c, &in) {
		return
	}
	alert, err := h.safety.CreateAlert(c.Request.Context(), models.CurrentUser(c).ID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Safety alert reported successfully", gin.H{"alert": alert})
}

func (h *Handlers) handleReactAlert(c *gin.Context) {
	var in safety.ReactionInput
	if !bindJSON(c, &in) {
		return
	}
	counts, err := h.safety.React(c.Request.Context(), models.CurrentUser(c).ID, c.Param("id"), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "Reaction recorded", gin.H{"reactions": counts})
}

func (h *Handlers) handleListRoutes(c *gin.Context) {
	var q proximity.RouteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, "Invalid query parameters", nil)
		return
	}
	res, err := h.proximity.FindSafeRoutes(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "", gin.H{"routes": res.Routes, "alerts": res.Alerts, "routeInfo": res.RouteInfo})
}

func (h *Handlers) handleCreateRoute(c *gin.Context) {
	var in safety.RouteInput
	if !bindJSON(c, &in) {
		return
	}
	route, err := h.safety.CreateRoute(c.Request.Context(), models.CurrentUser(c).ID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Safe route added successfully", gin.H{"route": route})
}

func (h *Handlers) handleListGroups(c *gin.Context) {
	var f safety.GroupFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		response.Fail(c, "Invalid query parameters", nil)
		return
	}
	groups, err := h.safety.ListGroups(c.Request.Context(), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "", gin.H{"count": len(groups), "groups": groups})
}

func (h *Handlers) handleCreateGroup(c *gin.Context) {
	var in safety.GroupInput
	if !bindJSON(c, &in) {
		return
	}
	group, err := h.safety.CreateGroup(c.Request.Context(), models.CurrentUser(c).ID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Travel group created successfully", gin.H{"group": group})
}

func (h *Handlers) handleJoinGroup(c *gin.Context) {
	group, err := h.safety.JoinGroup(c.Request.Context(), models.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "Joined travel group", gin.H{"group": group})
}

func (h *Handlers) handleLeaveGroup(c *gin.Context) {
	group, err := h.safety.LeaveGroup(c.Request.Context(), models.CurrentUser(c).ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "Left travel group", gin.H{"group": group})
}

func (h *Handlers) handleUpdateLocation(c *gin.Context) {
	var in proximity.LocationInput
	if !bindJSON(c, &in) {
		return
	}
	loc, err := h.proximity.UpdateLocationInput(c.Request.Context(), models.CurrentUser(c).ID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "Location updated successfully", gin.H{"location": loc})
}
