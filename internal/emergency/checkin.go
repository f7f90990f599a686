package emergency

import (
	"context"
	"strings"
	"time"

	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/internal/validation"
	"Travault/pkg/errors"
	"Travault/pkg/logger"

	"go.uber.org/zap"
)

type CheckInStatus string

const (
	CheckInSafe       CheckInStatus = "safe"
	CheckInConcern    CheckInStatus = "concern"
	CheckInHelpNeeded CheckInStatus = "help_needed"
)

// CheckInInput POST /emergency/check-in 请求体
type CheckInInput struct {
	Status    CheckInStatus `json:"status" validate:"required,oneof=safe concern help_needed"`
	Message   string        `json:"message" validate:"max=300"`
	Latitude  *float64      `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64      `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// CheckIn 签到记录，不单独持久化
type CheckIn struct {
	Status    CheckInStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	Location  geo.Point     `json:"location"`
	Timestamp time.Time     `json:"timestamp"`
}

type CheckInResult struct {
	CheckIn     CheckIn `json:"checkIn"`
	EmergencyID string  `json:"emergencyId,omitempty"`
}

// CheckIn 安全签到；help_needed 时创建报告并尽力通知，通知失败不影响返回
func (s *Service) CheckIn(ctx context.Context, callerID uint, in CheckInInput) (*CheckInResult, error) {
	in.Message = strings.TrimSpace(in.Message)
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	user, err := models.GetUserByID(db, callerID)
	if err != nil {
		return nil, err
	}

	if in.Latitude != nil && in.Longitude != nil {
		p := geo.Point{Lon: *in.Longitude, Lat: *in.Latitude}
		if s.locator != nil {
			loc, err := s.locator.UpdateLocation(ctx, user.ID, p, "")
			if err != nil {
				return nil, err
			}
			user.CurrentLocation = *loc
		} else {
			now := s.now()
			if err := models.UpdateUserLocation(db, user.ID, p, "", now); err != nil {
				return nil, errors.Internal(err, "failed to update location")
			}
			user.CurrentLocation = models.CurrentLocation{Point: p, LastUpdated: &now}
		}
	}

	res := &CheckInResult{CheckIn: CheckIn{
		Status:    in.Status,
		Message:   in.Message,
		Location:  user.CurrentLocation.Point,
		Timestamp: s.now(),
	}}
	if in.Status != CheckInHelpNeeded {
		return res, nil
	}

	msg := in.Message
	if msg == "" {
		msg = checkInHelpMessage
	}
	report := &models.EmergencyReport{
		UserID:   user.ID,
		Type:     models.EmergencyGeneral,
		Severity: models.SeverityMedium,
		Message:  msg,
		Location: user.CurrentLocation.Point,
		Status:   models.StatusActive,
	}
	if err := models.CreateReport(db, report); err != nil {
		return nil, errors.Internal(err, "failed to save emergency report")
	}
	s.recordEmergency(report)
	res.EmergencyID = report.ID

	dctx := context.WithoutCancel(ctx)
	dispatchErr := s.dispatch(dctx, buildPayload(report, user, in.Message, s.now(), true), user)
	if dispatchErr != nil {
		logger.Warn("check-in notification failed",
			zap.String("report", report.ID), zap.Uint("user", user.ID), zap.Error(dispatchErr))
	}
	if err := s.reconcile(dctx, report, dispatchErr); err != nil {
		logger.Error("check-in report status update failed", zap.String("report", report.ID), zap.Error(err))
	}
	s.publishEmergency(report, user)
	return res, nil
}
