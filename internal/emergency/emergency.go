// Package emergency 紧急求助工作流：校验、落库、派发通知、按结果更新报告状态
package emergency

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/internal/validation"
	constants "Travault/pkg/constant"
	"Travault/pkg/errors"
	"Travault/pkg/logger"
	"Travault/pkg/notification"
	"Travault/pkg/websocket"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const checkInHelpMessage = "User requested help during check-in"

// ErrDispatchFailed 报告已保存但通知发送失败
var ErrDispatchFailed = errors.WithCode(errors.CodeDispatch, "Emergency recorded but alert sending failed. Please call local emergency services directly.")

// Recorder 业务指标
type Recorder interface {
	RecordEmergency(emergencyType, severity string)
	RecordDispatch(channel string, err error)
}

// LocationUpdater 签到时更新用户位置
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, userID uint, p geo.Point, address string) (*models.CurrentLocation, error)
}

type Service struct {
	db        *gorm.DB
	notifier  notification.Notifier
	publisher websocket.Publisher
	locator   LocationUpdater
	recorder  Recorder
	now       func() time.Time
}

func NewService(db *gorm.DB, notifier notification.Notifier, publisher websocket.Publisher) *Service {
	return &Service{
		db:        db,
		notifier:  notifier,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

func (s *Service) WithLocationUpdater(l LocationUpdater) *Service {
	s.locator = l
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RaiseInput POST /emergency/alert 请求体
type RaiseInput struct {
	Type      models.EmergencyType `json:"type" validate:"required,oneof=medical crime accident natural_disaster general"`
	Severity  models.Severity      `json:"severity" validate:"required,oneof=low medium high critical"`
	Message   string               `json:"message" validate:"max=500"`
	Latitude  *float64             `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64             `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

type RaiseResult struct {
	ReportID          string              `json:"emergencyId"`
	Status            models.ReportStatus `json:"status"`
	EstimatedResponse string              `json:"estimatedResponse,omitempty"`
}

// RaiseEmergency 创建紧急报告并通知急救服务与紧急联系人
//
// 报告落库失败时直接返回错误，不做派发；派发失败时报告置为 failed，
// 同时返回结果与 ErrDispatchFailed。报告落库之后的任何错误都会带上结果。
func (s *Service) RaiseEmergency(ctx context.Context, callerID uint, in RaiseInput) (*RaiseResult, error) {
	in.Message = strings.TrimSpace(in.Message)
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	user, err := models.GetUserByID(db, callerID)
	if err != nil {
		return nil, err
	}

	loc := user.CurrentLocation.Point
	if in.Latitude != nil && in.Longitude != nil {
		loc = geo.Point{Lon: *in.Longitude, Lat: *in.Latitude}
	}
	report := &models.EmergencyReport{
		UserID:   user.ID,
		Type:     in.Type,
		Severity: in.Severity,
		Message:  in.Message,
		Location: loc,
		Status:   models.StatusActive,
	}
	if err := models.CreateReport(db, report); err != nil {
		return nil, errors.Internal(err, "failed to save emergency report")
	}
	s.recordEmergency(report)

	// 报告已提交，后续步骤不受客户端断开影响
	dctx := context.WithoutCancel(ctx)
	msg := report.Message
	if msg == "" {
		msg = fmt.Sprintf("%s emergency reported", report.Type)
	}
	dispatchErr := s.dispatch(dctx, buildPayload(report, user, msg, s.now(), false), user)
	saveErr := s.reconcile(dctx, report, dispatchErr)
	s.publishEmergency(report, user)

	res := &RaiseResult{ReportID: report.ID, Status: report.Status, EstimatedResponse: report.EstimatedResponse}
	if saveErr != nil {
		// 报告已存在，结果照常返回以便调用方拿到编号
		logger.Error("emergency status update failed", zap.String("report", report.ID),
			zap.Uint("user", user.ID), zap.NamedError("dispatch", dispatchErr), zap.Error(saveErr))
		return res, saveErr
	}
	if dispatchErr != nil {
		logger.Error("emergency dispatch failed",
			zap.String("report", report.ID), zap.Uint("user", user.ID), zap.Error(dispatchErr))
		return res, &errors.Error{Code: errors.CodeDispatch, Message: ErrDispatchFailed.Message, Err: dispatchErr}
	}
	logger.Info("emergency dispatched", zap.String("report", report.ID), zap.Uint("user", user.ID),
		zap.String("type", string(report.Type)), zap.String("severity", string(report.Severity)))
	return res, nil
}

// dispatch 依次尝试两个渠道，返回所有失败的合并错误
func (s *Service) dispatch(ctx context.Context, p notification.Payload, user *models.User) error {
	if s.notifier == nil {
		return &notification.DispatchError{Channel: notification.ChannelEmergencyServices, Err: notification.ErrChannelNotConfigured}
	}

	var errs []error
	err := s.notifier.Dispatch(ctx, notification.ChannelEmergencyServices, p)
	s.recordDispatch(notification.ChannelEmergencyServices, err)
	if err != nil {
		errs = append(errs, err)
	}
	// 未登记联系人电话时不发短信
	if user.HasEmergencyContactPhone() {
		err = s.notifier.Dispatch(ctx, notification.ChannelSMS, p)
		s.recordDispatch(notification.ChannelSMS, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// reconcile 根据派发结果更新报告状态并保存
func (s *Service) reconcile(ctx context.Context, report *models.EmergencyReport, dispatchErr error) error {
	now := s.now()
	var err error
	if dispatchErr == nil {
		err = report.TransitionTo(models.StatusDispatched, now)
		report.EstimatedResponse = models.EstimatedResponse
	} else {
		err = report.MarkFailed(dispatchErr.Error(), now)
	}
	if err != nil {
		return err
	}
	report.UpdatedAt = now
	if err := models.SaveReport(s.db.WithContext(ctx), report); err != nil {
		return errors.Internal(err, "failed to update emergency report")
	}
	return nil
}

func buildPayload(report *models.EmergencyReport, user *models.User, msg string, now time.Time, checkIn bool) notification.Payload {
	p := notification.Payload{
		ReportID:  report.ID,
		UserID:    user.ID,
		UserName:  user.FullName(),
		UserPhone: user.Phone,
		Type:      string(report.Type),
		Severity:  string(report.Severity),
		Message:   msg,
		Latitude:  report.Location.Lat,
		Longitude: report.Location.Lon,
		Timestamp: now,
		CheckIn:   checkIn,
	}
	if c := user.EmergencyContact; c.Name != "" || c.Phone != "" {
		p.EmergencyContact = &notification.Contact{Name: c.Name, Phone: c.Phone, Relationship: c.Relationship}
	}
	return p
}

func (s *Service) publishEmergency(report *models.EmergencyReport, user *models.User) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(constants.TopicEmergencyResponders, websocket.Event{
		Type: websocket.MessageTypeNewEmergency,
		Data: map[string]interface{}{
			"emergencyId": report.ID,
			"userId":      user.ID,
			"userName":    user.FullName(),
			"type":        report.Type,
			"severity":    report.Severity,
			"status":      report.Status,
			"location":    report.Location,
			"timestamp":   report.CreatedAt,
		},
	})
}

func (s *Service) recordEmergency(r *models.EmergencyReport) {
	if s.recorder != nil {
		s.recorder.RecordEmergency(string(r.Type), string(r.Severity))
	}
}

func (s *Service) recordDispatch(ch notification.Channel, err error) {
	if s.recorder != nil {
		s.recorder.RecordDispatch(string(ch), err)
	}
}
