// Package safety 社区安全功能：警报上报与反馈、路线分享、结伴小组
package safety

import (
	"context"
	"strings"
	"time"

	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/internal/validation"
	"Travault/pkg/errors"
	"Travault/pkg/logger"
	"Travault/pkg/scheduler"
	"Travault/pkg/websocket"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher 实时推送，新警报发给所有在线连接
type Publisher interface {
	websocket.Publisher
	Broadcast(ev websocket.Event)
}

// Recorder 业务指标
type Recorder interface {
	RecordSafetyAlert(alertType, severity string)
	AddExpiredAlerts(n int64)
}

type Service struct {
	db        *gorm.DB
	publisher Publisher
	recorder  Recorder
	now       func() time.Time
}

func NewService(db *gorm.DB, publisher Publisher) *Service {
	return &Service{db: db, publisher: publisher, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithRecorder(r Recorder) *Service {
	s.recorder = r
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PointInput 请求中的坐标
type PointInput struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

func (p PointInput) Point() geo.Point {
	return geo.Point{Lon: *p.Longitude, Lat: *p.Latitude}
}

// AlertInput POST /safety/alerts 请求体
type AlertInput struct {
	Type        models.AlertType `json:"type" validate:"required,oneof=crime natural_disaster health_emergency traffic protest terrorism other"`
	Title       string           `json:"title" validate:"required,min=5,max=100"`
	Description string           `json:"description" validate:"required,min=10,max=500"`
	Severity    models.Severity  `json:"severity" validate:"required,oneof=low medium high critical"`
	Latitude    *float64         `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64         `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address     string           `json:"address" validate:"max=200"`
}

// CreateAlert 已验证用户上报警报，有效期由严重程度决定
func (s *Service) CreateAlert(ctx context.Context, reporterID uint, in AlertInput) (*models.SafetyAlert, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Address = strings.TrimSpace(in.Address)
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	loc := geo.Point{Lon: *in.Longitude, Lat: *in.Latitude}
	alert, err := models.NewSafetyAlert(reporterID, in.Type, in.Severity, in.Title, in.Description, loc, in.Address, s.now())
	if err != nil {
		return nil, errors.Internal(err, "failed to build safety alert")
	}
	if err := models.CreateSafetyAlert(s.db.WithContext(ctx), alert); err != nil {
		return nil, errors.Internal(err, "failed to save safety alert")
	}
	if s.recorder != nil {
		s.recorder.RecordSafetyAlert(string(alert.Type), string(alert.Severity))
	}
	if s.publisher != nil {
		s.publisher.Broadcast(websocket.Event{Type: websocket.MessageTypeNewSafetyAlert, Data: alert})
	}
	logger.Info("safety alert reported", zap.String("alert", alert.ID), zap.Uint("user", reporterID),
		zap.String("severity", string(alert.Severity)))
	return alert, nil
}

// ReactionInput POST /safety/alerts/:id/reactions 请求体
type ReactionInput struct {
	Type models.ReactionType `json:"type" validate:"required,oneof=helpful confirmed outdated spam"`
}

// React 每个用户对每条警报只保留最后一次反馈，返回各类反馈数量
func (s *Service) React(ctx context.Context, userID uint, alertID string, in ReactionInput) (map[models.ReactionType]int, error) {
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := models.GetSafetyAlert(db, alertID); err != nil {
		return nil, err
	}
	if err := models.UpsertReaction(db, alertID, userID, in.Type, s.now()); err != nil {
		return nil, errors.Internal(err, "failed to save reaction")
	}
	alert, err := models.GetSafetyAlert(db, alertID)
	if err != nil {
		return nil, err
	}
	return alert.ReactionCounts(), nil
}

// RouteInput POST /safety/routes 请求体
type RouteInput struct {
	Name              string            `json:"name" validate:"required,min=5,max=100"`
	Description       string            `json:"description" validate:"max=500"`
	Mode              models.TravelMode `json:"mode" validate:"required,oneof=walking driving cycling public_transport"`
	StartPoint        PointInput        `json:"startPoint"`
	StartAddress      string            `json:"startAddress" validate:"max=200"`
	EndPoint          PointInput        `json:"endPoint"`
	EndAddress        string            `json:"endAddress" validate:"max=200"`
	Waypoints         []PointInput      `json:"waypoints" validate:"omitempty,max=100,dive"`
	Distance          float64           `json:"distance" validate:"gte=0"`
	EstimatedDuration int               `json:"estimatedDuration" validate:"gte=0"`
}

// CreateRoute 分享路线
func (s *Service) CreateRoute(ctx context.Context, creatorID uint, in RouteInput) (*models.SafeRoute, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	route := &models.SafeRoute{
		Name:              in.Name,
		Description:       in.Description,
		Mode:              in.Mode,
		Start:             in.StartPoint.Point(),
		StartAddress:      in.StartAddress,
		End:               in.EndPoint.Point(),
		EndAddress:        in.EndAddress,
		Distance:          in.Distance,
		EstimatedDuration: in.EstimatedDuration,
		CreatedBy:         creatorID,
		IsActive:          true,
	}
	for _, wp := range in.Waypoints {
		route.Waypoints = append(route.Waypoints, wp.Point())
	}
	if err := models.CreateRoute(s.db.WithContext(ctx), route); err != nil {
		return nil, errors.Internal(err, "failed to save route")
	}
	return route, nil
}

// ExpireAlerts 下线已过期但仍标记为有效的警报
func (s *Service) ExpireAlerts(ctx context.Context) (int64, error) {
	db := s.db.WithContext(ctx)
	alerts, err := models.ListActiveAlerts(db, nil)
	if err != nil {
		return 0, err
	}
	now := s.now()
	var ids []string
	for _, a := range alerts {
		if !a.ExpiresAt.After(now) {
			ids = append(ids, a.ID)
		}
	}
	n, err := models.DeactivateAlerts(db, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.recorder != nil {
		s.recorder.AddExpiredAlerts(n)
	}
	return n, nil
}

// ExpiryJob 定时任务
func (s *Service) ExpiryJob() scheduler.Job {
	return scheduler.FuncJob(func(ctx context.Context) {
		n, err := s.ExpireAlerts(ctx)
		if err != nil {
			logger.Error("expire safety alerts failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("safety alerts expired", zap.Int64("count", n))
		}
	})
}
