package safety

import (
	"context"

	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/pkg/logger"
	"Travault/pkg/websocket"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// LocationUpdater socket 上报位置时调用
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, userID uint, p geo.Point, address string) (*models.CurrentLocation, error)
}

// Hooks 将 socket 消息接入小组成员校验、聊天持久化与位置更新
func (s *Service) Hooks(locator LocationUpdater) websocket.Hooks {
	h := websocket.Hooks{
		AuthorizeGroup: func(ctx context.Context, userID, groupID string) bool {
			uid, err := cast.ToUintE(userID)
			if err != nil {
				return false
			}
			ok, err := models.IsActiveMember(s.db.WithContext(ctx), groupID, uid)
			if err != nil {
				logger.Warn("group membership check failed", zap.String("group", groupID), zap.Error(err))
				return false
			}
			return ok
		},
		OnGroupMessage: func(ctx context.Context, userID, groupID, message string) error {
			uid, err := cast.ToUintE(userID)
			if err != nil {
				return err
			}
			db := s.db.WithContext(ctx)
			ok, err := models.IsActiveMember(db, groupID, uid)
			if err != nil {
				return err
			}
			if !ok {
				return models.ErrNotMember
			}
			_, err = models.AddGroupMessage(db, groupID, uid, message, s.now())
			return err
		},
	}
	if locator != nil {
		h.OnLocationUpdate = func(ctx context.Context, userID string, u websocket.LocationUpdate) error {
			uid, err := cast.ToUintE(userID)
			if err != nil {
				return err
			}
			_, err = locator.UpdateLocation(ctx, uid, geo.Point{Lon: u.Longitude, Lat: u.Latitude}, u.Address)
			return err
		}
	}
	return h
}
