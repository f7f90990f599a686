package proximity

import (
	"context"
	"strings"

	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/internal/validation"
	"Travault/pkg/errors"
	"Travault/pkg/websocket"
)

// LocationInput PUT /safety/location 请求体
type LocationInput struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address   string   `json:"address" validate:"max=200"`
}

func (in LocationInput) Point() geo.Point {
	return geo.Point{Lon: *in.Longitude, Lat: *in.Latitude}
}

// UpdateLocationInput 校验请求体后更新位置
func (s *Service) UpdateLocationInput(ctx context.Context, userID uint, in LocationInput) (*models.CurrentLocation, error) {
	in.Address = strings.TrimSpace(in.Address)
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	return s.UpdateLocation(ctx, userID, in.Point(), in.Address)
}

// UpdateLocation 保存当前位置并推送给关注该用户的联系人
func (s *Service) UpdateLocation(ctx context.Context, userID uint, p geo.Point, address string) (*models.CurrentLocation, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Validation([]errors.FieldError{{Field: "location", Message: err.Error()}})
	}
	now := s.now()
	if err := models.UpdateUserLocation(s.db.WithContext(ctx), userID, p, address, now); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, err
		}
		return nil, errors.Internal(err, "failed to update location")
	}
	loc := &models.CurrentLocation{Point: p, Address: address, LastUpdated: &now}
	if s.publisher != nil {
		s.publisher.Publish(websocket.ContactsTopic(userID), websocket.Event{
			Type: websocket.MessageTypeContactLocationUpdate,
			Data: map[string]interface{}{
				"userId":    userID,
				"location":  p,
				"address":   address,
				"timestamp": now,
			},
		})
	}
	return loc, nil
}
