package proximity

import (
	"context"
	"sort"

	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/internal/validation"
	"Travault/pkg/errors"
)

// ErrRouteEndpointsRequired 缺少起点或终点坐标
var ErrRouteEndpointsRequired = errors.WithCode(errors.CodeValidation, "Start and end coordinates are required")

// RouteQuery GET /safety/routes 查询参数
type RouteQuery struct {
	StartLat *float64          `form:"startLat" json:"startLat" validate:"omitempty,gte=-90,lte=90"`
	StartLng *float64          `form:"startLng" json:"startLng" validate:"omitempty,gte=-180,lte=180"`
	EndLat   *float64          `form:"endLat" json:"endLat" validate:"omitempty,gte=-90,lte=90"`
	EndLng   *float64          `form:"endLng" json:"endLng" validate:"omitempty,gte=-180,lte=180"`
	Mode     models.TravelMode `form:"mode" json:"mode" validate:"omitempty,oneof=walking driving cycling public_transport"`
}

type RouteEndpoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type RouteInfo struct {
	Start RouteEndpoint     `json:"start"`
	End   RouteEndpoint     `json:"end"`
	Mode  models.TravelMode `json:"mode"`
}

type RoutesResult struct {
	Routes    []models.SafeRoute   `json:"routes"`
	Alerts    []models.SafetyAlert `json:"alerts"`
	RouteInfo RouteInfo            `json:"routeInfo"`
}

// FindSafeRoutes 起点 1km 内或终点 1km 内的路线，附带中点 10km 内的高危警报
func (s *Service) FindSafeRoutes(ctx context.Context, q RouteQuery) (*RoutesResult, error) {
	if q.StartLat == nil || q.StartLng == nil || q.EndLat == nil || q.EndLng == nil {
		return nil, ErrRouteEndpointsRequired
	}
	if err := validation.Check(q); err != nil {
		return nil, err
	}
	if q.Mode == "" {
		q.Mode = models.ModeWalking
	}
	start := geo.Point{Lon: *q.StartLng, Lat: *q.StartLat}
	end := geo.Point{Lon: *q.EndLng, Lat: *q.EndLat}

	routes, err := models.ListActiveRoutes(s.db.WithContext(ctx), q.Mode)
	if err != nil {
		return nil, errors.Internal(err, "failed to load routes")
	}
	matched := routes[:0]
	for _, r := range routes {
		if geo.WithinRadius(start, r.Start, RouteMatchRadiusKm) || geo.WithinRadius(end, r.End, RouteMatchRadiusKm) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].SafetyRating != matched[j].SafetyRating {
			return matched[i].SafetyRating > matched[j].SafetyRating
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > MaxRoutes {
		matched = matched[:MaxRoutes]
	}

	alerts, err := s.FindHighSeverityAlertsNear(ctx, geo.Midpoint(start, end), RouteAlertRadiusKm)
	if err != nil {
		return nil, err
	}
	return &RoutesResult{
		Routes: matched,
		Alerts: alerts,
		RouteInfo: RouteInfo{
			Start: RouteEndpoint{Lat: start.Lat, Lng: start.Lon},
			End:   RouteEndpoint{Lat: end.Lat, Lng: end.Lon},
			Mode:  q.Mode,
		},
	}, nil
}

// FindHighSeverityAlertsNear center 周围 radiusKm 球冠内 is_active 的 high/critical 警报
//
// 只是沿途参考，不代表完整的路线走廊。
func (s *Service) FindHighSeverityAlertsNear(ctx context.Context, center geo.Point, radiusKm float64) ([]models.SafetyAlert, error) {
	bbox := geo.RadiusBBox(center, radiusKm)
	alerts, err := models.ListActiveAlerts(s.db.WithContext(ctx), &bbox, models.SeverityHigh, models.SeverityCritical)
	if err != nil {
		return nil, errors.Internal(err, "failed to load safety alerts")
	}
	out := alerts[:0]
	for _, a := range alerts {
		if geo.WithinRadius(center, a.Location, radiusKm) {
			out = append(out, a)
		}
	}
	SortAlerts(out)
	return out, nil
}
