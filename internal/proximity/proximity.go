// Package proximity 基于位置的查询：附近紧急联系方式、范围内安全警报、匹配路线
package proximity

import (
	"context"
	"sort"
	"strings"
	"time"

	"Travault/internal/geo"
	"Travault/internal/models"
	"Travault/internal/validation"
	"Travault/pkg/cache"
	"Travault/pkg/errors"
	"Travault/pkg/logger"
	"Travault/pkg/websocket"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ContactRadiusKm      = 50.0
	MaxContacts          = 10
	DefaultAlertRadiusKm = 50.0
	MaxAlerts            = 20
	RouteMatchRadiusKm   = 1.0
	MaxRoutes            = 5
	RouteAlertRadiusKm   = 10.0

	contactCacheName = "contacts"
	geohashPrecision = 6
)

// CacheRecorder 缓存命中统计
type CacheRecorder interface {
	RecordCache(name string, hit bool)
}

type Service struct {
	db        *gorm.DB
	cache     cache.Cache
	cacheTTL  time.Duration
	publisher websocket.Publisher
	recorder  CacheRecorder
	now       func() time.Time
}

func NewService(db *gorm.DB, publisher websocket.Publisher) *Service {
	return &Service{
		db:        db,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithCache 联系方式查询结果按 (国家, geohash) 缓存 ttl
//
// 新增或修改联系方式不会清除缓存，最多 ttl 之后才能查到。
func (s *Service) WithCache(c cache.Cache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

func (s *Service) WithRecorder(r CacheRecorder) *Service {
	s.recorder = r
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func contactCacheKey(country string, p *geo.Point) string {
	cell := "-"
	if p != nil {
		cell = p.Geohash(geohashPrecision)
	}
	return "contacts:" + country + ":" + cell
}

// FindNearbyContacts 国家内联系方式与 50km 内服务区域的联系方式合并
//
// 位置结果在前，按 (phone, type) 去重保留先出现的，最多 10 条。
func (s *Service) FindNearbyContacts(ctx context.Context, country string, p *geo.Point) ([]models.EmergencyContact, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if p != nil {
		if err := p.Validate(); err != nil {
			return nil, errors.Validation([]errors.FieldError{{Field: "location", Message: err.Error()}})
		}
	}

	key := contactCacheKey(country, p)
	if s.cache != nil {
		var cached []models.EmergencyContact
		hit := cache.GetJSON(ctx, s.cache, key, &cached)
		s.recordCache(hit)
		if hit {
			return cached, nil
		}
	}

	db := s.db.WithContext(ctx)
	byCountry, err := models.ListContactsByCountry(db, country)
	if err != nil {
		return nil, errors.Internal(err, "failed to load emergency contacts")
	}
	var nearby []models.EmergencyContact
	if p != nil {
		candidates, err := models.ListContactsWithServiceArea(db)
		if err != nil {
			return nil, errors.Internal(err, "failed to load emergency contacts")
		}
		for _, c := range candidates {
			area, err := c.Area()
			if err != nil {
				logger.Warn("skip contact with bad service area", zap.Uint("contact", c.ID), zap.Error(err))
				continue
			}
			if area != nil && area.Within(*p, ContactRadiusKm) {
				nearby = append(nearby, c)
			}
		}
	}

	contacts := MergeContacts(MaxContacts, nearby, byCountry)
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, contacts, s.cacheTTL); err != nil {
			logger.Warn("cache contacts failed", zap.String("key", key), zap.Error(err))
		}
	}
	return contacts, nil
}

// MergeContacts 依次拼接各列表，按 (phone, type) 去重后截断
func MergeContacts(limit int, lists ...[]models.EmergencyContact) []models.EmergencyContact {
	type key struct {
		phone string
		typ   models.ContactType
	}
	seen := make(map[key]bool)
	out := make([]models.EmergencyContact, 0, limit)
	for _, list := range lists {
		for _, c := range list {
			k := key{c.Phone, c.Type}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, c)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

func (s *Service) recordCache(hit bool) {
	if s.recorder != nil {
		s.recorder.RecordCache(contactCacheName, hit)
	}
}

// AlertQuery GET /safety/alerts 查询参数
type AlertQuery struct {
	Latitude  *float64 `form:"latitude" json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `form:"longitude" json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	RadiusKm  float64  `form:"radius" json:"radius" validate:"gte=0,lte=20000"`
}

// FindSafetyAlerts 有效且未过期的警报
//
// 优先使用请求坐标；否则使用用户非零的最近位置（半径 50km）；都没有时不做位置过滤。
func (s *Service) FindSafetyAlerts(ctx context.Context, callerID uint, q AlertQuery) ([]models.SafetyAlert, error) {
	if err := validation.Check(q); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var center *geo.Point
	radius := DefaultAlertRadiusKm
	if q.Latitude != nil && q.Longitude != nil {
		center = &geo.Point{Lon: *q.Longitude, Lat: *q.Latitude}
		if q.RadiusKm > 0 {
			radius = q.RadiusKm
		}
	} else {
		user, err := models.GetUserByID(db, callerID)
		if err != nil {
			return nil, err
		}
		if !user.CurrentLocation.IsZero() {
			p := user.CurrentLocation.Point
			center = &p
		}
	}

	var bbox *geo.BBox
	if center != nil {
		b := geo.RadiusBBox(*center, radius)
		bbox = &b
	}
	alerts, err := models.ListActiveAlerts(db, bbox)
	if err != nil {
		return nil, errors.Internal(err, "failed to load safety alerts")
	}
	now := s.now()
	out := alerts[:0]
	for _, a := range alerts {
		if !a.Eligible(now) {
			continue
		}
		if center != nil && !geo.WithinRadius(*center, a.Location, radius) {
			continue
		}
		out = append(out, a)
	}
	SortAlerts(out)
	if len(out) > MaxAlerts {
		out = out[:MaxAlerts]
	}
	return out, nil
}

// SortAlerts 严重程度降序，同级按创建时间降序
func SortAlerts(alerts []models.SafetyAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Severity.Rank(), alerts[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}
