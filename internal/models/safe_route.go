package models

import (
	"time"

	"Travault/internal/geo"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TravelMode string

const (
	ModeWalking         TravelMode = "walking"
	ModeDriving         TravelMode = "driving"
	ModeCycling         TravelMode = "cycling"
	ModePublicTransport TravelMode = "public_transport"
)

var TravelModes = []TravelMode{ModeWalking, ModeDriving, ModeCycling, ModePublicTransport}

// DefaultSafetyRating 新路线的默认安全评分
const DefaultSafetyRating = 3

// SafeRoute 用户分享的预录路线
type SafeRoute struct {
	ID                string      `json:"id" gorm:"primaryKey;size:36"`
	Name              string      `json:"name" gorm:"size:100"`
	Description       string      `json:"description,omitempty" gorm:"size:500"`
	Mode              TravelMode  `json:"mode" gorm:"size:32;index"`
	Start             geo.Point   `json:"startPoint" gorm:"embedded;embeddedPrefix:start_"`
	StartAddress      string      `json:"startAddress,omitempty" gorm:"size:200"`
	End               geo.Point   `json:"endPoint" gorm:"embedded;embeddedPrefix:end_"`
	EndAddress        string      `json:"endAddress,omitempty" gorm:"size:200"`
	Waypoints         []geo.Point `json:"waypoints,omitempty" gorm:"serializer:json"`
	Distance          float64     `json:"distance"`
	EstimatedDuration int         `json:"estimatedDuration"`
	SafetyRating      int         `json:"safetyRating"`
	CreatedBy         uint        `json:"createdBy" gorm:"index"`
	IsActive          bool        `json:"isActive" gorm:"index"`
	TimesUsed         int         `json:"timesUsed"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

func (r *SafeRoute) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SafetyRating == 0 {
		r.SafetyRating = DefaultSafetyRating
	}
	return nil
}

// CreateRoute 保存路线
func CreateRoute(db *gorm.DB, route *SafeRoute) error {
	return db.Create(route).Error
}

// ListActiveRoutes 某种出行方式下的全部有效路线
func ListActiveRoutes(db *gorm.DB, mode TravelMode) ([]SafeRoute, error) {
	var routes []SafeRoute
	err := db.Where("is_active = ? AND mode = ?", true, mode).Find(&routes).Error
	return routes, err
}
