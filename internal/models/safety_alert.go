package models

import (
	"fmt"
	"time"

	"Travault/internal/geo"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AlertType string

const (
	AlertCrime           AlertType = "crime"
	AlertNaturalDisaster AlertType = "natural_disaster"
	AlertHealthEmergency AlertType = "health_emergency"
	AlertTraffic         AlertType = "traffic"
	AlertProtest         AlertType = "protest"
	AlertTerrorism       AlertType = "terrorism"
	AlertOther           AlertType = "other"
)

var AlertTypes = []AlertType{AlertCrime, AlertNaturalDisaster, AlertHealthEmergency, AlertTraffic, AlertProtest, AlertTerrorism, AlertOther}

type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationVerified  VerificationStatus = "verified"
	VerificationRejected  VerificationStatus = "rejected"
	VerificationDuplicate VerificationStatus = "duplicate"
)

type ReactionType string

const (
	ReactionHelpful   ReactionType = "helpful"
	ReactionConfirmed ReactionType = "confirmed"
	ReactionOutdated  ReactionType = "outdated"
	ReactionSpam      ReactionType = "spam"
)

var ReactionTypes = []ReactionType{ReactionHelpful, ReactionConfirmed, ReactionOutdated, ReactionSpam}

// DefaultAffectedRadius 新警报默认影响半径（米）
const DefaultAffectedRadius = 1000

// alertLifetime 严重程度对应的有效期
var alertLifetime = map[Severity]time.Duration{
	SeverityLow:      24 * time.Hour,
	SeverityMedium:   48 * time.Hour,
	SeverityHigh:     72 * time.Hour,
	SeverityCritical: 168 * time.Hour,
}

// AlertLifetime 返回严重程度对应的有效期，未知严重程度返回错误
func AlertLifetime(s Severity) (time.Duration, error) {
	d, ok := alertLifetime[s]
	if !ok {
		return 0, fmt.Errorf("no alert lifetime for severity %q", s)
	}
	return d, nil
}

// SafetyAlert 用户上报的安全警报
type SafetyAlert struct {
	ID                 string             `json:"id" gorm:"primaryKey;size:36"`
	Type               AlertType          `json:"type" gorm:"size:32"`
	Title              string             `json:"title" gorm:"size:100"`
	Description        string             `json:"description" gorm:"size:500"`
	Severity           Severity           `json:"severity" gorm:"size:16"`
	Location           geo.Point          `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	Address            string             `json:"address,omitempty" gorm:"size:200"`
	AffectedRadius     int                `json:"affectedRadius"`
	ReportedBy         uint               `json:"reportedBy" gorm:"index"`
	VerificationStatus VerificationStatus `json:"verificationStatus" gorm:"size:16"`
	IsActive           bool               `json:"isActive" gorm:"index"`
	ExpiresAt          time.Time          `json:"expiresAt"`
	Reactions          []AlertReaction    `json:"reactions,omitempty" gorm:"foreignKey:AlertID"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// AlertReaction 每个用户对每条警报只保留一个反馈
type AlertReaction struct {
	ID        uint         `json:"-" gorm:"primaryKey"`
	AlertID   string       `json:"-" gorm:"size:36;uniqueIndex:idx_alert_user"`
	UserID    uint         `json:"user" gorm:"uniqueIndex:idx_alert_user"`
	Type      ReactionType `json:"type" gorm:"size:16"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (a *SafetyAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Eligible 警报是否可以出现在查询结果中
func (a *SafetyAlert) Eligible(now time.Time) bool {
	return a.IsActive && a.ExpiresAt.After(now)
}

// ReactionCounts 各类反馈数量
func (a *SafetyAlert) ReactionCounts() map[ReactionType]int {
	counts := make(map[ReactionType]int, len(ReactionTypes))
	for _, t := range ReactionTypes {
		counts[t] = 0
	}
	for _, r := range a.Reactions {
		counts[r.Type]++
	}
	return counts
}

// NewSafetyAlert 初始化默认字段，过期时间由严重程度决定
func NewSafetyAlert(reporter uint, t AlertType, sev Severity, title, desc string, loc geo.Point, address string, now time.Time) (*SafetyAlert, error) {
	life, err := AlertLifetime(sev)
	if err != nil {
		return nil, err
	}
	return &SafetyAlert{
		Type:               t,
		Title:              title,
		Description:        desc,
		Severity:           sev,
		Location:           loc,
		Address:            address,
		AffectedRadius:     DefaultAffectedRadius,
		ReportedBy:         reporter,
		VerificationStatus: VerificationPending,
		IsActive:           true,
		ExpiresAt:          now.Add(life),
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// CreateSafetyAlert 保存警报
func CreateSafetyAlert(db *gorm.DB, alert *SafetyAlert) error {
	return db.Omit(clause.Associations).Create(alert).Error
}

// GetSafetyAlert 获取警报及反馈
func GetSafetyAlert(db *gorm.DB, id string) (*SafetyAlert, error) {
	var alert SafetyAlert
	if err := db.Preload("Reactions").Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, notFound(err, ErrAlertNotFound)
	}
	return &alert, nil
}

// ListActiveAlerts 查询 is_active 的警报，bbox 非空时按包围盒预过滤
//
// 过期判断交给调用方，避免依赖各数据库的时间比较语义
func ListActiveAlerts(db *gorm.DB, bbox *geo.BBox, severities ...Severity) ([]SafetyAlert, error) {
	tx := db.Model(&SafetyAlert{}).Where("is_active = ?", true)
	if bbox != nil {
		tx = tx.Where("location_lon BETWEEN ? AND ? AND location_lat BETWEEN ? AND ?", bbox[0], bbox[2], bbox[1], bbox[3])
	}
	if len(severities) > 0 {
		tx = tx.Where("severity IN ?", severities)
	}
	var alerts []SafetyAlert
	if err := tx.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// UpsertReaction 新增或修改用户的反馈
func UpsertReaction(db *gorm.DB, alertID string, userID uint, t ReactionType, at time.Time) error {
	reaction := AlertReaction{AlertID: alertID, UserID: userID, Type: t, CreatedAt: at}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "alert_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "created_at"}),
	}).Create(&reaction).Error
}

// DeactivateAlerts 批量下线警报
func DeactivateAlerts(db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Model(&SafetyAlert{}).Where("id IN ?", ids).Update("is_active", false)
	return res.RowsAffected, res.Error
}
