package models

import (
	"time"
	"unicode/utf8"

	"Travault/internal/geo"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EmergencyType string

const (
	EmergencyMedical         EmergencyType = "medical"
	EmergencyCrime           EmergencyType = "crime"
	EmergencyAccident        EmergencyType = "accident"
	EmergencyNaturalDisaster EmergencyType = "natural_disaster"
	EmergencyGeneral         EmergencyType = "general"
)

// EmergencyTypes 合法的紧急事件类型
var EmergencyTypes = []EmergencyType{EmergencyMedical, EmergencyCrime, EmergencyAccident, EmergencyNaturalDisaster, EmergencyGeneral}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities 按严重程度升序
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank 严重程度排序值，未知值为 -1
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return -1
}

type UpdateTag string

const (
	UpdateInfo    UpdateTag = "info"
	UpdateWarning UpdateTag = "warning"
	UpdateSuccess UpdateTag = "success"
	UpdateError   UpdateTag = "error"
)

const (
	maxErrorMessage = 200
	// EstimatedResponse 派发成功后返回给用户的预计响应时间
	EstimatedResponse = "5-15 minutes"
)

// EmergencyReport 紧急事件报告，只做状态流转不做物理删除
type EmergencyReport struct {
	ID                string         `json:"id" gorm:"primaryKey;size:36"`
	UserID            uint           `json:"userId" gorm:"index"`
	Type              EmergencyType  `json:"type" gorm:"size:32"`
	Severity          Severity       `json:"severity" gorm:"size:16"`
	Message           string         `json:"message,omitempty" gorm:"size:500"`
	Location          geo.Point      `json:"location" gorm:"embedded;embeddedPrefix:location_"`
	Address           string         `json:"address,omitempty" gorm:"size:200"`
	Status            ReportStatus   `json:"status" gorm:"size:16;index"`
	DispatchedAt      *time.Time     `json:"dispatchedAt,omitempty"`
	RespondedAt       *time.Time     `json:"respondedAt,omitempty"`
	ResolvedAt        *time.Time     `json:"resolvedAt,omitempty"`
	Resolution        string         `json:"resolution,omitempty" gorm:"size:500"`
	ErrorMessage      string         `json:"errorMessage,omitempty" gorm:"size:200"`
	EstimatedResponse string         `json:"estimatedResponse,omitempty" gorm:"size:32"`
	Updates           []ReportUpdate `json:"updates,omitempty" gorm:"foreignKey:ReportID"`
	CreatedAt         time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// ReportUpdate 报告的审计记录，按插入顺序排列
type ReportUpdate struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	ReportID  string    `json:"-" gorm:"size:36;index"`
	Message   string    `json:"message" gorm:"size:300"`
	Status    UpdateTag `json:"status" gorm:"size:16"`
	UpdatedBy uint      `json:"updatedBy"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *EmergencyReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	return nil
}

// TransitionTo 按状态机修改状态并记录时间戳，相同状态视为无操作
func (r *EmergencyReport) TransitionTo(to ReportStatus, at time.Time) error {
	if r.Status == to {
		return nil
	}
	if r.Status.Terminal() {
		return ErrReportClosed
	}
	if !r.Status.CanTransitionTo(to) {
		return ErrInvalidTransition.WithContext("from", string(r.Status)).WithContext("to", string(to))
	}
	r.Status = to
	switch {
	case to == StatusDispatched:
		r.DispatchedAt = &at
	case to == StatusResponded:
		r.RespondedAt = &at
	case to.Terminal():
		r.ResolvedAt = &at
	}
	return nil
}

// MarkFailed 派发失败，记录截断后的错误信息
func (r *EmergencyReport) MarkFailed(reason string, at time.Time) error {
	if err := r.TransitionTo(StatusFailed, at); err != nil {
		return err
	}
	r.ErrorMessage = truncate(reason, maxErrorMessage)
	r.DispatchedAt = nil
	return nil
}

// CreateReport 创建报告
func CreateReport(db *gorm.DB, report *EmergencyReport) error {
	return db.Omit(clause.Associations).Create(report).Error
}

// GetReport 获取报告及其审计记录
func GetReport(db *gorm.DB, id string) (*EmergencyReport, error) {
	var report EmergencyReport
	err := db.Preload("Updates", func(tx *gorm.DB) *gorm.DB { return tx.Order("id asc") }).
		Where("id = ?", id).First(&report).Error
	if err != nil {
		return nil, notFound(err, ErrReportNotFound)
	}
	return &report, nil
}

// SaveReport 保存报告的状态字段，不处理审计记录
func SaveReport(db *gorm.DB, report *EmergencyReport) error {
	return db.Model(report).Select(
		"status", "dispatched_at", "responded_at", "resolved_at",
		"resolution", "error_message", "estimated_response", "updated_at",
	).Updates(report).Error
}

// AppendReportUpdate 追加审计记录
func AppendReportUpdate(db *gorm.DB, reportID string, update *ReportUpdate) error {
	update.ReportID = reportID
	if update.Status == "" {
		update.Status = UpdateInfo
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}
	update.Message = truncate(update.Message, 300)
	return db.Create(update).Error
}

// ReportQuery 报告列表查询条件
type ReportQuery struct {
	UserID uint
	Status ReportStatus
	Page   int
	Limit  int
}

// ListReports 分页查询用户报告，按创建时间倒序
func ListReports(db *gorm.DB, q ReportQuery) ([]EmergencyReport, int64, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	tx := db.Model(&EmergencyReport{}).Where("user_id = ?", q.UserID)
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reports []EmergencyReport
	err := tx.Order("created_at desc").Order("id desc").
		Offset((q.Page - 1) * q.Limit).Limit(q.Limit).
		Find(&reports).Error
	if err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
