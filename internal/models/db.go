package models

import (
	"Travault/pkg/errors"

	"gorm.io/gorm"
)

// 模型层的公共错误
var (
	ErrUserNotFound      = errors.NotFound("User not found")
	ErrReportNotFound    = errors.NotFound("Emergency report not found")
	ErrAlertNotFound     = errors.NotFound("Safety alert not found")
	ErrGroupNotFound     = errors.NotFound("Travel group not found")
	ErrNotReportOwner    = errors.Forbidden("You can only update your own emergency reports")
	ErrReportClosed      = errors.WithCode(errors.CodeConflict, "Emergency report is already closed")
	ErrInvalidTransition = errors.WithCode(errors.CodeValidation, "Invalid status transition")
	ErrGroupFull         = errors.WithCode(errors.CodeConflict, "Group is full")
	ErrAlreadyMember     = errors.WithCode(errors.CodeConflict, "Already a member of this group")
	ErrNotMember         = errors.WithCode(errors.CodeNotFound, "Not a member of this group")
	ErrLeaderCannotLeave = errors.WithCode(errors.CodeValidation, "Group leader cannot leave the group")
	ErrEmailTaken        = errors.WithCode(errors.CodeConflict, "Email is already registered")
)

// Migrate 自动建表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&EmergencyReport{},
		&ReportUpdate{},
		&SafetyAlert{},
		&AlertReaction{},
		&EmergencyContact{},
		&SafeRoute{},
		&TravelGroup{},
		&GroupMember{},
		&GroupMessage{},
	)
}

// notFound 将 gorm 的记录不存在错误替换为业务错误
func notFound(err error, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}
