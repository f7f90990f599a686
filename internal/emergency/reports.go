package emergency

import (
	"context"
	"strings"

	"Travault/internal/models"
	"Travault/internal/validation"
	"Travault/pkg/errors"
)

// UpdateReportInput PUT /emergency/reports/:id 请求体
//
// active、dispatched、failed 只由派发流程写入，用户不能设置。
type UpdateReportInput struct {
	Status     models.ReportStatus `json:"status" validate:"omitempty,oneof=responded resolved cancelled false_alarm"`
	Resolution string              `json:"resolution" validate:"max=500"`
}

// AddUpdateInput POST /emergency/reports/:id/updates 请求体
type AddUpdateInput struct {
	Message string           `json:"message" validate:"required,max=300"`
	Status  models.UpdateTag `json:"status" validate:"omitempty,oneof=info warning success error"`
}

// ListInput GET /emergency/reports 查询参数
type ListInput struct {
	Status models.ReportStatus `form:"status" json:"status" validate:"omitempty,oneof=active dispatched responded resolved failed cancelled false_alarm"`
	Page   int                 `form:"page" json:"page" validate:"gte=0"`
	Limit  int                 `form:"limit" json:"limit" validate:"gte=0,lte=100"`
}

type Pagination struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Total   int64 `json:"total"`
}

// ownedReport 先判断存在再判断归属
func (s *Service) ownedReport(ctx context.Context, callerID uint, id string) (*models.EmergencyReport, error) {
	report, err := models.GetReport(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if report.UserID != callerID {
		return nil, models.ErrNotReportOwner
	}
	return report, nil
}

// UpdateReport 报告所有者修改状态或处理结果
func (s *Service) UpdateReport(ctx context.Context, callerID uint, id string, in UpdateReportInput) (*models.EmergencyReport, error) {
	in.Resolution = strings.TrimSpace(in.Resolution)
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	report, err := s.ownedReport(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if in.Status != "" {
		if err := report.TransitionTo(in.Status, now); err != nil {
			return nil, err
		}
	}
	if in.Resolution != "" {
		report.Resolution = in.Resolution
	}
	report.UpdatedAt = now
	if err := models.SaveReport(s.db.WithContext(ctx), report); err != nil {
		return nil, errors.Internal(err, "failed to update emergency report")
	}
	return report, nil
}

// AddUpdate 追加审计记录，任何状态下都可以调用
func (s *Service) AddUpdate(ctx context.Context, callerID uint, id string, in AddUpdateInput) (*models.ReportUpdate, error) {
	in.Message = strings.TrimSpace(in.Message)
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	if _, err := s.ownedReport(ctx, callerID, id); err != nil {
		return nil, err
	}
	update := &models.ReportUpdate{Message: in.Message, Status: in.Status, UpdatedBy: callerID, Timestamp: s.now()}
	if err := models.AppendReportUpdate(s.db.WithContext(ctx), id, update); err != nil {
		return nil, errors.Internal(err, "failed to append report update")
	}
	return update, nil
}

// GetReport 查看自己的报告
func (s *Service) GetReport(ctx context.Context, callerID uint, id string) (*models.EmergencyReport, error) {
	return s.ownedReport(ctx, callerID, id)
}

// ListReports 分页列出自己的报告，最新的在前
func (s *Service) ListReports(ctx context.Context, callerID uint, in ListInput) ([]models.EmergencyReport, Pagination, error) {
	if err := validation.Check(in); err != nil {
		return nil, Pagination{}, err
	}
	q := models.ReportQuery{UserID: callerID, Status: in.Status, Page: in.Page, Limit: in.Limit}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	reports, total, err := models.ListReports(s.db.WithContext(ctx), q)
	if err != nil {
		return nil, Pagination{}, errors.Internal(err, "failed to list emergency reports")
	}
	pages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return reports, Pagination{Current: q.Page, Pages: pages, Total: total}, nil
}
