package safety

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Travault/internal/models"
	"Travault/internal/validation"
	"Travault/pkg/errors"
	"Travault/pkg/websocket"

	"github.com/spf13/cast"
)

// GroupInput POST /safety/groups 请求体
type GroupInput struct {
	Name        string    `json:"name" validate:"required,min=5,max=100"`
	Description string    `json:"description" validate:"required,min=10,max=500"`
	Destination string    `json:"destination" validate:"required,min=2,max=100"`
	StartDate   time.Time `json:"startDate" validate:"required,notpast"`
	EndDate     time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	MaxMembers  int       `json:"maxMembers" validate:"required,min=2,max=50"`
	IsPublic    *bool     `json:"isPublic"`
}

// CreateGroup 创建小组，创建者为组长和第一个成员
func (s *Service) CreateGroup(ctx context.Context, leaderID uint, in GroupInput) (*models.TravelGroup, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Destination = strings.TrimSpace(in.Destination)
	if err := validation.Check(in); err != nil {
		return nil, err
	}
	group := &models.TravelGroup{
		Name:        in.Name,
		Description: in.Description,
		Destination: in.Destination,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		MaxMembers:  in.MaxMembers,
		LeaderID:    leaderID,
		IsPublic:    in.IsPublic == nil || *in.IsPublic,
	}
	if err := models.CreateGroup(s.db.WithContext(ctx), group, s.now()); err != nil {
		return nil, errors.Internal(err, "failed to create travel group")
	}
	return group, nil
}

// GroupFilter GET /safety/groups 查询参数，日期接受 RFC3339 或 YYYY-MM-DD
type GroupFilter struct {
	Destination string `form:"destination"`
	StartDate   string `form:"startDate"`
	EndDate     string `form:"endDate"`
}

func parseDate(field, v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return nil, errors.Validation([]errors.FieldError{{Field: field, Message: fmt.Sprintf("%s is not a valid date", field)}})
	}
	t = t.UTC()
	return &t, nil
}

// ListGroups 公开、有效、尚未开始的小组，最新创建的在前，最多 20 个
func (s *Service) ListGroups(ctx context.Context, f GroupFilter) ([]models.TravelGroup, error) {
	start, err := parseDate("startDate", f.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("endDate", f.EndDate)
	if err != nil {
		return nil, err
	}
	groups, err := models.ListPublicGroups(s.db.WithContext(ctx), models.GroupQuery{
		Destination: f.Destination,
		StartAfter:  start,
		EndBefore:   end,
		Now:         s.now(),
		Limit:       20,
	})
	if err != nil {
		return nil, errors.Internal(err, "failed to list travel groups")
	}
	return groups, nil
}

func (s *Service) activeGroup(ctx context.Context, groupID string) (*models.TravelGroup, error) {
	group, err := models.GetGroup(s.db.WithContext(ctx), groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsActive || group.Status == models.GroupCancelled || group.Status == models.GroupCompleted {
		return nil, models.ErrGroupNotFound
	}
	return group, nil
}

// JoinGroup 加入小组，满员时拒绝
func (s *Service) JoinGroup(ctx context.Context, userID uint, groupID string) (*models.TravelGroup, error) {
	group, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	user, err := models.GetUserByID(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if err := models.AddMember(s.db.WithContext(ctx), group, userID, user.FullName(), s.now()); err != nil {
		return nil, err
	}
	s.notifyGroup(group.ID, fmt.Sprintf("%s joined the group", user.FullName()))
	return group, nil
}

// LeaveGroup 离开小组，组长不能离开
func (s *Service) LeaveGroup(ctx context.Context, userID uint, groupID string) (*models.TravelGroup, error) {
	group, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	user, err := models.GetUserByID(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	if err := models.RemoveMember(s.db.WithContext(ctx), group, userID, models.MemberLeft, user.FullName(), s.now()); err != nil {
		return nil, err
	}
	s.notifyGroup(group.ID, fmt.Sprintf("%s left the group", user.FullName()))
	return group, nil
}

func (s *Service) notifyGroup(groupID, text string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(websocket.GroupTopic(groupID), websocket.Event{
		Type: websocket.MessageTypeNotification,
		Data: map[string]interface{}{"groupId": groupID, "message": text, "timestamp": s.now()},
	})
}
