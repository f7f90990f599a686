package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MemberStatus string

const (
	MemberActive  MemberStatus = "active"
	MemberPending MemberStatus = "pending"
	MemberLeft    MemberStatus = "left"
	MemberRemoved MemberStatus = "removed"
)

type GroupStatus string

const (
	GroupPlanning   GroupStatus = "planning"
	GroupConfirmed  GroupStatus = "confirmed"
	GroupInProgress GroupStatus = "in_progress"
	GroupCompleted  GroupStatus = "completed"
	GroupCancelled  GroupStatus = "cancelled"
)

// TravelGroup 结伴出行小组
type TravelGroup struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	Name        string         `json:"name" gorm:"size:100"`
	Description string         `json:"description" gorm:"size:500"`
	Destination string         `json:"destination" gorm:"size:100;index"`
	StartDate   time.Time      `json:"startDate"`
	EndDate     time.Time      `json:"endDate"`
	MaxMembers  int            `json:"maxMembers"`
	LeaderID    uint           `json:"leaderId" gorm:"index"`
	IsPublic    bool           `json:"isPublic"`
	IsActive    bool           `json:"isActive"`
	Status      GroupStatus    `json:"status" gorm:"size:16"`
	Members     []GroupMember  `json:"members,omitempty" gorm:"foreignKey:GroupID"`
	Messages    []GroupMessage `json:"-" gorm:"foreignKey:GroupID"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type GroupMember struct {
	ID       uint         `json:"-" gorm:"primaryKey"`
	GroupID  string       `json:"-" gorm:"size:36;uniqueIndex:idx_group_user"`
	UserID   uint         `json:"user" gorm:"uniqueIndex:idx_group_user"`
	Status   MemberStatus `json:"status" gorm:"size:16"`
	JoinedAt time.Time    `json:"joinedAt"`
}

// GroupMessage 组内聊天，UserID 为 0 表示系统消息
type GroupMessage struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	GroupID   string    `json:"groupId" gorm:"size:36;index"`
	UserID    uint      `json:"user"`
	Message   string    `json:"message" gorm:"size:500"`
	Type      string    `json:"type" gorm:"size:16"`
	CreatedAt time.Time `json:"timestamp"`
}

func (g *TravelGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = GroupPlanning
	}
	return nil
}

// ActiveMemberCount 当前有效成员数
func (g *TravelGroup) ActiveMemberCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Status == MemberActive {
			n++
		}
	}
	return n
}

func (g *TravelGroup) member(userID uint) *GroupMember {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// CreateGroup 创建小组，组长自动成为第一个成员
func CreateGroup(db *gorm.DB, group *TravelGroup, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		group.IsActive = true
		if err := tx.Omit(clause.Associations).Create(group).Error; err != nil {
			return err
		}
		leader := GroupMember{GroupID: group.ID, UserID: group.LeaderID, Status: MemberActive, JoinedAt: now}
		if err := tx.Create(&leader).Error; err != nil {
			return err
		}
		group.Members = []GroupMember{leader}
		return nil
	})
}

// GetGroup 获取小组及成员
func GetGroup(db *gorm.DB, id string) (*TravelGroup, error) {
	var group TravelGroup
	if err := db.Preload("Members").Where("id = ?", id).First(&group).Error; err != nil {
		return nil, notFound(err, ErrGroupNotFound)
	}
	return &group, nil
}

// GroupQuery 小组查询条件
type GroupQuery struct {
	Destination string
	StartAfter  *time.Time
	EndBefore   *time.Time
	Now         time.Time
	Limit       int
}

// ListPublicGroups 公开、有效且尚未开始的小组，按创建时间倒序
func ListPublicGroups(db *gorm.DB, q GroupQuery) ([]TravelGroup, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	tx := db.Preload("Members").
		Where("is_active = ? AND is_public = ?", true, true).
		Where("start_date >= ?", q.Now)
	if d := strings.TrimSpace(q.Destination); d != "" {
		tx = tx.Where("LOWER(destination) LIKE ?", "%"+strings.ToLower(d)+"%")
	}
	if q.StartAfter != nil {
		tx = tx.Where("start_date >= ?", *q.StartAfter)
	}
	if q.EndBefore != nil {
		tx = tx.Where("end_date <= ?", *q.EndBefore)
	}
	var groups []TravelGroup
	err := tx.Order("created_at desc").Limit(q.Limit).Find(&groups).Error
	return groups, err
}

// AddMember 加入小组；已离开或被移除的成员重新激活
func AddMember(db *gorm.DB, group *TravelGroup, userID uint, displayName string, now time.Time) error {
	if group.ActiveMemberCount() >= group.MaxMembers {
		return ErrGroupFull
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if m := group.member(userID); m != nil {
			if m.Status == MemberActive || m.Status == MemberPending {
				return ErrAlreadyMember
			}
			m.Status = MemberActive
			m.JoinedAt = now
			if err := tx.Model(m).Updates(map[string]interface{}{"status": m.Status, "joined_at": now}).Error; err != nil {
				return err
			}
		} else {
			m := GroupMember{GroupID: group.ID, UserID: userID, Status: MemberActive, JoinedAt: now}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			group.Members = append(group.Members, m)
		}
		return postSystemMessage(tx, group.ID, fmt.Sprintf("%s joined the group", displayName), now)
	})
}

// RemoveMember 成员离开或被移除
func RemoveMember(db *gorm.DB, group *TravelGroup, userID uint, status MemberStatus, displayName string, now time.Time) error {
	if status != MemberLeft && status != MemberRemoved {
		return ErrInvalidTransition
	}
	if userID == group.LeaderID {
		return ErrLeaderCannotLeave
	}
	m := group.member(userID)
	if m == nil || m.Status == MemberLeft || m.Status == MemberRemoved {
		return ErrNotMember
	}
	return db.Transaction(func(tx *gorm.DB) error {
		m.Status = status
		if err := tx.Model(m).Update("status", status).Error; err != nil {
			return err
		}
		verb := "left"
		if status == MemberRemoved {
			verb = "was removed from"
		}
		return postSystemMessage(tx, group.ID, fmt.Sprintf("%s %s the group", displayName, verb), now)
	})
}

// AddGroupMessage 成员发送聊天消息
func AddGroupMessage(db *gorm.DB, groupID string, userID uint, message string, now time.Time) (*GroupMessage, error) {
	msg := &GroupMessage{GroupID: groupID, UserID: userID, Message: truncate(message, 500), Type: "text", CreatedAt: now}
	if err := db.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// IsActiveMember 用户是否为小组的有效成员
func IsActiveMember(db *gorm.DB, groupID string, userID uint) (bool, error) {
	var count int64
	err := db.Model(&GroupMember{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, userID, MemberActive).
		Count(&count).Error
	return count > 0, err
}

func postSystemMessage(tx *gorm.DB, groupID, text string, now time.Time) error {
	return tx.Create(&GroupMessage{GroupID: groupID, Message: text, Type: "system", CreatedAt: now}).Error
}
