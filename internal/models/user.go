package models

import (
	"strings"
	"time"

	"Travault/internal/geo"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SupportedCountries 支持的国家代码
var SupportedCountries = []string{"US", "UK", "CA", "AU", "DE", "FR", "JP", "IN", "BR", "MX"}

// ContactPerson 用户登记的紧急联系人
type ContactPerson struct {
	Name         string `json:"name" gorm:"size:100"`
	Phone        string `json:"phone" gorm:"size:32"`
	Relationship string `json:"relationship" gorm:"size:50"`
}

// CurrentLocation 用户最近一次上报的位置，默认 (0,0)
type CurrentLocation struct {
	geo.Point
	Address     string     `json:"address,omitempty" gorm:"size:200"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

type User struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	FirstName        string          `json:"firstName" gorm:"size:50"`
	LastName         string          `json:"lastName" gorm:"size:50"`
	Email            string          `json:"email" gorm:"size:128;uniqueIndex"`
	Password         string          `json:"-" gorm:"size:128"`
	Phone            string          `json:"phone" gorm:"size:32"`
	Country          string          `json:"country" gorm:"size:2"`
	EmergencyContact ContactPerson   `json:"emergencyContact" gorm:"embedded;embeddedPrefix:emergency_contact_"`
	CurrentLocation  CurrentLocation `json:"currentLocation" gorm:"embedded;embeddedPrefix:current_location_"`
	IsVerified       bool            `json:"isVerified"`
	IsActive         bool            `json:"isActive"`
	LastLogin        *time.Time      `json:"lastLogin,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// FullName 姓名
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasEmergencyContactPhone 是否登记了可发送短信的联系人电话
func (u *User) HasEmergencyContactPhone() bool {
	return strings.TrimSpace(u.EmergencyContact.Phone) != ""
}

// SetPassword bcrypt 加密后保存
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// CheckPassword 校验密码
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// CreateUser 创建用户，邮箱统一小写
func CreateUser(db *gorm.DB, user *User, password string) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.Country = strings.ToUpper(user.Country)
	var count int64
	if err := db.Model(&User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrEmailTaken
	}
	if err := user.SetPassword(password); err != nil {
		return err
	}
	user.IsActive = true
	return db.Create(user).Error
}

// GetUserByID 按ID获取用户
func GetUserByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &user, nil
}

// GetUserByEmail 按邮箱获取用户
func GetUserByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &user, nil
}

// UpdateUserLocation 更新用户当前位置
func UpdateUserLocation(db *gorm.DB, userID uint, p geo.Point, address string, at time.Time) error {
	res := db.Model(&User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"current_location_lon":          p.Lon,
		"current_location_lat":          p.Lat,
		"current_location_address":      address,
		"current_location_last_updated": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchLastLogin 记录登录时间
func TouchLastLogin(db *gorm.DB, userID uint, at time.Time) error {
	return db.Model(&User{}).Where("id = ?", userID).Update("last_login", at).Error
}
