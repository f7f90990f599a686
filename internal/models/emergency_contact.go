package models

import (
	"time"

	"Travault/internal/geo"

	"gorm.io/gorm"
)

type ContactType string

const (
	ContactPolice         ContactType = "police"
	ContactFire           ContactType = "fire"
	ContactMedical        ContactType = "medical"
	ContactCoastGuard     ContactType = "coast_guard"
	ContactMountainRescue ContactType = "mountain_rescue"
	ContactGeneral        ContactType = "general"
	ContactEmbassy        ContactType = "embassy"
	ContactTouristPolice  ContactType = "tourist_police"
)

// EmergencyContact 各国紧急联系方式，只读参考数据
type EmergencyContact struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	Name         string      `json:"name" gorm:"size:100"`
	Type         ContactType `json:"type" gorm:"size:32"`
	Phone        string      `json:"phone" gorm:"size:32"`
	Email        string      `json:"email,omitempty" gorm:"size:128"`
	Country      string      `json:"country" gorm:"size:2;index"`
	Region       string      `json:"region,omitempty" gorm:"size:100"`
	City         string      `json:"city,omitempty" gorm:"size:100"`
	ServiceArea  string      `json:"-" gorm:"type:text"` // GeoJSON Point 或 Polygon
	Description  string      `json:"description,omitempty" gorm:"size:500"`
	Availability string      `json:"availability" gorm:"size:32"`
	Priority     int         `json:"priority"`
	IsActive     bool        `json:"isActive" gorm:"index"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Area 解析服务区域，未设置时返回 nil
func (c *EmergencyContact) Area() (*geo.Area, error) {
	if c.ServiceArea == "" {
		return nil, nil
	}
	return geo.ParseArea([]byte(c.ServiceArea))
}

// SetArea 以 GeoJSON 保存服务区域
func (c *EmergencyContact) SetArea(a *geo.Area) error {
	data, err := a.MarshalJSON()
	if err != nil {
		return err
	}
	c.ServiceArea = string(data)
	return nil
}

// ListContactsByCountry 国家内的有效联系方式，按 priority、name 升序
func ListContactsByCountry(db *gorm.DB, country string) ([]EmergencyContact, error) {
	var contacts []EmergencyContact
	err := db.Where("country = ? AND is_active = ?", country, true).
		Order("priority asc").Order("name asc").
		Find(&contacts).Error
	return contacts, err
}

// ListContactsWithServiceArea 所有设置了服务区域的有效联系方式，按 priority 升序
func ListContactsWithServiceArea(db *gorm.DB) ([]EmergencyContact, error) {
	var contacts []EmergencyContact
	err := db.Where("is_active = ? AND service_area IS NOT NULL AND service_area <> ''", true).
		Order("priority asc").Order("id asc").
		Find(&contacts).Error
	return contacts, err
}

// CreateContact 写入联系方式
func CreateContact(db *gorm.DB, contact *EmergencyContact) error {
	return db.Create(contact).Error
}
