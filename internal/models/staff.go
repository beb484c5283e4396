package models

import "time"

// Staff is a hotel employee who can receive tasks. ContactAddress is the
// E.164 WhatsApp number, Role the task category the member handles.
type Staff struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	HotelID        string `gorm:"size:64;not null;index:idx_staff_hotel_role"`
	Name           string `gorm:"size:128;not null"`
	ContactAddress string `gorm:"size:32;not null;index"`
	Role           string `gorm:"size:32;index:idx_staff_hotel_role"`
	IsActive       bool   `gorm:"default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName implements the GORM tabler interface.
func (Staff) TableName() string { return "staff" }

// HotelAdmin receives operational alerts for a hotel.
type HotelAdmin struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	HotelID        string `gorm:"size:64;not null;index"`
	Name           string `gorm:"size:128"`
	WhatsappNumber string `gorm:"size:32"`
	Email          string `gorm:"size:256"`
	IsPrimary      bool   `gorm:"default:false"`
	CreatedAt      time.Time
}
