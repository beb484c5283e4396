package db

import (
	"fmt"

	"github.com/efyoos/bellhop/internal/config"
	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model managed by Bellhop.
func AllModels() []interface{} {
	return []interface{}{
		&models.Task{},
		&models.Staff{},
		&models.HotelAdmin{},
		&models.IdempotencyRecord{},
		&models.OperationalAlert{},
		&models.LifecycleEvent{},
		&models.FailedJob{},
		&models.APICallLog{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedHotels upserts the staff roster and admins listed in the config.
// Rows are matched on (hotel_id, contact) so reseeding updates names and
// roles in place; staff missing from the config are left untouched.
func SeedHotels(db *gorm.DB, hotels []config.HotelConfig) (staffCount, adminCount int, err error) {
	for _, h := range hotels {
		for _, sc := range h.Staff {
			var staff models.Staff
			result := db.Where("hotel_id = ? AND contact_address = ?", h.ID, sc.Contact).
				Assign(map[string]interface{}{"name": sc.Name, "role": sc.Role, "is_active": true}).
				FirstOrCreate(&staff, models.Staff{HotelID: h.ID, ContactAddress: sc.Contact, Name: sc.Name, Role: sc.Role, IsActive: true})
			if result.Error != nil {
				return staffCount, adminCount, fmt.Errorf("db: seed staff %q for hotel %s: %w", sc.Name, h.ID, result.Error)
			}
			staffCount++
		}
		for _, ac := range h.Admins {
			var admin models.HotelAdmin
			result := db.Where("hotel_id = ? AND name = ?", h.ID, ac.Name).
				Assign(map[string]interface{}{"whatsapp_number": ac.WhatsApp, "email": ac.Email, "is_primary": ac.Primary}).
				FirstOrCreate(&admin, models.HotelAdmin{HotelID: h.ID, Name: ac.Name, WhatsappNumber: ac.WhatsApp, Email: ac.Email, IsPrimary: ac.Primary})
			if result.Error != nil {
				return staffCount, adminCount, fmt.Errorf("db: seed admin %q for hotel %s: %w", ac.Name, h.ID, result.Error)
			}
			adminCount++
		}
	}
	return staffCount, adminCount, nil
}
