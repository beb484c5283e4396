package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
)

// NextAvailableStaff picks the active staff member of hotelID whose role is
// category and who currently holds the fewest assigned or in-progress tasks.
// Ties go to the lowest id. Staff listed in exclude are never chosen.
func (s *Store) NextAvailableStaff(ctx context.Context, hotelID, category string, exclude ...uint) (*models.Staff, error) {
	return nextAvailableStaff(s.db.WithContext(ctx), hotelID, category, exclude...)
}

func nextAvailableStaff(tx *gorm.DB, hotelID, category string, exclude ...uint) (*models.Staff, error) {
	q := tx.Where("hotel_id = ? AND role = ? AND is_active = ?", hotelID, category, true)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var candidates []models.Staff
	if err := q.Order("id ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("store: find staff for %s/%s: %w", hotelID, category, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: hotel %s category %s", ErrNoStaff, hotelID, category)
	}

	ids := make([]uint, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	var loads []struct {
		AssignedTo uint
		N          int
	}
	if err := tx.Model(&models.Task{}).
		Select("assigned_to, COUNT(*) AS n").
		Where("assigned_to IN ? AND status IN ?", ids, activeStatuses).
		Group("assigned_to").
		Scan(&loads).Error; err != nil {
		return nil, fmt.Errorf("store: count staff load: %w", err)
	}
	load := make(map[uint]int, len(loads))
	for _, l := range loads {
		load[l.AssignedTo] = l.N
	}

	best := &candidates[0]
	for i := range candidates[1:] {
		c := &candidates[i+1]
		if load[c.ID] < load[best.ID] {
			best = c
		}
	}
	return best, nil
}

// PrimaryAdmin returns the hotel's primary admin, or its first admin when
// none is flagged primary.
func (s *Store) PrimaryAdmin(ctx context.Context, hotelID string) (*models.HotelAdmin, error) {
	var admin models.HotelAdmin
	err := s.db.WithContext(ctx).
		Where("hotel_id = ?", hotelID).
		Order("is_primary DESC, id ASC").
		First(&admin).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNoAdmin, hotelID)
		}
		return nil, fmt.Errorf("store: primary admin for %s: %w", hotelID, err)
	}
	return &admin, nil
}

// StaffByContact finds the active staff member registered under contact.
func (s *Store) StaffByContact(ctx context.Context, contact string) (*models.Staff, error) {
	var st models.Staff
	err := s.db.WithContext(ctx).
		Where("contact_address IN ?", contactForms(contact)).
		Order("is_active DESC, id ASC").
		First(&st).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: contact %s", ErrStaffNotFound, contact)
		}
		return nil, fmt.Errorf("store: staff by contact %s: %w", contact, err)
	}
	return &st, nil
}

// contactForms returns the spellings a WhatsApp number may be stored under.
func contactForms(contact string) []string {
	digits := normalizeContact(contact)
	return []string{digits, "+" + digits}
}

// normalizeContact strips everything but digits from a phone number.
func normalizeContact(contact string) string {
	b := make([]byte, 0, len(contact))
	for i := 0; i < len(contact); i++ {
		if c := contact[i]; c >= '0' && c <= '9' {
			b = append(b, c)
		}
	}
	return string(b)
}
