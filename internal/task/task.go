// Package task provides guest request intake and the task lifecycle table.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/efyoos/bellhop/internal/classify"
	"github.com/efyoos/bellhop/internal/db"
	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("task: not found")

// ValidationError reports a malformed intake payload. Nothing is stored.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// CreateOpts holds the fields of a new guest request.
type CreateOpts struct {
	HotelID     string
	RoomNumber  string
	RequestText string
	GuestName   string
	Urgency     string
	Language    string
	Category    string
	ShortCode   string
	MaxRetries  int
}

// CreateResult is the outcome of Create. IsDuplicate is set when the
// short code was already used and Task is the existing record.
type CreateResult struct {
	Task        *models.Task
	IsDuplicate bool
}

// ListFilters holds optional filters for listing tasks.
type ListFilters struct {
	HotelID string
	Status  string
	Limit   int
}

const maxShortCodeAttempts = 5

// Create validates and stores a new pending task. Resubmitting a known
// short code returns the existing task with IsDuplicate set.
func Create(ctx context.Context, gormDB *gorm.DB, opts CreateOpts) (*CreateResult, error) {
	if gormDB == nil {
		return nil, fmt.Errorf("task: db is required")
	}
	var missing []string
	if strings.TrimSpace(opts.HotelID) == "" {
		missing = append(missing, "hotel_id")
	}
	if strings.TrimSpace(opts.RoomNumber) == "" {
		missing = append(missing, "room_number")
	}
	if strings.TrimSpace(opts.RequestText) == "" {
		missing = append(missing, "request_text")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: "Missing required fields: " + strings.Join(missing, ", ")}
	}
	if opts.ShortCode != "" && len(opts.ShortCode) != ShortCodeLength {
		return nil, &ValidationError{Message: fmt.Sprintf("short_code must be %d characters", ShortCodeLength)}
	}

	if opts.Category != "" {
		c, ok := classify.Canonical(opts.Category)
		if !ok {
			return nil, &ValidationError{Message: "category must be one of " + strings.Join(classify.Categories, ", ")}
		}
		opts.Category = c
	}

	gormDB = gormDB.WithContext(ctx)
	if opts.ShortCode != "" {
		if existing, err := byShortCode(gormDB, opts.ShortCode); err == nil {
			return &CreateResult{Task: existing, IsDuplicate: true}, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	urgency := NormalizeUrgency(opts.Urgency)
	t := models.Task{
		HotelID:     opts.HotelID,
		RoomNumber:  opts.RoomNumber,
		RequestText: opts.RequestText,
		Language:    opts.Language,
		Urgency:     urgency,
		Priority:    Priority(urgency),
		Status:      models.TaskPending,
		MaxRetries:  opts.MaxRetries,
	}
	if t.Language == "" {
		t.Language = "en"
	}
	if t.MaxRetries <= 0 {
		t.MaxRetries = 3
	}
	if opts.GuestName != "" {
		t.GuestName = &opts.GuestName
	}
	if opts.Category != "" {
		t.Category = &opts.Category
	}

	for attempt := 0; attempt < maxShortCodeAttempts; attempt++ {
		t.ID = 0
		t.ShortCode = opts.ShortCode
		if t.ShortCode == "" {
			code, err := GenerateShortCode()
			if err != nil {
				return nil, err
			}
			t.ShortCode = code
		}

		err := gormDB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&t).Error; err != nil {
				return err
			}
			return tx.Create(&models.LifecycleEvent{
				TaskID:    t.ID,
				EventType: models.EventCreated,
				Actor:     "guest",
				Notes:     "Request received via intake",
			}).Error
		})
		if err == nil {
			return &CreateResult{Task: &t}, nil
		}
		if !db.IsDuplicateKey(err) {
			return nil, fmt.Errorf("task: create: %w", err)
		}
		if opts.ShortCode != "" {
			// Lost a race with a concurrent submission of the same code.
			existing, gerr := byShortCode(gormDB, opts.ShortCode)
			if gerr != nil {
				return nil, gerr
			}
			return &CreateResult{Task: existing, IsDuplicate: true}, nil
		}
	}
	return nil, fmt.Errorf("task: create: no free short code after %d attempts", maxShortCodeAttempts)
}

// Get retrieves a task by ID.
func Get(ctx context.Context, gormDB *gorm.DB, id uint) (*models.Task, error) {
	var t models.Task
	if err := gormDB.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("task: get %d: %w", id, err)
	}
	return &t, nil
}

// List returns tasks matching the filters, highest priority first.
func List(ctx context.Context, gormDB *gorm.DB, filters ListFilters) ([]models.Task, error) {
	q := gormDB.WithContext(ctx).Model(&models.Task{})
	if filters.HotelID != "" {
		q = q.Where("hotel_id = ?", filters.HotelID)
	}
	if filters.Status != "" {
		if !ValidStatus(filters.Status) {
			return nil, fmt.Errorf("task: unknown status %q", filters.Status)
		}
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}

	var tasks []models.Task
	if err := q.Order("priority DESC, created_at ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("task: list: %w", err)
	}
	return tasks, nil
}

func byShortCode(gormDB *gorm.DB, code string) (*models.Task, error) {
	var t models.Task
	if err := gormDB.Where("short_code = ?", code).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: short code %s", ErrNotFound, code)
		}
		return nil, fmt.Errorf("task: lookup short code %s: %w", code, err)
	}
	return &t, nil
}
