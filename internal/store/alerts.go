package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
)

// CreateAlert persists a new alert. Status defaults to active.
func (s *Store) CreateAlert(ctx context.Context, a *models.OperationalAlert) error {
	if a.Status == "" {
		a.Status = models.AlertActive
	}
	if a.Metadata == "" {
		a.Metadata = "{}"
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("store: create %s alert: %w", a.AlertType, err)
	}
	return nil
}

// ListAlerts returns alerts, newest first, optionally filtered by status.
func (s *Store) ListAlerts(ctx context.Context, status string, limit int) ([]models.OperationalAlert, error) {
	q := s.db.WithContext(ctx).Model(&models.OperationalAlert{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var alerts []models.OperationalAlert
	if err := q.Order("created_at DESC, id DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	return alerts, nil
}

// GetAlert loads one alert.
func (s *Store) GetAlert(ctx context.Context, id uint) (*models.OperationalAlert, error) {
	return getAlert(s.db.WithContext(ctx), id)
}

// AcknowledgeAlert moves an active alert to acknowledged.
func (s *Store) AcknowledgeAlert(ctx context.Context, id uint) (*models.OperationalAlert, error) {
	return s.closeAlert(ctx, id, models.AlertAcknowledged, "acknowledged_at", []string{models.AlertActive})
}

// ResolveAlert moves an active or acknowledged alert to resolved.
func (s *Store) ResolveAlert(ctx context.Context, id uint) (*models.OperationalAlert, error) {
	return s.closeAlert(ctx, id, models.AlertResolved, "resolved_at", []string{models.AlertActive, models.AlertAcknowledged})
}

func (s *Store) closeAlert(ctx context.Context, id uint, to, stampColumn string, from []string) (*models.OperationalAlert, error) {
	var out *models.OperationalAlert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		result := tx.Model(&models.OperationalAlert{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(map[string]interface{}{"status": to, stampColumn: now, "updated_at": now})
		if result.Error != nil {
			return fmt.Errorf("store: %s alert %d: %w", to, id, result.Error)
		}
		a, err := getAlert(tx, id)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: alert %d is %s", ErrConflict, id, a.Status)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AlertsToEscalate lists active alerts created before olderThan that have
// not been escalated yet.
func (s *Store) AlertsToEscalate(ctx context.Context, olderThan time.Time) ([]models.OperationalAlert, error) {
	var alerts []models.OperationalAlert
	err := s.db.WithContext(ctx).
		Where("status = ? AND escalated_at IS NULL AND created_at < ?", models.AlertActive, olderThan).
		Order("created_at ASC, id ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("store: alerts to escalate: %w", err)
	}
	return alerts, nil
}

// MarkEscalated stamps escalated_at once. It reports false when another
// sweep got there first.
func (s *Store) MarkEscalated(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.OperationalAlert{}).
		Where("id = ? AND escalated_at IS NULL", id).
		Updates(map[string]interface{}{"escalated_at": s.now(), "updated_at": s.now()})
	if result.Error != nil {
		return false, fmt.Errorf("store: mark alert %d escalated: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// LogAPICall records an outbound delivery attempt.
func (s *Store) LogAPICall(ctx context.Context, entry *models.APICallLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("store: log %s call: %w", entry.APIName, err)
	}
	return nil
}

func getAlert(tx *gorm.DB, id uint) (*models.OperationalAlert, error) {
	var a models.OperationalAlert
	if err := tx.Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrAlertNotFound, id)
		}
		return nil, fmt.Errorf("store: get alert %d: %w", id, err)
	}
	return &a, nil
}
