package idempotency

import (
	"context"
	"errors"
	"fmt"

	"github.com/efyoos/bellhop/internal/db"
	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRecordNotFound is returned by KeyStore.Get for an unknown key.
var ErrRecordNotFound = errors.New("idempotency: record not found")

// KeyStore persists idempotency records. Insert must be an atomic
// insert-if-absent: it reports false, without error, when the key exists.
type KeyStore interface {
	Insert(ctx context.Context, rec *models.IdempotencyRecord) (bool, error)
	Get(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Finalize(ctx context.Context, key string, succeeded bool, payload string, externalID *string) error
}

// GormStore is a KeyStore over the api_idempotency_keys table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Insert adds rec unless its key already exists.
func (s *GormStore) Insert(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		if db.IsDuplicateKey(result.Error) {
			return false, nil
		}
		return false, fmt.Errorf("idempotency: insert %s: %w", rec.Key, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Get loads the record for key.
func (s *GormStore) Get(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	if err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}
		return nil, fmt.Errorf("idempotency: get %s: %w", key, err)
	}
	return &rec, nil
}

// Finalize records the outcome of the call that created key.
func (s *GormStore) Finalize(ctx context.Context, key string, succeeded bool, payload string, externalID *string) error {
	result := s.db.WithContext(ctx).Model(&models.IdempotencyRecord{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]interface{}{
			"succeeded":        succeeded,
			"response_payload": payload,
			"external_id":      externalID,
		})
	if result.Error != nil {
		return fmt.Errorf("idempotency: finalize %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	return nil
}
