// Package store implements the atomic task, staff and alert primitives the
// dispatch engine relies on. Every status change is a compare-and-set on
// (status, assignment_version); callers never hold in-process locks.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efyoos/bellhop/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrTaskNotFound is returned when a task id does not exist.
	ErrTaskNotFound = errors.New("store: task not found")
	// ErrStaffNotFound is returned when a staff id does not exist.
	ErrStaffNotFound = errors.New("store: staff not found")
	// ErrNoStaff is returned when no active staff member can take a task.
	ErrNoStaff = errors.New("store: no available staff")
	// ErrConflict is returned when a compare-and-set finds the task in a
	// different status or version than the caller observed.
	ErrConflict = errors.New("store: concurrent modification")
	// ErrAlertNotFound is returned when an alert id does not exist.
	ErrAlertNotFound = errors.New("store: alert not found")
	// ErrNoAdmin is returned when a hotel has no admin to alert.
	ErrNoAdmin = errors.New("store: no hotel admin")
)

// TransitionError describes a rejected compare-and-set.
type TransitionError struct {
	TaskID          uint
	From            models.TaskStatus
	To              models.TaskStatus
	ExpectedVersion int
	CurrentVersion  int
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("store: task %d: cannot move %s -> %s at version %d (current version %d)",
		e.TaskID, e.From, e.To, e.ExpectedVersion, e.CurrentVersion)
}

// Unwrap lets errors.Is match ErrConflict.
func (e *TransitionError) Unwrap() error { return ErrConflict }

// Store wraps a GORM handle.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB returns the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	return getTask(s.db.WithContext(ctx), id)
}

// GetStaff loads a staff member by id.
func (s *Store) GetStaff(ctx context.Context, id uint) (*models.Staff, error) {
	return getStaff(s.db.WithContext(ctx), id)
}

// LogLifecycle appends an audit event for a task.
func (s *Store) LogLifecycle(ctx context.Context, taskID uint, eventType, actor, notes string) error {
	return logEvent(s.db.WithContext(ctx), taskID, eventType, actor, notes)
}

// Events returns the lifecycle events of a task in insertion order.
func (s *Store) Events(ctx context.Context, taskID uint) ([]models.LifecycleEvent, error) {
	var events []models.LifecycleEvent
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("store: events for task %d: %w", taskID, err)
	}
	return events, nil
}

func getTask(tx *gorm.DB, id uint) (*models.Task, error) {
	var t models.Task
	if err := tx.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("store: get task %d: %w", id, err)
	}
	return &t, nil
}

func getStaff(tx *gorm.DB, id uint) (*models.Staff, error) {
	var st models.Staff
	if err := tx.Where("id = ?", id).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrStaffNotFound, id)
		}
		return nil, fmt.Errorf("store: get staff %d: %w", id, err)
	}
	return &st, nil
}

func logEvent(tx *gorm.DB, taskID uint, eventType, actor, notes string) error {
	ev := models.LifecycleEvent{TaskID: taskID, EventType: eventType, Actor: actor, Notes: notes}
	if err := tx.Create(&ev).Error; err != nil {
		return fmt.Errorf("store: log %s for task %d: %w", eventType, taskID, err)
	}
	return nil
}

// conflict builds the TransitionError for a CAS that matched no row.
func conflict(tx *gorm.DB, taskID uint, to models.TaskStatus, expectedVersion int) error {
	cur, err := getTask(tx, taskID)
	if err != nil {
		return err
	}
	return &TransitionError{
		TaskID:          taskID,
		From:            cur.Status,
		To:              to,
		ExpectedVersion: expectedVersion,
		CurrentVersion:  cur.AssignmentVersion,
	}
}

func statusStrings(ss []models.TaskStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

var activeStatuses = []string{string(models.TaskAssigned), string(models.TaskInProgress)}

func isNoStaff(err error) bool { return errors.Is(err, ErrNoStaff) }
