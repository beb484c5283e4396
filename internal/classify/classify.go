// Package classify maps free-text guest requests onto a closed set of
// service categories.
package classify

import (
	"context"
	"strings"
)

// Categories a task can be routed to. Staff roles use the same names.
const (
	Housekeeping = "housekeeping"
	Maintenance  = "maintenance"
	RoomService  = "room_service"
	Reception    = "reception"
)

// Default is the category used for anything that cannot be classified.
const Default = Reception

// Categories lists every valid category.
var Categories = []string{Housekeeping, Maintenance, RoomService, Reception}

// Classifier returns a raw category guess for a request. Callers pass the
// result through Normalize.
type Classifier interface {
	Classify(ctx context.Context, requestText string) (string, error)
}

// Normalize coerces provider output into one of Categories.
func Normalize(raw string) string {
	if c, ok := Canonical(raw); ok {
		return c
	}
	return Default
}

// Canonical folds case, surrounding punctuation and spaces out of raw and
// reports whether the result is one of Categories.
func Canonical(raw string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(raw))
	c = strings.Trim(c, ".\"'` ")
	c = strings.ReplaceAll(c, " ", "_")
	return c, Valid(c)
}

// Valid reports whether c is one of Categories.
func Valid(c string) bool {
	for _, valid := range Categories {
		if c == valid {
			return true
		}
	}
	return false
}
