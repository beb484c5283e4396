package task

import "github.com/efyoos/bellhop/internal/models"

// ValidTransitions maps each status to its valid next statuses. Terminal
// statuses have no entry.
var ValidTransitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskPending:    {models.TaskAssigned, models.TaskFailed},
	models.TaskAssigned:   {models.TaskInProgress, models.TaskPending, models.TaskAssigned},
	models.TaskInProgress: {models.TaskDone, models.TaskReported, models.TaskPending, models.TaskAssigned},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to models.TaskStatus) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status from which to is reachable in one step,
// in a stable order.
func Predecessors(to models.TaskStatus) []models.TaskStatus {
	var out []models.TaskStatus
	for _, from := range []models.TaskStatus{models.TaskPending, models.TaskAssigned, models.TaskInProgress} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// ValidStatus reports whether s names a known task status.
func ValidStatus(s string) bool {
	switch models.TaskStatus(s) {
	case models.TaskPending, models.TaskAssigned, models.TaskInProgress,
		models.TaskDone, models.TaskReported, models.TaskFailed:
		return true
	}
	return false
}
