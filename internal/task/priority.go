package task

// Urgency levels accepted on intake.
const (
	UrgencyLow    = "low"
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
	UrgencyUrgent = "urgent"
)

var urgencyPriority = map[string]int{
	UrgencyUrgent: 10,
	UrgencyHigh:   8,
	UrgencyNormal: 5,
	UrgencyLow:    3,
}

// NormalizeUrgency maps unknown or empty urgencies to normal.
func NormalizeUrgency(u string) string {
	if _, ok := urgencyPriority[u]; ok {
		return u
	}
	return UrgencyNormal
}

// Priority returns the dispatch priority for an urgency; higher runs first.
func Priority(urgency string) int {
	return urgencyPriority[NormalizeUrgency(urgency)]
}
