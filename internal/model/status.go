package model

// Backup job status constants. A job only ever moves from pending to one of
// the terminal statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "fail"
)

// IsTerminalStatus reports whether status can no longer change.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// Rewriting the current status is always allowed.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case "", StatusPending:
		return to == StatusPending || IsTerminalStatus(to)
	default:
		return false
	}
}
