package backup

import (
	"context"

	"github.com/miketropi/wp-backup/internal/model"
)

// Event kinds sent to a Notifier.
const (
	EventCompleted = "backup.completed"
	EventFailed    = "backup.failed"
)

// Event describes a finished job.
type Event struct {
	Kind    string        `json:"event"`
	Job     *model.Backup `json:"job"`
	Context StepContext   `json:"context"`
}

// Notifier receives job completion and failure events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }
