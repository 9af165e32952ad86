// Package event emits the pipeline's audit surface: a stable tuple of
// (timestamp, record id, event kind, detail) consumed by the external
// collector. The tuple shape must not change without coordinating with
// collector consumers.
package event

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	TaskAccepted     Kind = "task_accepted"
	TaskRetried      Kind = "task_retried"
	TaskDeadLettered Kind = "task_dead_lettered"
	TaskReplayed     Kind = "task_replayed"
	StatusChanged    Kind = "status_changed"
	SearchDegraded   Kind = "search_degraded"
	VectorReconciled Kind = "vector_reconciled"
)

// Emitter writes events through the structured logger. The collector
// tails the log stream; keys are part of the contract.
type Emitter struct {
	logger *slog.Logger
}

func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{logger: logger}
}

func (e *Emitter) Emit(recordID uuid.UUID, kind Kind, detail string) {
	e.logger.Info("pipeline event",
		slog.Time("ts", time.Now().UTC()),
		slog.String("record_id", recordID.String()),
		slog.String("event", string(kind)),
		slog.String("detail", detail))
}
