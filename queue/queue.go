// Package queue provides the durable work queue feeding the processing
// pipeline: at-least-once delivery with per-task lease exclusivity, a
// bounded attempt budget, and a dead-letter channel for exhausted tasks.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is one unit of asynchronous work referencing a resume record.
// Attempts counts deliveries, so it is already 1 on the first lease.
type Task struct {
	ID         uuid.UUID
	ResumeID   uuid.UUID
	Attempts   int
	LeaseToken uuid.UUID
	EnqueuedAt time.Time
}

// DeadTask is a task moved to the dead-letter channel. It is kept for
// operator inspection and replay, never silently dropped.
type DeadTask struct {
	ID             uuid.UUID `json:"id"`
	ResumeID       uuid.UUID `json:"resume_id"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	DeadLetteredAt time.Time `json:"dead_lettered_at"`
}

type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Queue delivery is at-least-once: a leased-but-unacked task becomes
// visible again after its lease expires. Ack and Nack verify the lease
// token, so a straggler whose lease lapsed cannot affect a redelivered
// task.
type Queue interface {
	Enqueue(ctx context.Context, resumeID uuid.UUID) (uuid.UUID, error)

	// Lease claims the next visible task for the given duration. Returns
	// (nil, nil) when no task is ready.
	Lease(ctx context.Context, visibility time.Duration) (*Task, error)

	// Ack removes a completed task. Fails with fault.ErrConflict when the
	// lease token no longer matches.
	Ack(ctx context.Context, task *Task) error

	// Nack releases a failed task for redelivery after an exponential
	// backoff, or moves it to the dead-letter channel once the attempt
	// budget is spent. Returns true when the task dead-lettered.
	Nack(ctx context.Context, task *Task, reason string) (bool, error)

	DeadLetters(ctx context.Context, limit int) ([]DeadTask, error)

	// Replay moves a dead-lettered task back onto the queue with a fresh
	// attempt budget.
	Replay(ctx context.Context, taskID uuid.UUID) error
}

// backoffFor computes base·2^attempt capped at the ceiling. attempt is the
// number of deliveries already consumed.
func (c Config) backoffFor(attempt int) time.Duration {
	d := c.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.BackoffCap {
			return c.BackoffCap
		}
	}
	if d > c.BackoffCap {
		return c.BackoffCap
	}
	return d
}
