package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/fault"
)

type memoryTask struct {
	task       Task
	visibleAt  time.Time
	leaseToken uuid.UUID
	lastError  string
}

// MemoryQueue implements Queue in process memory with the same lease and
// dead-letter semantics as the Postgres backend. Not durable; intended
// for tests and local development.
type MemoryQueue struct {
	mu    sync.Mutex
	cfg   Config
	tasks map[uuid.UUID]*memoryTask
	dead  map[uuid.UUID]DeadTask
	now   func() time.Time
}

func NewMemoryQueue(cfg Config) *MemoryQueue {
	return &MemoryQueue{
		cfg:   cfg,
		tasks: make(map[uuid.UUID]*memoryTask),
		dead:  make(map[uuid.UUID]DeadTask),
		now:   time.Now,
	}
}

// SetClock swaps the time source so tests can expire leases instantly.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) Enqueue(ctx context.Context, resumeID uuid.UUID) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.New()
	q.tasks[id] = &memoryTask{
		task: Task{
			ID:         id,
			ResumeID:   resumeID,
			EnqueuedAt: q.now(),
		},
		visibleAt: q.now(),
	}
	return id, nil
}

func (q *MemoryQueue) Lease(ctx context.Context, visibility time.Duration) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var candidates []*memoryTask
	for _, mt := range q.tasks {
		if !mt.visibleAt.After(now) {
			candidates = append(candidates, mt)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].task.EnqueuedAt.Equal(candidates[j].task.EnqueuedAt) {
			return candidates[i].task.ID.String() < candidates[j].task.ID.String()
		}
		return candidates[i].task.EnqueuedAt.Before(candidates[j].task.EnqueuedAt)
	})

	mt := candidates[0]
	mt.task.Attempts++
	mt.leaseToken = uuid.New()
	mt.visibleAt = now.Add(visibility)

	t := mt.task
	t.LeaseToken = mt.leaseToken
	return &t, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	mt, ok := q.tasks[task.ID]
	if !ok || mt.leaseToken != task.LeaseToken {
		return fmt.Errorf("ack task %s: lease lost: %w", task.ID, fault.ErrConflict)
	}
	delete(q.tasks, task.ID)
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, task *Task, reason string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mt, ok := q.tasks[task.ID]
	if !ok || mt.leaseToken != task.LeaseToken {
		return false, fmt.Errorf("nack task %s: lease lost: %w", task.ID, fault.ErrConflict)
	}

	if task.Attempts >= q.cfg.MaxAttempts {
		delete(q.tasks, task.ID)
		q.dead[task.ID] = DeadTask{
			ID:             task.ID,
			ResumeID:       task.ResumeID,
			Attempts:       task.Attempts,
			LastError:      reason,
			EnqueuedAt:     task.EnqueuedAt,
			DeadLetteredAt: q.now(),
		}
		return true, nil
	}

	mt.leaseToken = uuid.Nil
	mt.visibleAt = q.now().Add(q.cfg.backoffFor(task.Attempts))
	mt.lastError = reason
	return false, nil
}

func (q *MemoryQueue) DeadLetters(ctx context.Context, limit int) ([]DeadTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadTask, 0, len(q.dead))
	for _, d := range q.dead {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeadLetteredAt.After(out[j].DeadLetteredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Replay(ctx context.Context, taskID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.dead[taskID]
	if !ok {
		return fmt.Errorf("dead task %s: %w", taskID, fault.ErrNotFound)
	}
	delete(q.dead, taskID)
	q.tasks[taskID] = &memoryTask{
		task: Task{
			ID:         taskID,
			ResumeID:   d.ResumeID,
			EnqueuedAt: q.now(),
		},
		visibleAt: q.now(),
	}
	return nil
}

// Pending reports the number of live (not dead-lettered) tasks.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
