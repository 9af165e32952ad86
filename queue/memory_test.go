package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/fault"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(maxAttempts int) (*MemoryQueue, *fakeClock) {
	q := NewMemoryQueue(Config{
		MaxAttempts: maxAttempts,
		BackoffBase: time.Second,
		BackoffCap:  time.Minute,
	})
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q.SetClock(clock.Now)
	return q, clock
}

func TestLeaseExclusivity(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(5)

	if _, err := q.Enqueue(ctx, uuid.New()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := q.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("first lease: %v", err)
	}
	if first == nil {
		t.Fatal("expected a task from first lease")
	}

	second, err := q.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("second lease: %v", err)
	}
	if second != nil {
		t.Fatalf("leased task should not be visible, got %v", second.ID)
	}
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue(5)

	resumeID := uuid.New()
	if _, err := q.Enqueue(ctx, resumeID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := q.Lease(ctx, time.Minute)
	if err != nil || first == nil {
		t.Fatalf("first lease: task=%v err=%v", first, err)
	}

	clock.Advance(2 * time.Minute)

	second, err := q.Lease(ctx, time.Minute)
	if err != nil || second == nil {
		t.Fatalf("redelivery lease: task=%v err=%v", second, err)
	}
	if second.ResumeID != resumeID {
		t.Errorf("redelivered wrong task: got %v want %v", second.ResumeID, resumeID)
	}
	if second.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", second.Attempts)
	}

	// The straggler's lease token is stale now.
	if err := q.Ack(ctx, first); !fault.IsConflict(err) {
		t.Errorf("stale ack should conflict, got %v", err)
	}
	if _, err := q.Nack(ctx, first, "late failure"); !fault.IsConflict(err) {
		t.Errorf("stale nack should conflict, got %v", err)
	}

	// The live lease still settles normally.
	if err := q.Ack(ctx, second); err != nil {
		t.Errorf("live ack: %v", err)
	}
}

func TestDeadLetterAfterExactlyMaxAttempts(t *testing.T) {
	ctx := context.Background()
	maxAttempts := 3
	q, clock := newTestQueue(maxAttempts)

	resumeID := uuid.New()
	if _, err := q.Enqueue(ctx, resumeID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		task, err := q.Lease(ctx, time.Minute)
		if err != nil || task == nil {
			t.Fatalf("lease attempt %d: task=%v err=%v", attempt, task, err)
		}
		if task.Attempts != attempt {
			t.Fatalf("attempt %d: task.Attempts = %d", attempt, task.Attempts)
		}

		dead, err := q.Nack(ctx, task, "extraction failed")
		if err != nil {
			t.Fatalf("nack attempt %d: %v", attempt, err)
		}
		wantDead := attempt == maxAttempts
		if dead != wantDead {
			t.Fatalf("attempt %d: dead = %v, want %v", attempt, dead, wantDead)
		}
		clock.Advance(time.Hour) // past any backoff
	}

	if got, err := q.Lease(ctx, time.Minute); err != nil || got != nil {
		t.Errorf("dead-lettered task must not redeliver, got task=%v err=%v", got, err)
	}

	letters, err := q.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(letters))
	}
	if letters[0].ResumeID != resumeID {
		t.Errorf("dead letter resume = %v, want %v", letters[0].ResumeID, resumeID)
	}
	if letters[0].Attempts != maxAttempts {
		t.Errorf("dead letter attempts = %d, want %d", letters[0].Attempts, maxAttempts)
	}
	if letters[0].LastError != "extraction failed" {
		t.Errorf("dead letter reason = %q", letters[0].LastError)
	}
}

func TestNackBackoffDelaysRedelivery(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue(5)

	if _, err := q.Enqueue(ctx, uuid.New()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, err := q.Lease(ctx, time.Minute)
	if err != nil || task == nil {
		t.Fatalf("lease: task=%v err=%v", task, err)
	}
	if _, err := q.Nack(ctx, task, "transient"); err != nil {
		t.Fatalf("nack: %v", err)
	}

	// First failure backs off base*2^1 = 2s; not visible after 1s.
	clock.Advance(time.Second)
	if got, _ := q.Lease(ctx, time.Minute); got != nil {
		t.Fatal("task visible before backoff elapsed")
	}
	clock.Advance(2 * time.Second)
	if got, _ := q.Lease(ctx, time.Minute); got == nil {
		t.Fatal("task not visible after backoff elapsed")
	}
}

func TestReplayRestoresFreshBudget(t *testing.T) {
	ctx := context.Background()
	q, clock := newTestQueue(1)

	resumeID := uuid.New()
	taskID, err := q.Enqueue(ctx, resumeID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, err := q.Lease(ctx, time.Minute)
	if err != nil || task == nil {
		t.Fatalf("lease: task=%v err=%v", task, err)
	}
	dead, err := q.Nack(ctx, task, "boom")
	if err != nil || !dead {
		t.Fatalf("nack: dead=%v err=%v", dead, err)
	}

	if err := q.Replay(ctx, taskID); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if err := q.Replay(ctx, taskID); !fault.IsNotFound(err) {
		t.Errorf("second replay should be not found, got %v", err)
	}

	clock.Advance(time.Second)
	replayed, err := q.Lease(ctx, time.Minute)
	if err != nil || replayed == nil {
		t.Fatalf("lease after replay: task=%v err=%v", replayed, err)
	}
	if replayed.Attempts != 1 {
		t.Errorf("replayed attempts = %d, want fresh budget starting at 1", replayed.Attempts)
	}
	if replayed.ResumeID != resumeID {
		t.Errorf("replayed resume = %v, want %v", replayed.ResumeID, resumeID)
	}
}

func TestBackoffFor(t *testing.T) {
	cfg := Config{BackoffBase: 30 * time.Second, BackoffCap: 15 * time.Minute}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{5, 15 * time.Minute},
		{20, 15 * time.Minute},
	}
	for _, tt := range tests {
		if got := cfg.backoffFor(tt.attempt); got != tt.want {
			t.Errorf("backoffFor(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
