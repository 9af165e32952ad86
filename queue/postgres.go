package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentsift/talentsift/fault"
)

// PostgresQueue stores tasks in the tasks table and claims them with
// FOR UPDATE SKIP LOCKED, so concurrent workers never lease the same row.
// Visibility is enforced by visible_at; a crashed worker's task becomes
// leasable again once its lease lapses, with no sweeper required.
type PostgresQueue struct {
	db     *pgxpool.Pool
	cfg    Config
	logger *slog.Logger
}

func NewPostgresQueue(db *pgxpool.Pool, cfg Config, logger *slog.Logger) *PostgresQueue {
	return &PostgresQueue{db: db, cfg: cfg, logger: logger}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, resumeID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	_, err := q.db.Exec(ctx, `
		INSERT INTO tasks (id, resume_id) VALUES ($1, $2)`, id, resumeID)
	if err != nil {
		return uuid.Nil, fault.Transient(err, "enqueue")
	}
	q.logger.Info("task enqueued",
		slog.String("task_id", id.String()),
		slog.String("resume_id", resumeID.String()))
	return id, nil
}

func (q *PostgresQueue) Lease(ctx context.Context, visibility time.Duration) (*Task, error) {
	token := uuid.New()
	row := q.db.QueryRow(ctx, `
		UPDATE tasks
		SET attempts = attempts + 1,
		    lease_token = $1,
		    leased_until = now() + $2,
		    visible_at = now() + $2
		WHERE id = (
			SELECT id FROM tasks
			WHERE visible_at <= now()
			ORDER BY enqueued_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, resume_id, attempts, enqueued_at`,
		token, visibility)

	var t Task
	err := row.Scan(&t.ID, &t.ResumeID, &t.Attempts, &t.EnqueuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Transient(err, "lease")
	}
	t.LeaseToken = token
	return &t, nil
}

func (q *PostgresQueue) Ack(ctx context.Context, task *Task) error {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM tasks WHERE id = $1 AND lease_token = $2`,
		task.ID, task.LeaseToken)
	if err != nil {
		return fault.Transient(err, "ack")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ack task %s: lease lost: %w", task.ID, fault.ErrConflict)
	}
	return nil
}

func (q *PostgresQueue) Nack(ctx context.Context, task *Task, reason string) (bool, error) {
	if task.Attempts >= q.cfg.MaxAttempts {
		return true, q.deadLetter(ctx, task, reason)
	}

	delay := q.cfg.backoffFor(task.Attempts)
	tag, err := q.db.Exec(ctx, `
		UPDATE tasks
		SET lease_token = NULL, leased_until = NULL,
		    visible_at = now() + $1, last_error = $2
		WHERE id = $3 AND lease_token = $4`,
		delay, reason, task.ID, task.LeaseToken)
	if err != nil {
		return false, fault.Transient(err, "nack")
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("nack task %s: lease lost: %w", task.ID, fault.ErrConflict)
	}
	q.logger.Warn("task released for retry",
		slog.String("task_id", task.ID.String()),
		slog.Int("attempts", task.Attempts),
		slog.Duration("backoff", delay),
		slog.String("reason", reason))
	return false, nil
}

// deadLetter moves the task out of the live queue atomically. Moved, not
// deleted: operators can inspect and replay it.
func (q *PostgresQueue) deadLetter(ctx context.Context, task *Task, reason string) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fault.Transient(err, "dead-letter")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM tasks WHERE id = $1 AND lease_token = $2`,
		task.ID, task.LeaseToken)
	if err != nil {
		return fault.Transient(err, "dead-letter")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead-letter task %s: lease lost: %w", task.ID, fault.ErrConflict)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dead_tasks (id, resume_id, attempts, last_error, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)`,
		task.ID, task.ResumeID, task.Attempts, reason, task.EnqueuedAt)
	if err != nil {
		return fault.Transient(err, "dead-letter")
	}
	if err := tx.Commit(ctx); err != nil {
		return fault.Transient(err, "dead-letter")
	}

	q.logger.Error("task dead-lettered",
		slog.String("task_id", task.ID.String()),
		slog.String("resume_id", task.ResumeID.String()),
		slog.Int("attempts", task.Attempts),
		slog.String("reason", reason))
	return nil
}

func (q *PostgresQueue) DeadLetters(ctx context.Context, limit int) ([]DeadTask, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, resume_id, attempts, last_error, enqueued_at, dead_lettered_at
		FROM dead_tasks ORDER BY dead_lettered_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fault.Transient(err, "list dead letters")
	}
	defer rows.Close()

	var out []DeadTask
	for rows.Next() {
		var d DeadTask
		if err := rows.Scan(&d.ID, &d.ResumeID, &d.Attempts, &d.LastError, &d.EnqueuedAt, &d.DeadLetteredAt); err != nil {
			return nil, fault.Transient(err, "list dead letters")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *PostgresQueue) Replay(ctx context.Context, taskID uuid.UUID) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fault.Transient(err, "replay")
	}
	defer tx.Rollback(ctx)

	var resumeID uuid.UUID
	err = tx.QueryRow(ctx, `
		DELETE FROM dead_tasks WHERE id = $1 RETURNING resume_id`, taskID).Scan(&resumeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("dead task %s: %w", taskID, fault.ErrNotFound)
	}
	if err != nil {
		return fault.Transient(err, "replay")
	}

	// Fresh attempt budget: the replayed task starts over.
	_, err = tx.Exec(ctx, `
		INSERT INTO tasks (id, resume_id) VALUES ($1, $2)`, taskID, resumeID)
	if err != nil {
		return fault.Transient(err, "replay")
	}
	if err := tx.Commit(ctx); err != nil {
		return fault.Transient(err, "replay")
	}

	q.logger.Info("dead task replayed", slog.String("task_id", taskID.String()))
	return nil
}
