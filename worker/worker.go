// Package worker drives queued resume tasks through extraction, embedding
// and indexing. Processing is effectively-once: every stage re-reads the
// record and writes through compare-and-set, so a redelivered task resumes
// where the previous delivery stopped and a straggler cannot clobber it.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talentsift/talentsift/blobstore"
	"github.com/talentsift/talentsift/embedding"
	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/extractor"
	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/notify"
	"github.com/talentsift/talentsift/queue"
	"github.com/talentsift/talentsift/resume"
	"github.com/talentsift/talentsift/vectorindex"
)

type Config struct {
	Workers      int
	Visibility   time.Duration
	PollInterval time.Duration
}

type Worker struct {
	queue     queue.Queue
	store     resume.Store
	blobs     blobstore.Store
	extractor *extractor.Extractor
	embedder  embedding.Embedder
	index     vectorindex.Index
	notifier  notify.Notifier
	events    *event.Emitter
	cfg       Config
	logger    *slog.Logger
}

func New(q queue.Queue, store resume.Store, blobs blobstore.Store, ex *extractor.Extractor,
	embedder embedding.Embedder, index vectorindex.Index, notifier notify.Notifier,
	events *event.Emitter, cfg Config, logger *slog.Logger) *Worker {
	return &Worker{
		queue:     q,
		store:     store,
		blobs:     blobs,
		extractor: ex,
		embedder:  embedder,
		index:     index,
		notifier:  notifier,
		events:    events,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run starts the configured number of lease loops and blocks until the
// context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Workers; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for {
			task, err := w.queue.Lease(ctx, w.cfg.Visibility)
			if err != nil {
				w.logger.Error("lease failed", slog.String("error", err.Error()))
				break
			}
			if task == nil {
				break
			}
			w.handle(ctx, task)
		}
	}
}

// handle processes one delivery and settles it with the queue.
func (w *Worker) handle(ctx context.Context, task *queue.Task) {
	err := w.process(ctx, task.ResumeID)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, task); ackErr != nil {
			// Lease expired mid-processing. The task will be redelivered
			// and every write it would repeat is conditional, so this is
			// safe to log and move on.
			w.logger.Warn("ack after lease loss",
				slog.String("task_id", task.ID.String()),
				slog.String("error", ackErr.Error()))
		}
		return
	}
	if fault.IsConflict(err) {
		// Another delivery owns the record now; drop this one silently.
		w.logger.Info("dropping stale delivery",
			slog.String("task_id", task.ID.String()),
			slog.String("resume_id", task.ResumeID.String()))
		return
	}

	dead, nackErr := w.queue.Nack(ctx, task, err.Error())
	if nackErr != nil {
		w.logger.Error("nack failed",
			slog.String("task_id", task.ID.String()),
			slog.String("error", nackErr.Error()))
		return
	}
	if !dead {
		w.events.Emit(task.ResumeID, event.TaskRetried, err.Error())
		return
	}

	w.events.Emit(task.ResumeID, event.TaskDeadLettered, err.Error())
	if mfErr := w.store.MarkFailed(ctx, task.ResumeID, err.Error()); mfErr != nil && !fault.IsConflict(mfErr) && !fault.IsNotFound(mfErr) {
		w.logger.Error("mark failed errored",
			slog.String("resume_id", task.ResumeID.String()),
			slog.String("error", mfErr.Error()))
	}
	if alertErr := w.notifier.DeadLetterAlert(ctx, task.ResumeID, task.Attempts, err.Error()); alertErr != nil {
		w.logger.Error("dead-letter alert failed", slog.String("error", alertErr.Error()))
	}
}

// maxStageRetries bounds the re-read loop when concurrent writers keep
// advancing the record under us.
const maxStageRetries = 5

// process advances the record until it reaches a terminal status or a
// stage fails. It re-reads the record between stages so a redelivery of a
// half-finished task resumes rather than restarts.
func (w *Worker) process(ctx context.Context, resumeID uuid.UUID) error {
	for i := 0; i < maxStageRetries; i++ {
		rec, err := w.store.Get(ctx, resumeID)
		if err != nil {
			if fault.IsNotFound(err) {
				// Record deleted while the task was queued; nothing to do.
				return nil
			}
			return err
		}

		switch rec.Status {
		case resume.StatusIndexed, resume.StatusFailed:
			return nil
		case resume.StatusUploaded:
			next, err := w.store.Transition(ctx, rec.ID, resume.StatusUploaded, resume.StatusExtracting, rec.Version)
			if err != nil {
				if fault.IsConflict(err) {
					continue
				}
				return err
			}
			w.events.Emit(rec.ID, event.StatusChanged, string(resume.StatusExtracting))
			err = w.extract(ctx, next)
			if err != nil && fault.IsConflict(err) {
				continue
			}
			if err != nil {
				return err
			}
		case resume.StatusExtracting:
			// A previous delivery died mid-extraction; redo it under the
			// current version.
			err := w.extract(ctx, rec)
			if err != nil && fault.IsConflict(err) {
				continue
			}
			if err != nil {
				return err
			}
		case resume.StatusEmbedding:
			err := w.embed(ctx, rec)
			if err != nil && fault.IsConflict(err) {
				continue
			}
			if err != nil {
				return err
			}
		default:
			return fault.Invalid("record %s in unknown status %q", rec.ID, rec.Status)
		}
	}
	return fault.Transient(fmt.Errorf("record %s kept changing under concurrent writers", resumeID), "process")
}

// extract runs the extraction stage: raw blob → normalized text and
// structured fields → processed blob → conditional metadata write.
func (w *Worker) extract(ctx context.Context, rec *resume.Record) error {
	raw, err := w.blobs.Get(ctx, rec.RawKey)
	if err != nil {
		if fault.IsNotFound(err) {
			return fault.Permanent(err, "raw document missing")
		}
		return err
	}

	doc, err := w.extractor.Extract(rec.Filename, raw)
	if err != nil {
		return err
	}

	processedKey := blobstore.ProcessedKey(rec.ID.String())
	if err := w.blobs.Put(ctx, processedKey, []byte(doc.Text)); err != nil {
		return err
	}

	if _, err := w.store.SaveExtraction(ctx, rec.ID, rec.Version, doc.Fields, processedKey); err != nil {
		return err
	}
	w.events.Emit(rec.ID, event.StatusChanged, string(resume.StatusEmbedding))
	return nil
}

// embed runs the embedding stage: processed blob → vector → index upsert →
// conditional transition to Indexed. The upsert lands before the status
// flip, so an Indexed record always has a vector unless the index is later
// lost and rebuilt.
func (w *Worker) embed(ctx context.Context, rec *resume.Record) error {
	text, err := w.blobs.Get(ctx, rec.ProcessedKey)
	if err != nil {
		if fault.IsNotFound(err) {
			return fault.Permanent(err, "processed document missing")
		}
		return err
	}

	vec, err := w.embedder.Embed(ctx, string(text))
	if err != nil {
		return err
	}

	if err := w.index.Upsert(ctx, rec.ID, vec, rec.Skills, rec.Titles); err != nil {
		return err
	}

	if _, err := w.store.Transition(ctx, rec.ID, resume.StatusEmbedding, resume.StatusIndexed, rec.Version); err != nil {
		return err
	}
	w.events.Emit(rec.ID, event.StatusChanged, string(resume.StatusIndexed))
	return nil
}
