package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/blobstore"
	"github.com/talentsift/talentsift/embedding"
	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/resume"
	"github.com/talentsift/talentsift/vectorindex"
)

const reconcileBatchSize = 500

// Reconciler repairs drift between the metadata store and the derived
// vector index: it removes vectors whose record is gone or no longer
// Indexed, and re-embeds Indexed records whose vector is missing. Either
// direction of drift is possible after an index rebuild or a crash between
// the upsert and the status flip.
type Reconciler struct {
	store    resume.Store
	index    vectorindex.Index
	blobs    blobstore.Store
	embedder embedding.Embedder
	events   *event.Emitter
	interval time.Duration
	logger   *slog.Logger
}

func NewReconciler(store resume.Store, index vectorindex.Index, blobs blobstore.Store,
	embedder embedding.Embedder, events *event.Emitter, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		index:    index,
		blobs:    blobs,
		embedder: embedder,
		events:   events,
		interval: interval,
		logger:   logger,
	}
}

// reindexer is implemented by index backends with a physical ANN index to
// maintain. The in-memory backend has none.
type reindexer interface {
	ReindexIfNeeded(ctx context.Context) error
}

// Run ticks until the context is cancelled. A failed sweep logs and waits
// for the next tick instead of stopping the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := r.Reconcile(ctx); err != nil {
			r.logger.Error("reconcile sweep failed", slog.String("error", err.Error()))
		}
		if rx, ok := r.index.(reindexer); ok {
			if err := rx.ReindexIfNeeded(ctx); err != nil {
				r.logger.Error("index maintenance failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Reconcile runs one full sweep in both directions.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	indexed, err := r.index.ListIDs(ctx)
	if err != nil {
		return err
	}
	haveVector := make(map[uuid.UUID]struct{}, len(indexed))

	for _, id := range indexed {
		rec, err := r.store.Get(ctx, id)
		switch {
		case fault.IsNotFound(err):
			if err := r.index.Delete(ctx, id); err != nil {
				return err
			}
			r.events.Emit(id, event.VectorReconciled, "removed vector for deleted record")
			continue
		case err != nil:
			return err
		}
		if rec.Status != resume.StatusIndexed {
			if err := r.index.Delete(ctx, id); err != nil {
				return err
			}
			r.events.Emit(id, event.VectorReconciled, "removed vector for non-indexed record")
			continue
		}
		haveVector[id] = struct{}{}
	}

	missing, err := r.store.ListIDsByStatus(ctx, resume.StatusIndexed, reconcileBatchSize)
	if err != nil {
		return err
	}
	for _, id := range missing {
		if _, ok := haveVector[id]; ok {
			continue
		}
		if err := r.rebuildVector(ctx, id); err != nil {
			// Skip and retry next sweep; one stubborn record must not
			// starve the rest of the batch.
			r.logger.Warn("vector rebuild failed",
				slog.String("resume_id", id.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (r *Reconciler) rebuildVector(ctx context.Context, id uuid.UUID) error {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != resume.StatusIndexed || rec.ProcessedKey == "" {
		return nil
	}
	text, err := r.blobs.Get(ctx, rec.ProcessedKey)
	if err != nil {
		return err
	}
	vec, err := r.embedder.Embed(ctx, string(text))
	if err != nil {
		return err
	}
	if err := r.index.Upsert(ctx, rec.ID, vec, rec.Skills, rec.Titles); err != nil {
		return err
	}
	r.events.Emit(rec.ID, event.VectorReconciled, "rebuilt missing vector")
	return nil
}
