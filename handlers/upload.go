package handlers

import (
	"bytes"
	"crypto/sha256"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/blobstore"
	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/extractor"
	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/queue"
	"github.com/talentsift/talentsift/resume"
)

type UploadConfig struct {
	MaxUploadBytes int64
	Dedup          bool
}

// UploadHandler accepts resume documents and enqueues them for
// asynchronous processing. The durable write order is blob first, then
// record, then task: a crash between steps leaves an orphan blob or an
// Uploaded record without a task, never a task pointing at nothing.
type UploadHandler struct {
	store  resume.Store
	blobs  blobstore.Store
	queue  queue.Queue
	events *event.Emitter
	cfg    UploadConfig
	logger *slog.Logger
}

func NewUploadHandler(store resume.Store, blobs blobstore.Store, q queue.Queue,
	events *event.Emitter, cfg UploadConfig, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		store:  store,
		blobs:  blobs,
		queue:  q,
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

type uploadResponse struct {
	ID       uuid.UUID     `json:"id"`
	Status   resume.Status `json:"status"`
	Filename string        `json:"filename"`
	// Duplicate is set when dedup matched an existing record; ID then
	// refers to that record.
	Duplicate bool `json:"duplicate,omitempty"`
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Received resume upload request")

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "Failed to get file from form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if !extractor.SupportedExt(ext) {
		h.logger.Error("Unsupported file type",
			slog.String("filename", header.Filename),
			slog.String("extension", ext))
		writeJSONError(w, "Unsupported file type", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeJSONError(w, "Failed to read file", http.StatusBadRequest)
		return
	}
	if buf.Len() == 0 {
		writeJSONError(w, "Empty file", http.StatusBadRequest)
		return
	}

	hash := sha256.Sum256(buf.Bytes())

	if h.cfg.Dedup {
		existing, err := h.store.FindByHash(r.Context(), hash[:])
		if err == nil {
			writeJSON(w, http.StatusOK, uploadResponse{
				ID:        existing.ID,
				Status:    existing.Status,
				Filename:  existing.Filename,
				Duplicate: true,
			})
			return
		}
		if !fault.IsNotFound(err) {
			h.logger.Error("Dedup lookup failed", slog.String("error", err.Error()))
			writeFaultError(w, err)
			return
		}
	}

	id := uuid.New()
	rawKey := blobstore.RawKey(id.String())
	if err := h.blobs.Put(r.Context(), rawKey, buf.Bytes()); err != nil {
		h.logger.Error("Failed to store raw document", slog.String("error", err.Error()))
		writeFaultError(w, err)
		return
	}

	rec := &resume.Record{
		ID:          id,
		Filename:    header.Filename,
		RawKey:      rawKey,
		ContentHash: hash[:],
		Status:      resume.StatusUploaded,
	}
	if err := h.store.Create(r.Context(), rec); err != nil {
		h.logger.Error("Failed to create resume record",
			slog.String("resume_id", id.String()),
			slog.String("error", err.Error()))
		writeFaultError(w, err)
		return
	}

	if _, err := h.queue.Enqueue(r.Context(), id); err != nil {
		// The record exists but has no task; the reconciler or a manual
		// reprocess can recover it. Surface the failure to the caller.
		h.logger.Error("Failed to enqueue processing task",
			slog.String("resume_id", id.String()),
			slog.String("error", err.Error()))
		writeFaultError(w, err)
		return
	}

	h.events.Emit(id, event.TaskAccepted, header.Filename)
	h.logger.Info("Resume accepted",
		slog.String("resume_id", id.String()),
		slog.String("filename", header.Filename),
		slog.Int("size", buf.Len()))

	writeJSON(w, http.StatusAccepted, uploadResponse{
		ID:       id,
		Status:   resume.StatusUploaded,
		Filename: header.Filename,
	})
}
