package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/talentsift/talentsift/blobstore"
	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/extractor"
	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/queue"
	"github.com/talentsift/talentsift/resume"
	"github.com/talentsift/talentsift/vectorindex"
)

// ResumeHandler serves record reads, metadata edits, document replacement
// and deletion.
type ResumeHandler struct {
	store  resume.Store
	blobs  blobstore.Store
	queue  queue.Queue
	index  vectorindex.Index
	events *event.Emitter
	cfg    UploadConfig
	logger *slog.Logger
}

func NewResumeHandler(store resume.Store, blobs blobstore.Store, q queue.Queue,
	index vectorindex.Index, events *event.Emitter, cfg UploadConfig, logger *slog.Logger) *ResumeHandler {
	return &ResumeHandler{
		store:  store,
		blobs:  blobs,
		queue:  q,
		index:  index,
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

func (h *ResumeHandler) recordID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fault.Invalid("invalid resume id %q", raw)
	}
	return id, nil
}

func (h *ResumeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := h.recordID(r)
	if err != nil {
		writeFaultError(w, err)
		return
	}
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type statusResponse struct {
	ID        uuid.UUID     `json:"id"`
	Status    resume.Status `json:"status"`
	Version   int64         `json:"version"`
	LastError string        `json:"last_error,omitempty"`
}

// Status is a cheap poll target for upload clients.
func (h *ResumeHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := h.recordID(r)
	if err != nil {
		writeFaultError(w, err)
		return
	}
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ID:        rec.ID,
		Status:    rec.Status,
		Version:   rec.Version,
		LastError: rec.LastError,
	})
}

type updateMetadataRequest struct {
	CandidateName *string `json:"candidate_name"`
	Version       int64   `json:"version"`
}

// UpdateMetadata applies a compare-and-set metadata edit. The caller sends
// the version it read; a stale version gets 409.
func (h *ResumeHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := h.recordID(r)
	if err != nil {
		writeFaultError(w, err)
		return
	}
	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rec, err := h.store.UpdateMetadata(r.Context(), id, req.Version, req.CandidateName)
	if err != nil {
		writeFaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ReplaceDocument swaps the raw document and sends the record back through
// the pipeline from Uploaded.
func (h *ResumeHandler) ReplaceDocument(w http.ResponseWriter, r *http.Request) {
	id, err := h.recordID(r)
	if err != nil {
		writeFaultError(w, err)
		return
	}

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
	rawKey := blobstore.RawKey(id.String())
	if err := h.blobs.Put(r.Context(), rawKey, buf.Bytes()); err != nil {
		h.logger.Error("Failed to store replacement document",
			slog.String("resume_id", id.String()),
			slog.String("error", err.Error()))
		writeFaultError(w, err)
		return
	}

	rec, err := h.store.ResetForReprocess(r.Context(), id, rawKey, hash[:], header.Filename)
	if err != nil {
		writeFaultError(w, err)
		return
	}

	// Drop the stale vector right away so search can't surface the old
	// document's match while the new one is in flight.
	if err := h.index.Delete(r.Context(), id); err != nil {
		h.logger.Warn("Failed to drop stale vector",
			slog.String("resume_id", id.String()),
			slog.String("error", err.Error()))
	}

	if _, err := h.queue.Enqueue(r.Context(), id); err != nil {
		h.logger.Error("Failed to enqueue reprocessing task",
			slog.String("resume_id", id.String()),
			slog.String("error", err.Error()))
		writeFaultError(w, err)
		return
	}

	h.events.Emit(id, event.TaskAccepted, "document replaced: "+header.Filename)
	writeJSON(w, http.StatusAccepted, uploadResponse{
		ID:       rec.ID,
		Status:   rec.Status,
		Filename: rec.Filename,
	})
}

// Delete removes the record and its derived data. The vector goes first so
// search cannot return a candidate whose hydration would 404.
func (h *ResumeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := h.recordID(r)
	if err != nil {
		writeFaultError(w, err)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeFaultError(w, err)
		return
	}

	if err := h.index.Delete(r.Context(), id); err != nil {
		writeFaultError(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeFaultError(w, err)
		return
	}

	for _, key := range []string{rec.RawKey, rec.ProcessedKey} {
		if key == "" {
			continue
		}
		if err := h.blobs.Delete(r.Context(), key); err != nil && !fault.IsNotFound(err) {
			h.logger.Warn("Failed to delete blob",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
