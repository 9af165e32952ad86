package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/queue"
)

const defaultDeadLetterLimit = 100

// DeadLetterHandler exposes the operator surface for exhausted tasks.
type DeadLetterHandler struct {
	queue  queue.Queue
	events *event.Emitter
	logger *slog.Logger
}

func NewDeadLetterHandler(q queue.Queue, events *event.Emitter, logger *slog.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{queue: q, events: events, logger: logger}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	tasks, err := h.queue.DeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list dead letters", slog.String("error", err.Error()))
		writeFaultError(w, err)
		return
	}
	if tasks == nil {
		tasks = []queue.DeadTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// Replay moves a dead-lettered task back onto the queue with a fresh
// attempt budget.
func (h *DeadLetterHandler) Replay(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		writeFaultError(w, fault.Invalid("invalid task id %q", raw))
		return
	}

	if err := h.queue.Replay(r.Context(), id); err != nil {
		h.logger.Error("Replay failed",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		writeFaultError(w, err)
		return
	}

	h.events.Emit(id, event.TaskReplayed, "operator replay")
	writeJSON(w, http.StatusOK, map[string]string{"message": "task replayed"})
}
