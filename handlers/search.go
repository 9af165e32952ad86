package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/talentsift/talentsift/search"
)

// SearchHandler serves candidate match queries.
type SearchHandler struct {
	service *search.Service
	logger  *slog.Logger
}

func NewSearchHandler(service *search.Service, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{service: service, logger: logger}
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode search request",
			slog.String("error", err.Error()))
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, cached, err := h.service.Search(r.Context(), req)
	if err != nil {
		h.logger.Error("Search failed", slog.String("error", err.Error()))
		writeFaultError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode search response",
			slog.String("error", err.Error()))
	}
}
