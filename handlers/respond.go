package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/talentsift/talentsift/fault"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeFaultError maps the error taxonomy onto HTTP status codes.
func writeFaultError(w http.ResponseWriter, err error) {
	switch {
	case fault.IsInvalid(err):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case fault.IsNotFound(err):
		writeJSONError(w, "not found", http.StatusNotFound)
	case fault.IsConflict(err):
		writeJSONError(w, "version conflict", http.StatusConflict)
	case fault.IsUnavailable(err):
		writeJSONError(w, "dependency unavailable, try again later", http.StatusServiceUnavailable)
	default:
		writeJSONError(w, "internal error", http.StatusInternalServerError)
	}
}
