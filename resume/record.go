// Package resume owns the ResumeRecord model and its metadata store, the
// single source of truth for structured fields and processing status.
package resume

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical processing status for rows in resumes.
type Status string

// Stable values (store these exact strings in DB).
const (
	StatusUploaded   Status = "UPLOADED"
	StatusExtracting Status = "EXTRACTING"
	StatusEmbedding  Status = "EMBEDDING"
	StatusIndexed    Status = "INDEXED" // terminal
	StatusFailed     Status = "FAILED"  // terminal
)

// Terminal reports whether no further pipeline stage may mutate the record.
func (s Status) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// CanTransition enforces the monotonic Uploaded → Extracting → Embedding →
// Indexed chain, with Failed reachable from any non-terminal state.
// Re-processing resets to Uploaded through a version-bumping reset, not a
// transition.
func (s Status) CanTransition(to Status) bool {
	if s.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	switch s {
	case StatusUploaded:
		return to == StatusExtracting
	case StatusExtracting:
		return to == StatusEmbedding
	case StatusEmbedding:
		return to == StatusIndexed
	}
	return false
}

// Experience is one entry of a candidate's work history.
type Experience struct {
	Title   string `json:"title"`
	Company string `json:"company,omitempty"`
	From    string `json:"from,omitempty"` // YYYY or YYYY-MM
	To      string `json:"to,omitempty"`   // empty means present
}

// Fields holds the structured output of extraction.
type Fields struct {
	CandidateName string       `json:"candidate_name"`
	Skills        []string     `json:"skills"`
	Titles        []string     `json:"titles"`
	Experience    []Experience `json:"experience,omitempty"`
}

// Record is a resume's metadata row. Version increments on every write;
// writers must present the version they read (compare-and-set), so a
// straggler that lost its lease cannot clobber a redelivered run.
type Record struct {
	ID            uuid.UUID    `json:"id"`
	Filename      string       `json:"filename"`
	RawKey        string       `json:"raw_key"`
	ProcessedKey  string       `json:"processed_key,omitempty"`
	ContentHash   []byte       `json:"content_hash"`
	CandidateName string       `json:"candidate_name"`
	Skills        []string     `json:"skills"`
	Titles        []string     `json:"titles"`
	Experience    []Experience `json:"experience,omitempty"`
	Status        Status       `json:"status"`
	Version       int64        `json:"version"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
