package resume

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/fault"
)

// MemoryStore is an in-process Store with the same conditional-update
// semantics as the Postgres implementation. Used by tests and local runs
// without a database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("record %s exists: %w", rec.ID, fault.ErrConflict)
	}
	cp := *rec
	cp.Version = 1
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.records[rec.ID] = &cp
	rec.Version = 1
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) FindByHash(ctx context.Context, hash []byte) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Record
	for _, rec := range s.records {
		if bytes.Equal(rec.ContentHash, hash) {
			if best == nil || rec.CreatedAt.Before(best.CreatedAt) {
				best = rec
			}
		}
	}
	if best == nil {
		return nil, fault.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id uuid.UUID, from, to Status, version int64) (*Record, error) {
	if !from.CanTransition(to) {
		return nil, fault.Invalid("illegal status transition %s -> %s", from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	if rec.Status != from || rec.Version != version {
		return nil, fmt.Errorf("transition on record %s: %w", id, fault.ErrConflict)
	}
	rec.Status = to
	rec.Version++
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) SaveExtraction(ctx context.Context, id uuid.UUID, version int64, fields Fields, processedKey string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	if rec.Status != StatusExtracting || rec.Version != version {
		return nil, fmt.Errorf("save extraction on record %s: %w", id, fault.ErrConflict)
	}
	rec.CandidateName = fields.CandidateName
	rec.Skills = append([]string(nil), fields.Skills...)
	rec.Titles = append([]string(nil), fields.Titles...)
	rec.Experience = append([]Experience(nil), fields.Experience...)
	rec.ProcessedKey = processedKey
	rec.Status = StatusEmbedding
	rec.Version++
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fault.ErrNotFound
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("record %s already terminal: %w", id, fault.ErrConflict)
	}
	rec.Status = StatusFailed
	rec.LastError = reason
	rec.Version++
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateMetadata(ctx context.Context, id uuid.UUID, version int64, candidateName *string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	if candidateName == nil {
		cp := *rec
		return &cp, nil
	}
	if rec.Version != version {
		return nil, fmt.Errorf("update metadata on record %s: %w", id, fault.ErrConflict)
	}
	rec.CandidateName = *candidateName
	rec.Version++
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ResetForReprocess(ctx context.Context, id uuid.UUID, rawKey string, hash []byte, filename string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	rec.RawKey = rawKey
	rec.ContentHash = hash
	rec.Filename = filename
	rec.ProcessedKey = ""
	rec.Status = StatusUploaded
	rec.LastError = ""
	rec.Version++
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fault.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) ListIndexedByFilter(ctx context.Context, skills []string, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []*Record
	for _, rec := range s.records {
		if rec.Status != StatusIndexed {
			continue
		}
		if !hasAllSkills(rec.Skills, skills) {
			continue
		}
		cp := *rec
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID.String() < records[j].ID.String()
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func hasAllSkills(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[strings.ToLower(s)] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[strings.ToLower(w)]; !ok {
			return false
		}
	}
	return true
}

func (s *MemoryStore) ListIDsByStatus(ctx context.Context, status Status, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, rec := range s.records {
		if rec.Status == status {
			ids = append(ids, id)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids, nil
}
