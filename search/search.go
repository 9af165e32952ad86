// Package search implements the query path: cache, candidate retrieval
// from the vector index, authoritative hydration from the metadata store,
// and deterministic ranking.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/cache"
	"github.com/talentsift/talentsift/embedding"
	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/resume"
	"github.com/talentsift/talentsift/vectorindex"
)

type Request struct {
	Text   string   `json:"text"`
	Skills []string `json:"skills,omitempty"`
	Titles []string `json:"titles,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

type Result struct {
	ResumeID      uuid.UUID `json:"resume_id"`
	CandidateName string    `json:"candidate_name"`
	Score         float64   `json:"score"`
	Similarity    float64   `json:"similarity"`
	MatchedSkills []string  `json:"matched_skills,omitempty"`
}

// Response is what gets cached; byte-identical replays within the TTL are
// part of the cache contract.
type Response struct {
	Results []Result `json:"results"`
	// Degraded is set when the embedding dependency was unavailable and
	// ranking fell back to structured filters only.
	Degraded bool `json:"degraded"`
}

type Config struct {
	DefaultLimit        int
	MaxLimit            int
	CandidateMultiplier int
	SimilarityWeight    float64
	SkillBoost          float64
	TitleBoost          float64
	CacheTTL            time.Duration
}

type Service struct {
	store    resume.Store
	index    vectorindex.Index
	embedder embedding.Embedder
	cache    cache.Cache
	events   *event.Emitter
	cfg      Config
	logger   *slog.Logger
}

func NewService(store resume.Store, index vectorindex.Index, embedder embedding.Embedder, c cache.Cache, events *event.Emitter, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		index:    index,
		embedder: embedder,
		cache:    c,
		events:   events,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search resolves a query via cache → vector index → metadata store.
// The returned bool reports whether the response was served from cache.
// Hydration is authoritative: a record whose current status is not
// Indexed never appears in results, however stale the vector index is.
func (s *Service) Search(ctx context.Context, req Request) (*Response, bool, error) {
	norm := s.normalize(req)
	if norm.Text == "" && len(norm.Skills) == 0 && len(norm.Titles) == 0 {
		return nil, false, fault.Invalid("search query needs free text or at least one filter")
	}

	key := cacheKey(norm)
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		// Cache trouble must not fail the search.
		s.logger.Warn("search cache get failed", slog.String("error", err.Error()))
	} else if ok {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			return &resp, true, nil
		}
		s.logger.Warn("discarding undecodable cache entry", slog.String("key", key))
	}

	resp, err := s.resolve(ctx, norm)
	if err != nil {
		return nil, false, err
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("search cache set failed", slog.String("error", err.Error()))
		}
	}
	return resp, false, nil
}

func (s *Service) resolve(ctx context.Context, norm Request) (*Response, error) {
	degraded := false
	var candidates []vectorindex.Candidate

	if norm.Text != "" {
		vec, err := s.embedder.Embed(ctx, norm.Text)
		switch {
		case err == nil:
			k := norm.Limit * s.cfg.CandidateMultiplier
			if k < norm.Limit {
				k = norm.Limit
			}
			candidates, err = s.index.Query(ctx, vec, k, norm.Skills)
			if err != nil {
				return nil, err
			}
		case fault.IsUnavailable(err) || fault.IsTransient(err):
			// Documented fallback: filter-only search instead of failure.
			s.events.Emit(uuid.Nil, event.SearchDegraded, "embedding unavailable, filter-only results")
			degraded = true
		default:
			return nil, err
		}
	}

	var results []Result
	if norm.Text != "" && !degraded {
		results = s.hydrate(ctx, candidates, norm)
	} else {
		var err error
		results, err = s.filterOnly(ctx, norm)
		if err != nil {
			return nil, err
		}
	}

	s.rank(results, norm)
	if len(results) > norm.Limit {
		results = results[:norm.Limit]
	}
	if results == nil {
		results = []Result{}
	}
	return &Response{Results: results, Degraded: degraded}, nil
}

// hydrate loads each candidate from the metadata store and keeps only
// records that are currently Indexed and match every structured filter.
func (s *Service) hydrate(ctx context.Context, candidates []vectorindex.Candidate, norm Request) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		rec, err := s.store.Get(ctx, c.ResumeID)
		if err != nil {
			if !fault.IsNotFound(err) {
				s.logger.Warn("hydration failed for candidate",
					slog.String("resume_id", c.ResumeID.String()),
					slog.String("error", err.Error()))
			}
			continue
		}
		if rec.Status != resume.StatusIndexed {
			continue
		}
		if !matchesFilters(rec, norm) {
			continue
		}
		results = append(results, Result{
			ResumeID:      rec.ID,
			CandidateName: rec.CandidateName,
			Similarity:    c.Similarity,
			MatchedSkills: matchedSkills(rec, norm.Skills),
		})
	}
	return results
}

func (s *Service) filterOnly(ctx context.Context, norm Request) ([]Result, error) {
	// Over-fetch to leave room for the title filter applied below.
	fetch := norm.Limit * s.cfg.CandidateMultiplier
	if fetch < norm.Limit {
		fetch = norm.Limit
	}
	records, err := s.store.ListIndexedByFilter(ctx, norm.Skills, fetch)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		if !matchesFilters(rec, norm) {
			continue
		}
		results = append(results, Result{
			ResumeID:      rec.ID,
			CandidateName: rec.CandidateName,
			MatchedSkills: matchedSkills(rec, norm.Skills),
		})
	}
	return results, nil
}

// matchesFilters requires every requested skill and, when titles are
// given, at least one title keyword appearing in the record's titles.
func matchesFilters(rec *resume.Record, norm Request) bool {
	if rec.Status != resume.StatusIndexed {
		return false
	}
	have := make(map[string]struct{}, len(rec.Skills))
	for _, s := range rec.Skills {
		have[strings.ToLower(s)] = struct{}{}
	}
	for _, want := range norm.Skills {
		if _, ok := have[want]; !ok {
			return false
		}
	}
	if len(norm.Titles) == 0 {
		return true
	}
	for _, want := range norm.Titles {
		for _, t := range rec.Titles {
			if strings.Contains(strings.ToLower(t), want) {
				return true
			}
		}
	}
	return false
}

func matchedSkills(rec *resume.Record, requested []string) []string {
	if len(requested) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(rec.Skills))
	for _, s := range rec.Skills {
		have[strings.ToLower(s)] = struct{}{}
	}
	var out []string
	for _, want := range requested {
		if _, ok := have[want]; ok {
			out = append(out, want)
		}
	}
	sort.Strings(out)
	return out
}

// rank scores by weighted similarity plus structured-match boosts,
// breaking ties by identifier for determinism.
func (s *Service) rank(results []Result, norm Request) {
	for i := range results {
		results[i].Score = s.cfg.SimilarityWeight * results[i].Similarity
		if len(norm.Skills) > 0 {
			overlap := float64(len(results[i].MatchedSkills)) / float64(len(norm.Skills))
			results[i].Score += s.cfg.SkillBoost * overlap
		}
		if len(norm.Titles) > 0 {
			results[i].Score += s.cfg.TitleBoost
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ResumeID.String() < results[j].ResumeID.String()
		}
		return results[i].Score > results[j].Score
	})
}

func (s *Service) normalize(req Request) Request {
	norm := Request{
		Text:   strings.Join(strings.Fields(strings.ToLower(req.Text)), " "),
		Skills: normalizeTerms(req.Skills),
		Titles: normalizeTerms(req.Titles),
		Limit:  req.Limit,
	}
	if norm.Limit <= 0 {
		norm.Limit = s.cfg.DefaultLimit
	}
	if norm.Limit > s.cfg.MaxLimit {
		norm.Limit = s.cfg.MaxLimit
	}
	return norm
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{})
	for _, t := range terms {
		t = strings.TrimSpace(strings.ToLower(t))
		if t != "" {
			seen[t] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func cacheKey(norm Request) string {
	data, _ := json.Marshal(norm)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
