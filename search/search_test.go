package search

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/cache"
	"github.com/talentsift/talentsift/embedding"
	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/fault"
	"github.com/talentsift/talentsift/resume"
	"github.com/talentsift/talentsift/vectorindex"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	service  *Service
	store    *resume.MemoryStore
	index    *vectorindex.MemoryIndex
	cache    *cache.MemoryCache
	embedder *embedding.StaticEmbedder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    resume.NewMemoryStore(),
		index:    vectorindex.NewMemoryIndex(),
		cache:    cache.NewMemoryCache(),
		embedder: &embedding.StaticEmbedder{Dimension: 8},
	}
	logger := testLogger()
	env.service = NewService(env.store, env.index, env.embedder, env.cache,
		event.NewEmitter(logger), Config{
			DefaultLimit:        10,
			MaxLimit:            50,
			CandidateMultiplier: 4,
			SimilarityWeight:    0.7,
			SkillBoost:          0.25,
			TitleBoost:          0.05,
			CacheTTL:            5 * time.Minute,
		}, logger)
	return env
}

// addIndexed creates an Indexed record whose vector is the embedding of
// the given text.
func (env *testEnv) addIndexed(t *testing.T, name, text string, skills, titles []string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	rec := &resume.Record{
		ID:            uuid.New(),
		Filename:      name + ".txt",
		CandidateName: name,
		Skills:        skills,
		Titles:        titles,
		Status:        resume.StatusUploaded,
	}
	if err := env.store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	cur, err := env.store.Transition(ctx, rec.ID, resume.StatusUploaded, resume.StatusExtracting, rec.Version)
	if err != nil {
		t.Fatalf("to extracting: %v", err)
	}
	cur, err = env.store.SaveExtraction(ctx, rec.ID, cur.Version, resume.Fields{
		CandidateName: name,
		Skills:        skills,
		Titles:        titles,
	}, "processed/"+rec.ID.String())
	if err != nil {
		t.Fatalf("save extraction: %v", err)
	}
	vec, err := env.embedder.Embed(ctx, text)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if err := env.index.Upsert(ctx, rec.ID, vec, skills, titles); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := env.store.Transition(ctx, rec.ID, resume.StatusEmbedding, resume.StatusIndexed, cur.Version); err != nil {
		t.Fatalf("to indexed: %v", err)
	}
	return rec.ID
}

func TestSearchExcludesNonIndexedRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	indexedID := env.addIndexed(t, "Ada", "go engineer with kubernetes", []string{"go"}, nil)

	// A stale vector for a record that slid back to Embedding: the index
	// says yes, the store must veto it.
	stale := &resume.Record{ID: uuid.New(), CandidateName: "Bob", Skills: []string{"go"}, Status: resume.StatusEmbedding}
	if err := env.store.Create(ctx, stale); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	vec, _ := env.embedder.Embed(ctx, "go engineer with kubernetes")
	if err := env.index.Upsert(ctx, stale.ID, vec, stale.Skills, nil); err != nil {
		t.Fatalf("upsert stale: %v", err)
	}

	resp, _, err := env.service.Search(ctx, Request{Text: "go engineer with kubernetes"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	if resp.Results[0].ResumeID != indexedID {
		t.Errorf("result = %v, want %v", resp.Results[0].ResumeID, indexedID)
	}
	if resp.Degraded {
		t.Error("degraded should be false with a working embedder")
	}
}

func TestSearchSkillBoostOrdersResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Same vector for both, so only the skill boost separates them.
	text := "backend engineer"
	withSkill := env.addIndexed(t, "Ada", text, []string{"go", "kubernetes"}, nil)
	env.addIndexed(t, "Bob", text, []string{"go"}, nil)

	resp, _, err := env.service.Search(ctx, Request{Text: text, Skills: []string{"go", "kubernetes"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// The skills filter requires every requested skill, so only Ada matches.
	if len(resp.Results) != 1 || resp.Results[0].ResumeID != withSkill {
		t.Fatalf("results = %+v, want only the fully matching record", resp.Results)
	}
	if !reflect.DeepEqual(resp.Results[0].MatchedSkills, []string{"go", "kubernetes"}) {
		t.Errorf("matched skills = %v", resp.Results[0].MatchedSkills)
	}

	// With a single-skill filter both match; the extra skill gives no
	// boost, so the tie breaks on id.
	resp, _, err = env.service.Search(ctx, Request{Text: text, Skills: []string{"go"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].ResumeID.String() > resp.Results[1].ResumeID.String() {
		t.Error("equal scores should order by id ascending")
	}
}

func TestSearchCachedResponseIsByteIdentical(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addIndexed(t, "Ada", "go engineer", []string{"go"}, nil)

	req := Request{Text: "go engineer"}
	first, cached, err := env.service.Search(ctx, req)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	if cached {
		t.Fatal("first search must miss the cache")
	}

	// New data after the cached response; within the TTL it stays hidden.
	env.addIndexed(t, "Bob", "go engineer", []string{"go"}, nil)

	second, cached, err := env.service.Search(ctx, req)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if !cached {
		t.Fatal("second search must hit the cache")
	}

	firstBytes, _ := json.Marshal(first)
	secondBytes, _ := json.Marshal(second)
	if string(firstBytes) != string(secondBytes) {
		t.Errorf("cached response differs:\n%s\n%s", firstBytes, secondBytes)
	}
	if len(second.Results) != 1 {
		t.Errorf("cached response leaked new data: %d results", len(second.Results))
	}
}

func TestSearchCacheExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addIndexed(t, "Ada", "go engineer", []string{"go"}, nil)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.cache.SetClock(func() time.Time { return now })

	req := Request{Text: "go engineer"}
	if _, cached, err := env.service.Search(ctx, req); err != nil || cached {
		t.Fatalf("first search: cached=%v err=%v", cached, err)
	}

	env.addIndexed(t, "Bob", "go engineer", []string{"go"}, nil)
	now = now.Add(6 * time.Minute) // past the 5 minute TTL

	resp, cached, err := env.service.Search(ctx, req)
	if err != nil {
		t.Fatalf("search after expiry: %v", err)
	}
	if cached {
		t.Error("expired entry must not serve")
	}
	if len(resp.Results) != 2 {
		t.Errorf("fresh search results = %d, want 2", len(resp.Results))
	}
}

func TestSearchDegradesWithoutEmbedder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.addIndexed(t, "Ada", "go engineer", []string{"go"}, []string{"software engineer"})
	env.addIndexed(t, "Bob", "python analyst", []string{"python"}, nil)

	env.embedder.Err = fault.Transient(context.DeadlineExceeded, "embedding call")

	resp, _, err := env.service.Search(ctx, Request{Text: "golang expert", Skills: []string{"go"}})
	if err != nil {
		t.Fatalf("degraded search: %v", err)
	}
	if !resp.Degraded {
		t.Error("response should be marked degraded")
	}
	if len(resp.Results) != 1 || resp.Results[0].CandidateName != "Ada" {
		t.Errorf("degraded results = %+v, want the go record via filters", resp.Results)
	}
	if resp.Results[0].Similarity != 0 {
		t.Errorf("degraded similarity = %v, want 0", resp.Results[0].Similarity)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.service.Search(context.Background(), Request{Text: "   "}); !fault.IsInvalid(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestSearchTitleFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	engineer := env.addIndexed(t, "Ada", "resume text", []string{"go"}, []string{"senior software engineer"})
	env.addIndexed(t, "Bob", "resume text", []string{"go"}, []string{"product manager"})

	resp, _, err := env.service.Search(ctx, Request{Text: "resume text", Titles: []string{"engineer"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ResumeID != engineer {
		t.Errorf("results = %+v, want only the engineer", resp.Results)
	}
}

func TestSearchLimitClamping(t *testing.T) {
	env := newTestEnv(t)
	norm := env.service.normalize(Request{Text: "x", Limit: 10000})
	if norm.Limit != 50 {
		t.Errorf("limit = %d, want clamp to MaxLimit 50", norm.Limit)
	}
	norm = env.service.normalize(Request{Text: "x"})
	if norm.Limit != 10 {
		t.Errorf("limit = %d, want DefaultLimit 10", norm.Limit)
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	a := cacheKey(Request{Text: "go engineer", Skills: []string{"go", "sql"}, Limit: 10})
	b := cacheKey(Request{Text: "go engineer", Skills: []string{"go", "sql"}, Limit: 10})
	if a != b {
		t.Error("identical normalized requests must share a cache key")
	}
	c := cacheKey(Request{Text: "go engineer", Skills: []string{"sql"}, Limit: 10})
	if a == c {
		t.Error("different requests must not collide")
	}
}
