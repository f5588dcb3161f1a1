package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/index"
	"github.com/lazypower/recall/internal/ranking"
	"github.com/lazypower/recall/internal/store"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var fixtures = map[string]string{
	"notes/redis-fresh.md": "---\ncreated: 2025-05-31\n---\n# Redis Fresh\n\n" +
		"Redis caching strategy for sessions with [[redis]] and [[caching]].\n",
	"notes/redis-stale.md": "---\ncreated: 2024-06-01\n---\n# Redis Stale\n\n" +
		"Redis caching strategy for sessions with [[redis]] and [[caching]]. Kept for [[legacy]] clients.\n",
	"notes/postgres.md": "---\ncreated: 2025-05-20\n---\n# Postgres\n\n" +
		"Postgres caching notes on [[postgres]], [[caching]] and [[indexing]].\n",
	"thinking/sequential/2025/session.md": "---\ncreated: 2025-05-30\n---\n# Session\n\n" +
		"Thinking about [[redis]] eviction and [[postgres]] replication.\n",
}

const (
	freshURI   = "memory://notes/redis-fresh"
	staleURI   = "memory://notes/redis-stale"
	sessionURI = "memory://thinking/sequential/2025/session"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestEngine(t *testing.T, provider string) *Engine {
	t.Helper()
	now := testNow
	return newClockedEngine(t, provider, &now)
}

// newClockedEngine syncs the fixtures into an engine whose clock reads *now.
func newClockedEngine(t *testing.T, provider string, now *time.Time) *Engine {
	t.Helper()
	root := t.TempDir()
	for rel, content := range fixtures {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	e, err := New(testDB(t), Options{
		MemoryRoot: root,
		Embedding:  EmbedderConfig{Provider: provider},
		Calculator: decay.NewCalculator(decay.DefaultConfig()).WithClock(func() time.Time { return *now }),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stats, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Added != len(fixtures) {
		t.Fatalf("Added = %d, want %d", stats.Added, len(fixtures))
	}
	return e
}

func find(results []SearchResult, uri string) (SearchResult, bool) {
	for _, r := range results {
		if r.URI == uri {
			return r, true
		}
	}
	return SearchResult{}, false
}

func TestSearchRanksFreshBeforeStale(t *testing.T) {
	e := newTestEngine(t, "tfidf")
	ctx := context.Background()

	for _, mode := range []Mode{ModeFullText, ModeHybrid, ModeSemantic} {
		t.Run(string(mode), func(t *testing.T) {
			resp, err := e.Searcher.Search(ctx, Query{Text: "redis caching", Mode: mode})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(resp.Results) == 0 {
				t.Fatal("no results")
			}
			if resp.Results[0].URI != freshURI {
				t.Errorf("top result = %s, want %s", resp.Results[0].URI, freshURI)
			}
			stale, ok := find(resp.Results, staleURI)
			if !ok {
				t.Fatalf("stale memory missing from %v", resp.Results)
			}
			if stale.DecayWeight >= 1 {
				t.Errorf("stale decay weight = %f, want < 1", stale.DecayWeight)
			}
			if stale.FinalScore != stale.Score*stale.DecayWeight {
				t.Errorf("final %f != score %f * weight %f", stale.FinalScore, stale.Score, stale.DecayWeight)
			}
			for _, r := range resp.Results {
				if r.Score < 0 || r.Score > 1 {
					t.Errorf("%s: score %f outside [0,1]", r.URI, r.Score)
				}
			}
		})
	}
}

func TestSearchMinScore(t *testing.T) {
	e := newTestEngine(t, "none")
	ctx := context.Background()

	resp, err := e.Searcher.Search(ctx, Query{Text: "redis caching", Mode: ModeFullText, MinScore: 1.0})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range resp.Results {
		if r.DecayWeight < 1 {
			t.Errorf("%s admitted with decay weight %f", r.URI, r.DecayWeight)
		}
	}
	if _, ok := find(resp.Results, staleURI); ok {
		t.Error("stale memory passed a post-decay minimum of 1.0")
	}

	resp, err = e.Searcher.Search(ctx, Query{
		Text:          "redis caching",
		Mode:          ModeFullText,
		MinScore:      0.5,
		MinScoreStage: ranking.PreDecay,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, ok := find(resp.Results, staleURI); !ok {
		t.Error("pre-decay filter dropped the stale memory")
	}
}

func TestSearchFilters(t *testing.T) {
	e := newTestEngine(t, "none")
	ctx := context.Background()

	resp, err := e.Searcher.Search(ctx, Query{Text: "redis", Mode: ModeFullText, Folder: "thinking"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].URI != sessionURI {
		t.Fatalf("folder results = %+v, want only the session", resp.Results)
	}
	if resp.Results[0].Tier != "sequential" {
		t.Errorf("tier = %q, want sequential", resp.Results[0].Tier)
	}

	resp, err = e.Searcher.Search(ctx, Query{Text: "caching", Mode: ModeFullText, Tags: []string{"Indexing"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].URI != "memory://notes/postgres" {
		t.Errorf("tag results = %+v, want only postgres", resp.Results)
	}
}

func TestSearchPagination(t *testing.T) {
	e := newTestEngine(t, "none")

	resp, err := e.Searcher.Search(context.Background(), Query{Text: "redis caching", Mode: ModeFullText, Page: 2, PageSize: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total < 3 {
		t.Errorf("Total = %d, want >= 3", resp.Total)
	}
	if len(resp.Results) != 1 || resp.Page != 2 || resp.PageSize != 1 {
		t.Errorf("page = %d size = %d results = %d", resp.Page, resp.PageSize, len(resp.Results))
	}
}

func TestSearchValidation(t *testing.T) {
	e := newTestEngine(t, "none")
	ctx := context.Background()

	if _, err := e.Searcher.Search(ctx, Query{Text: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty query: err = %v, want ErrInvalidInput", err)
	}
	if _, err := e.Searcher.Search(ctx, Query{Text: "redis", Mode: ModeSemantic}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("semantic without embedder: err = %v, want ErrInvalidInput", err)
	}
	if _, err := e.Searcher.Search(ctx, Query{Text: "redis", Mode: "fuzzy"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown mode: err = %v, want ErrInvalidInput", err)
	}
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := e.Searcher.Search(ctx, Query{Text: "redis", MinScore: bad}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("min score %v: err = %v, want ErrInvalidInput", bad, err)
		}
	}
	// Hybrid degrades to full-text alone.
	resp, err := e.Searcher.Search(ctx, Query{Text: "redis"})
	if err != nil {
		t.Fatalf("hybrid without embedder: %v", err)
	}
	if resp.Mode != ModeHybrid || len(resp.Results) == 0 {
		t.Errorf("hybrid = %s with %d results", resp.Mode, len(resp.Results))
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":          ModeHybrid,
		"Hybrid":    ModeHybrid,
		"vector":    ModeSemantic,
		"full-text": ModeFullText,
		"fts":       ModeFullText,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("fuzzy"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ParseMode(fuzzy) err = %v", err)
	}
}

func TestReadOldMemory(t *testing.T) {
	now := testNow
	e := newClockedEngine(t, "none", &now)
	ctx := context.Background()

	m, err := e.Reader.Read(ctx, "notes/redis-stale")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	body := strings.SplitN(fixtures["notes/redis-stale.md"], "---\n", 3)[2]
	if strings.TrimSpace(m.Content) != strings.TrimSpace(body) {
		t.Errorf("content = %q, want %q", m.Content, body)
	}
	if m.DecayWeight >= 1 {
		t.Errorf("pre-read weight = %f, want < 1", m.DecayWeight)
	}
	if m.LastAccessed == nil || !m.LastAccessed.Equal(testNow) {
		t.Errorf("LastAccessed = %v, want %v", m.LastAccessed, testNow)
	}

	// Everything after the read runs ten days later.
	readAt := testNow
	now = testNow.Add(10 * 24 * time.Hour)

	resp, err := e.Searcher.Search(ctx, Query{Text: "redis caching", Mode: ModeFullText})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Graph.BuildContext(ctx, ContextQuery{Concept: "redis", Depth: 2, IncludeContent: true}); err != nil {
		t.Fatal(err)
	}
	g := NewGraph(e.view, e.calc, NewConceptIndex(), func() Embedder { return vecEmbedder{} })
	if _, err := g.FindSimilarConcepts(ctx, "redis", 5); err != nil {
		t.Fatal(err)
	}

	stored, err := e.view.FileByURI(staleURI)
	if err != nil {
		t.Fatal(err)
	}
	if la := stored.LastAccessedTime(); la == nil || !la.Equal(readAt) {
		t.Errorf("stored last_accessed = %v, want the read time %v", la, readAt)
	}

	// Decay restarts from the read, not from creation.
	want := e.calc.ItemWeight(stored.Tier, stored.Path, stored.Created(), &readAt)
	stale, ok := find(resp.Results, staleURI)
	if !ok || stale.DecayWeight != want {
		t.Errorf("stale after read = %+v, want weight %f", stale, want)
	}
	if want <= m.DecayWeight {
		t.Errorf("weight after read = %f, want above pre-read %f", want, m.DecayWeight)
	}
}

func TestOnlyReaderHoldsAccessRecorder(t *testing.T) {
	dbType := reflect.TypeOf((*store.DB)(nil))
	recType := reflect.TypeOf(store.AccessRecorder{})

	holders := map[string]bool{}
	for _, v := range []any{(*Engine)(nil), (*Searcher)(nil), (*Graph)(nil), (*Lister)(nil),
		(*Ledger)(nil), (*Reader)(nil), (*index.Syncer)(nil)} {
		typ := reflect.TypeOf(v).Elem()
		for i := 0; i < typ.NumField(); i++ {
			switch typ.Field(i).Type {
			case dbType:
				t.Errorf("%s.%s holds a *store.DB", typ.Name(), typ.Field(i).Name)
			case recType:
				holders[typ.Name()] = true
			}
		}
	}
	if len(holders) != 1 || !holders["Reader"] {
		t.Errorf("access recorder holders = %v, want only Reader", holders)
	}

	for _, iface := range []reflect.Type{
		reflect.TypeOf((*index.Store)(nil)).Elem(),
		reflect.TypeOf((*AssumptionStore)(nil)).Elem(),
	} {
		for _, name := range []string{"Accesses", "SetLastAccessed"} {
			if _, ok := iface.MethodByName(name); ok {
				t.Errorf("%s exposes %s", iface.Name(), name)
			}
		}
	}
}

func TestReadResolvesIdentifiers(t *testing.T) {
	e := newTestEngine(t, "none")
	ctx := context.Background()

	for _, id := range []string{freshURI, "notes/redis-fresh.md", "/notes/redis-fresh", "Redis Fresh"} {
		m, err := e.Reader.Read(ctx, id)
		if err != nil {
			t.Errorf("Read(%q): %v", id, err)
			continue
		}
		if m.URI != freshURI {
			t.Errorf("Read(%q) = %s", id, m.URI)
		}
	}

	m, err := e.Reader.Read(ctx, sessionURI)
	if err != nil {
		t.Fatal(err)
	}
	if m.Tier != "sequential" {
		t.Errorf("tier = %q", m.Tier)
	}
	if len(m.Concepts) != 2 {
		t.Errorf("concepts = %v, want postgres and redis", m.Concepts)
	}

	if _, err := e.Reader.Read(ctx, "notes/missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
	if _, err := e.Reader.Read(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty id: err = %v, want ErrInvalidInput", err)
	}
}

func TestRetrievalDoesNotRecordAccess(t *testing.T) {
	e := newTestEngine(t, "tfidf")
	ctx := context.Background()

	if _, err := e.Searcher.Search(ctx, Query{Text: "redis caching"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Graph.BuildContext(ctx, ContextQuery{Concept: "redis", Depth: 2, IncludeContent: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Lister.List(ctx, ""); err != nil {
		t.Fatal(err)
	}
	g := NewGraph(e.view, e.calc, NewConceptIndex(), func() Embedder { return vecEmbedder{} })
	if _, err := g.FindSimilarConcepts(ctx, "redis", 5); err != nil {
		t.Fatal(err)
	}

	files, err := e.view.ListFiles("")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if f.LastAccessed != nil {
			t.Errorf("%s: last_accessed set by a non-read operation", f.URI)
		}
	}
}

func TestBuildContext(t *testing.T) {
	e := newTestEngine(t, "none")
	ctx := context.Background()

	res, err := e.Graph.BuildContext(ctx, ContextQuery{Concept: "Redis", Depth: 1})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !res.Exists || res.Concept != "redis" {
		t.Fatalf("res = %+v", res)
	}
	var order []string
	for _, r := range res.Relations {
		order = append(order, r.Concept)
	}
	// legacy and postgres co-occur once each; legacy only in the stale file.
	want := []string{"caching", "postgres", "legacy"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("relations = %v, want %v", order, want)
	}
	if res.Relations[0].CoOccurrence != 2 || res.Relations[0].Rank != 2 {
		t.Errorf("caching = %+v", res.Relations[0])
	}
	if len(res.Relations[0].Files) != 2 {
		t.Errorf("caching files = %v", res.Relations[0].Files)
	}
	if res.Relations[0].Previews != nil {
		t.Error("previews returned without IncludeContent")
	}
	if len(res.Expanded) != 0 {
		t.Errorf("depth 1 expanded = %v", res.Expanded)
	}

	res, err = e.Graph.BuildContext(ctx, ContextQuery{Concept: "redis", Depth: 2, IncludeContent: true})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(res.Expanded, ",") != "indexing" {
		t.Errorf("expanded = %v, want [indexing]", res.Expanded)
	}
	for _, r := range res.Relations {
		if len(r.Previews) != len(r.Files) {
			t.Errorf("%s: %d previews for %d files", r.Concept, len(r.Previews), len(r.Files))
		}
	}
}

func TestBuildContextMissingAndInvalid(t *testing.T) {
	e := newTestEngine(t, "none")
	ctx := context.Background()

	res, err := e.Graph.BuildContext(ctx, ContextQuery{Concept: "kafka", Depth: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.Exists || len(res.Relations) != 0 || len(res.Expanded) != 0 {
		t.Errorf("missing concept = %+v", res)
	}

	if _, err := e.Graph.BuildContext(ctx, ContextQuery{Concept: "redis", Depth: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative depth: err = %v", err)
	}
	if _, err := e.Graph.BuildContext(ctx, ContextQuery{Concept: " "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank concept: err = %v", err)
	}
}

// vecEmbedder returns fixed vectors per text and a constant for the rest.
type vecEmbedder map[string][]float64

func (v vecEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if vec, ok := v[text]; ok {
		return vec, nil
	}
	return []float64{0, 0, 1}, nil
}
func (v vecEmbedder) Model() string   { return "fixed" }
func (v vecEmbedder) Dimensions() int { return 3 }

func TestFindSimilarConcepts(t *testing.T) {
	e := newTestEngine(t, "none")
	emb := vecEmbedder{
		"redis":   {1, 0, 0},
		"legacy":  {0.9, 0.43589, 0},
		"caching": {0.8, 0.6, 0},
	}
	g := NewGraph(e.view, e.calc, NewConceptIndex(), func() Embedder { return emb })

	got, err := g.FindSimilarConcepts(context.Background(), "redis", 2)
	if err != nil {
		t.Fatalf("FindSimilarConcepts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results: %+v", len(got), got)
	}
	// legacy is closer but only appears in a year-old file.
	if got[0].Concept != "caching" || got[1].Concept != "legacy" {
		t.Errorf("order = %s, %s; want caching, legacy", got[0].Concept, got[1].Concept)
	}
	if got[1].Similarity < 0.89 || got[1].Similarity > 0.91 {
		t.Errorf("legacy similarity = %f", got[1].Similarity)
	}
	if got[1].DecayWeight >= 1 || got[0].DecayWeight != 1 {
		t.Errorf("weights = %f, %f", got[0].DecayWeight, got[1].DecayWeight)
	}
	for _, c := range got {
		if c.Concept == "redis" {
			t.Error("query concept returned as its own neighbour")
		}
	}
}

func TestFindSimilarConceptsValidation(t *testing.T) {
	e := newTestEngine(t, "none")
	ctx := context.Background()
	g := NewGraph(e.view, e.calc, NewConceptIndex(), func() Embedder { return vecEmbedder{} })

	cases := []struct {
		concept string
		max     int
	}{
		{"", 10},
		{strings.Repeat("x", 257), 10},
		{"[[redis]]", 10},
		{"redis", 0},
		{"redis", 51},
	}
	for _, c := range cases {
		if _, err := g.FindSimilarConcepts(ctx, c.concept, c.max); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("(%q, %d): err = %v, want ErrInvalidInput", c.concept, c.max, err)
		}
	}

	if _, err := e.Graph.FindSimilarConcepts(ctx, "redis", 5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("no embedder: err = %v, want ErrInvalidInput", err)
	}
}

func TestList(t *testing.T) {
	e := newTestEngine(t, "none")

	infos, err := e.Lister.List(context.Background(), "notes")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("got %d memories, want 3", len(infos))
	}
	for _, m := range infos {
		if m.Size == 0 {
			t.Errorf("%s: size 0", m.URI)
		}
		if m.URI == staleURI && m.DecayWeight >= 1 {
			t.Errorf("stale weight = %f", m.DecayWeight)
		}
		if m.URI == freshURI && m.DecayWeight != 1 {
			t.Errorf("fresh weight = %f", m.DecayWeight)
		}
	}
}

func TestResyncIsIncremental(t *testing.T) {
	e := newTestEngine(t, "tfidf")
	model := e.Embedder().Model()

	stats, err := e.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Changed() || stats.Unchanged != len(fixtures) {
		t.Errorf("stats = %+v", stats)
	}
	if e.Embedder().Model() != model {
		t.Errorf("model changed without content changes: %s -> %s", model, e.Embedder().Model())
	}

	vecs, err := e.view.Vectors(model)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != len(fixtures) {
		t.Errorf("%d vectors for %s, want %d", len(vecs), model, len(fixtures))
	}
}

func TestSmartPreview(t *testing.T) {
	if got := SmartPreview("short", 200, 50); got != "short" {
		t.Errorf("short = %q", got)
	}

	sentence := strings.Repeat("a", 170) + ". " + strings.Repeat("b ", 100)
	if got := SmartPreview(sentence, 200, 50); got != strings.Repeat("a", 170)+"." {
		t.Errorf("sentence cut = %q", got)
	}

	words := strings.Repeat("word ", 100)
	got := SmartPreview(words, 200, 50)
	if !strings.HasSuffix(got, "word...") || len(got) > 253 {
		t.Errorf("word cut = %q", got)
	}
}
