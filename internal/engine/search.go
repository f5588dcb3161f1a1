package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/index"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/ranking"
	"github.com/lazypower/recall/internal/store"
)

// Mode selects the backend that scores content.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeFullText Mode = "fulltext"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode parses a search mode. Empty means hybrid.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hybrid":
		return ModeHybrid, nil
	case "semantic", "vector":
		return ModeSemantic, nil
	case "fulltext", "full-text", "text", "fts":
		return ModeFullText, nil
	}
	return "", invalid("unknown search mode %q", s)
}

const (
	// rrfK is the reciprocal rank fusion constant.
	rrfK = 60
	// backendLimit bounds the hits taken from each backend before ranking.
	backendLimit = 200
	snippetChars = 200
)

// Query is a search request.
type Query struct {
	Text          string
	Mode          Mode
	Folder        string
	Tags          []string
	MinScore      float64
	MinScoreStage ranking.Stage
	Page          int
	PageSize      int
}

// SearchResult is one ranked memory.
type SearchResult struct {
	URI          string     `json:"uri"`
	Path         string     `json:"path"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	Tier         string     `json:"tier"`
	Score        float64    `json:"score"`
	DecayWeight  float64    `json:"decay_weight"`
	FinalScore   float64    `json:"final_score"`
	Created      time.Time  `json:"created"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// SearchResponse is one page of search results.
type SearchResponse struct {
	Query    string         `json:"query"`
	Mode     Mode           `json:"mode"`
	Results  []SearchResult `json:"results"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// Searcher runs ranked searches. It holds a read-only view, so searching
// never records an access.
type Searcher struct {
	view     store.View
	pipeline *ranking.Pipeline
	embedder func() Embedder
}

// NewSearcher creates a Searcher. embedder may return nil, in which case
// semantic scoring is skipped.
func NewSearcher(view store.View, calc *decay.Calculator, embedder func() Embedder) *Searcher {
	return &Searcher{
		view:     view,
		pipeline: ranking.New(calc),
		embedder: embedder,
	}
}

// scored is a backend hit: file ID and content score in [0,1], best first.
type scored struct {
	id    int64
	score float64
}

// Search scores content with the requested backend, applies folder and tag
// filters and returns a decay-ranked page.
func (s *Searcher) Search(ctx context.Context, q Query) (*SearchResponse, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, invalid("query is required")
	}
	if math.IsNaN(q.MinScore) || math.IsInf(q.MinScore, 0) {
		return nil, invalid("min score must be a finite number")
	}
	if q.Mode == "" {
		q.Mode = ModeHybrid
	}
	start := time.Now()

	var hits []scored
	var err error
	switch q.Mode {
	case ModeSemantic:
		if s.embedder() == nil {
			return nil, invalid("semantic search needs an embedding provider")
		}
		hits, err = s.semantic(ctx, q.Text, q.Folder)
	case ModeFullText:
		hits, err = s.fullText(q.Text, q.Folder)
	case ModeHybrid:
		hits, err = s.hybrid(ctx, q.Text, q.Folder)
	default:
		return nil, invalid("unknown search mode %q", q.Mode)
	}
	if err != nil {
		return nil, err
	}

	hits, err = s.filterTags(hits, q.Tags)
	if err != nil {
		return nil, err
	}

	cands, err := s.candidates(hits, q.Text)
	if err != nil {
		return nil, err
	}

	ranked := s.pipeline.Rank(cands, ranking.Options{
		MinScore: q.MinScore,
		Stage:    q.MinScoreStage,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	metrics.ObserveSearch(string(q.Mode), time.Since(start))

	resp := &SearchResponse{
		Query:    q.Text,
		Mode:     q.Mode,
		Results:  make([]SearchResult, 0, len(ranked.Results)),
		Total:    ranked.Total,
		Page:     ranked.Page,
		PageSize: ranked.PageSize,
	}
	for _, r := range ranked.Results {
		resp.Results = append(resp.Results, SearchResult{
			URI:          r.URI,
			Path:         r.Path,
			Title:        r.Title,
			Snippet:      r.Snippet,
			Tier:         decay.ResolveItemTier(r.Tier, r.Path).String(),
			Score:        r.Score,
			DecayWeight:  r.DecayWeight,
			FinalScore:   r.FinalScore,
			Created:      r.Created,
			LastAccessed: r.LastAccessed,
		})
	}
	return resp, nil
}

// semantic scores files by cosine similarity to the query, clamped to [0,1].
func (s *Searcher) semantic(ctx context.Context, text, folder string) ([]scored, error) {
	emb := s.embedder()
	if emb == nil {
		return nil, nil
	}
	qvec, err := emb.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vectors, err := s.view.Vectors(emb.Model())
	if err != nil {
		return nil, err
	}

	var paths map[int64]string
	if folder != "" {
		if paths, err = s.paths(vectors); err != nil {
			return nil, err
		}
	}

	var hits []scored
	for _, v := range vectors {
		if folder != "" && !inFolder(paths[v.FileID], folder) {
			continue
		}
		sim := clamp01(CosineSimilarity(qvec, v.Embedding))
		if sim > 0 {
			hits = append(hits, scored{id: v.FileID, score: sim})
		}
	}
	sortHits(hits)
	if len(hits) > backendLimit {
		hits = hits[:backendLimit]
	}
	return hits, nil
}

// fullText scores files by bm25, normalized by the best hit.
func (s *Searcher) fullText(text, folder string) ([]scored, error) {
	res, err := s.view.SearchText(text, folder, backendLimit)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	best := res[0].Score
	hits := make([]scored, 0, len(res))
	for _, h := range res {
		score := 1.0
		if best > 0 {
			score = clamp01(h.Score / best)
		}
		hits = append(hits, scored{id: h.FileID, score: score})
	}
	return hits, nil
}

// hybrid fuses the semantic and full-text rankings with reciprocal rank
// fusion, scaled so a file ranked first by both backends scores 1.
func (s *Searcher) hybrid(ctx context.Context, text, folder string) ([]scored, error) {
	sem, err := s.semantic(ctx, text, folder)
	if err != nil {
		// Full-text alone still answers the query.
		log.Printf("search: semantic leg failed, using full-text only: %v", err)
		sem = nil
	}
	ft, err := s.fullText(text, folder)
	if err != nil {
		return nil, err
	}

	fused := make(map[int64]float64)
	var order []int64
	add := func(list []scored) {
		for i, h := range list {
			if _, ok := fused[h.id]; !ok {
				order = append(order, h.id)
			}
			fused[h.id] += 1.0 / float64(rrfK+i+1)
		}
	}
	add(sem)
	add(ft)

	maxFused := 2.0 / float64(rrfK+1)
	hits := make([]scored, 0, len(order))
	for _, id := range order {
		hits = append(hits, scored{id: id, score: clamp01(fused[id] / maxFused)})
	}
	sortHits(hits)
	return hits, nil
}

func (s *Searcher) filterTags(hits []scored, tags []string) ([]scored, error) {
	var concepts []string
	for _, t := range tags {
		if c := index.NormalizeConcept(t); c != "" {
			concepts = append(concepts, c)
		}
	}
	if len(concepts) == 0 || len(hits) == 0 {
		return hits, nil
	}
	allowed, err := s.view.FilesMentioningAll(concepts)
	if err != nil {
		return nil, err
	}
	kept := hits[:0]
	for _, h := range hits {
		if allowed[h.id] {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

// candidates loads the files behind hits, keeping backend order.
func (s *Searcher) candidates(hits []scored, text string) ([]ranking.Candidate, error) {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	files, err := s.view.FilesByIDs(ids)
	if err != nil {
		return nil, err
	}

	cands := make([]ranking.Candidate, 0, len(hits))
	for _, h := range hits {
		f, ok := files[h.id]
		if !ok {
			continue
		}
		cands = append(cands, ranking.Candidate{
			URI:          f.URI,
			Path:         f.Path,
			Tier:         f.Tier,
			Title:        f.Title,
			Snippet:      snippet(f.Content, text, snippetChars),
			Created:      f.Created(),
			LastAccessed: f.LastAccessedTime(),
			Score:        h.score,
		})
	}
	return cands, nil
}

func (s *Searcher) paths(vectors []store.VectorRecord) (map[int64]string, error) {
	ids := make([]int64, len(vectors))
	for i, v := range vectors {
		ids[i] = v.FileID
	}
	files, err := s.view.FilesByIDs(ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(files))
	for id, f := range files {
		out[id] = f.Path
	}
	return out, nil
}

func sortHits(hits []scored) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
}

func inFolder(path, folder string) bool {
	f := strings.Trim(strings.ReplaceAll(folder, `\`, "/"), "/")
	if f == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(path), strings.ToLower(f)+"/")
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// snippet returns about n characters of content around the first query term
// found, or the start of the content.
func snippet(content, query string, n int) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= n {
		return content
	}

	lower := strings.ToLower(content)
	at := -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if i := strings.Index(lower, term); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}

	start := 0
	if at > n/4 {
		start = at - n/4
	}
	end := start + n
	if end > len(content) {
		end = len(content)
		start = max(0, end-n)
	}
	// Align to word boundaries.
	if start > 0 {
		if sp := strings.IndexByte(content[start:], ' '); sp >= 0 && sp < n/4 {
			start += sp + 1
		}
	}
	if end < len(content) {
		if sp := strings.LastIndexByte(content[start:end], ' '); sp > 0 {
			end = start + sp
		}
	}

	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	out := content[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}
