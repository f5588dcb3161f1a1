package engine

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/index"
	"github.com/lazypower/recall/internal/ranking"
	"github.com/lazypower/recall/internal/store"
)

const (
	defaultMaxEntities = 20
	filesPerRelation   = 3
	expandFrom         = 5
	maxConceptLen      = 256
	maxSimilar         = 50

	previewTarget    = 200
	previewTolerance = 50
)

// ContextQuery asks for the neighbourhood of a concept.
type ContextQuery struct {
	Concept        string
	Depth          int
	MaxEntities    int
	IncludeContent bool
}

// RelatedConcept is a concept co-occurring with the queried one.
type RelatedConcept struct {
	Concept      string            `json:"concept"`
	CoOccurrence int               `json:"co_occurrence"`
	DecayWeight  float64           `json:"decay_weight"`
	Rank         float64           `json:"rank"`
	Files        []string          `json:"files"`
	Previews     map[string]string `json:"previews,omitempty"`
}

// ContextResult is the concept neighbourhood.
type ContextResult struct {
	Concept   string           `json:"concept"`
	Depth     int              `json:"depth"`
	Exists    bool             `json:"exists"`
	Relations []RelatedConcept `json:"relations"`
	Expanded  []string         `json:"expanded"`
}

// SimilarConcept is a concept close in embedding space.
type SimilarConcept struct {
	Concept     string  `json:"concept"`
	Similarity  float64 `json:"similarity"`
	DecayWeight float64 `json:"decay_weight"`
	Rank        float64 `json:"rank"`
}

// Graph answers concept-graph queries. Decay reorders relations but never
// removes them, and graph traversal never records an access.
type Graph struct {
	view     store.View
	calc     *decay.Calculator
	concepts *ConceptIndex
	embedder func() Embedder
}

// NewGraph creates a Graph.
func NewGraph(view store.View, calc *decay.Calculator, concepts *ConceptIndex, embedder func() Embedder) *Graph {
	return &Graph{view: view, calc: calc, concepts: concepts, embedder: embedder}
}

// BuildContext returns the direct relations of a concept ranked by
// co-occurrence times the decay weight of their freshest source file and,
// for depth above 1, the concepts reachable from the strongest of them.
func (g *Graph) BuildContext(ctx context.Context, q ContextQuery) (*ContextResult, error) {
	if q.Depth < 0 {
		return nil, invalid("depth must be >= 0")
	}
	if q.MaxEntities <= 0 {
		q.MaxEntities = defaultMaxEntities
	}
	concept := index.NormalizeConcept(q.Concept)
	if concept == "" {
		return nil, invalid("concept is required")
	}

	res := &ContextResult{
		Concept:   concept,
		Depth:     q.Depth,
		Relations: []RelatedConcept{},
		Expanded:  []string{},
	}
	exists, err := g.view.ConceptExists(concept)
	if err != nil {
		return nil, err
	}
	res.Exists = exists
	if !exists {
		return res, nil
	}

	direct, err := g.view.Relations(concept, q.MaxEntities)
	if err != nil {
		return nil, err
	}

	var uris []string
	for _, r := range direct {
		uris = append(uris, r.SourceURIs...)
	}
	files, err := g.view.FilesByURIs(uris)
	if err != nil {
		return nil, err
	}

	rels := make([]ranking.Relation, len(direct))
	for i, r := range direct {
		rels[i] = ranking.Relation{
			Concept: r.Concept,
			Score:   float64(r.CoOccurrence),
			Sources: sources(r.SourceURIs, files),
		}
	}
	byName := make(map[string]store.ConceptRelation, len(direct))
	for _, r := range direct {
		byName[r.Concept] = r
	}

	for _, rel := range ranking.RankRelations(g.calc, rels) {
		raw := byName[rel.Concept]
		rc := RelatedConcept{
			Concept:      rel.Concept,
			CoOccurrence: raw.CoOccurrence,
			DecayWeight:  rel.Weight,
			Rank:         rel.Rank,
			Files:        firstN(raw.SourceURIs, filesPerRelation),
		}
		if q.IncludeContent {
			rc.Previews = make(map[string]string, len(rc.Files))
			for _, uri := range rc.Files {
				if f, ok := files[uri]; ok {
					rc.Previews[uri] = SmartPreview(f.Content, previewTarget, previewTolerance)
				}
			}
		}
		res.Relations = append(res.Relations, rc)
	}

	if q.Depth > 1 {
		expanded, err := g.expand(ctx, concept, res.Relations, q.Depth, q.MaxEntities)
		if err != nil {
			return nil, err
		}
		res.Expanded = expanded
	}
	return res, nil
}

// expand walks depth-first from the top direct relations up to depth hops
// and returns the concepts not already listed, in discovery order.
func (g *Graph) expand(ctx context.Context, root string, direct []RelatedConcept, depth, limit int) ([]string, error) {
	visited := map[string]bool{root: true}
	for _, r := range direct {
		visited[r.Concept] = true
	}
	expanded := []string{}

	var walk func(concept string, level int) error
	walk = func(concept string, level int) error {
		if level >= depth || len(expanded) >= limit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := g.view.Relations(concept, 1000)
		if err != nil {
			return err
		}
		for _, n := range next {
			if visited[n.Concept] {
				continue
			}
			visited[n.Concept] = true
			if len(expanded) < limit {
				expanded = append(expanded, n.Concept)
			}
			if err := walk(n.Concept, level+1); err != nil {
				return err
			}
		}
		return nil
	}

	for i, r := range direct {
		if i == expandFrom {
			break
		}
		if err := walk(r.Concept, 1); err != nil {
			return nil, err
		}
	}
	return expanded, nil
}

// FindSimilarConcepts returns concepts near concept in embedding space,
// ranked by similarity times the decay weight of their freshest file.
func (g *Graph) FindSimilarConcepts(ctx context.Context, concept string, maxResults int) ([]SimilarConcept, error) {
	concept = strings.TrimSpace(concept)
	switch {
	case concept == "":
		return nil, invalid("concept is required")
	case len(concept) > maxConceptLen:
		return nil, invalid("concept longer than %d characters", maxConceptLen)
	case strings.Contains(concept, "[[") || strings.Contains(concept, "]]"):
		return nil, invalid("concept must not contain [[ or ]]")
	case maxResults < 1 || maxResults > maxSimilar:
		return nil, invalid("max results must be between 1 and %d", maxSimilar)
	}
	name := index.NormalizeConcept(concept)
	if name == "" {
		return nil, invalid("concept is required")
	}

	emb := g.embedder()
	if emb == nil {
		return nil, invalid("concept similarity needs an embedding provider")
	}
	if err := g.concepts.Refresh(ctx, g.view, emb); err != nil {
		return nil, err
	}
	// Over-fetch so decay can promote fresher neighbours.
	matches, err := g.concepts.Similar(ctx, emb, name, maxResults*3)
	if err != nil {
		return nil, err
	}

	rels := make([]ranking.Relation, 0, len(matches))
	for _, m := range matches {
		files, err := g.view.ConceptFiles(m.Concept)
		if err != nil {
			return nil, err
		}
		var srcs []ranking.Source
		for _, f := range files {
			srcs = append(srcs, sourceOf(f))
		}
		rels = append(rels, ranking.Relation{Concept: m.Concept, Score: m.Similarity, Sources: srcs})
	}

	ranked := ranking.RankRelations(g.calc, rels)
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	out := make([]SimilarConcept, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, SimilarConcept{
			Concept:     r.Concept,
			Similarity:  r.Score,
			DecayWeight: r.Weight,
			Rank:        r.Rank,
		})
	}
	return out, nil
}

func sources(uris []string, files map[string]store.MemoryFile) []ranking.Source {
	var out []ranking.Source
	for _, u := range uris {
		if f, ok := files[u]; ok {
			out = append(out, sourceOf(f))
		}
	}
	return out
}

func sourceOf(f store.MemoryFile) ranking.Source {
	return ranking.Source{
		URI:          f.URI,
		Path:         f.Path,
		Tier:         f.Tier,
		Created:      f.Created(),
		LastAccessed: f.LastAccessedTime(),
	}
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// SmartPreview cuts content near target characters, preferring a sentence
// end, then a paragraph break, then a word boundary, within tolerance.
func SmartPreview(content string, target, tolerance int) string {
	if len(content) <= target {
		return content
	}
	limit := target + tolerance
	if limit > len(content) {
		limit = len(content)
	}
	search := content[:limit]

	if end := lastSentenceEnd(search); end >= target-tolerance {
		return strings.TrimRight(content[:end+1], " \n")
	}
	if end := strings.LastIndex(search, "\n\n"); end >= target-tolerance {
		return strings.TrimRight(content[:end], " \n") + "..."
	}
	if end := strings.LastIndexByte(search, ' '); end > 0 {
		return strings.TrimRight(content[:end], " \n") + "..."
	}
	end := target
	for end > 0 && end < len(content) && !utf8.RuneStart(content[end]) {
		end--
	}
	return content[:end] + "..."
}

func lastSentenceEnd(s string) int {
	last := -1
	for _, m := range []string{". ", ".\n", "! ", "!\n", "? ", "?\n"} {
		if i := strings.LastIndex(s, m); i > last {
			last = i
		}
	}
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
		last = len(s) - 1
	}
	return last
}
