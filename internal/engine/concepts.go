package engine

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lazypower/recall/internal/store"
)

const conceptCollection = "concepts"

// ConceptMatch is a concept near the query in embedding space.
type ConceptMatch struct {
	Concept    string
	Similarity float64
}

// ConceptIndex keeps an in-memory chromem collection of concept embeddings
// in step with the concepts table. It is rebuilt when the embedder's model
// changes.
type ConceptIndex struct {
	mu      sync.Mutex
	db      *chromem.DB
	col     *chromem.Collection
	model   string
	indexed map[string]bool // concept → present in the collection
}

// NewConceptIndex creates an empty index.
func NewConceptIndex() *ConceptIndex {
	return &ConceptIndex{indexed: make(map[string]bool)}
}

// Refresh embeds concepts added since the last refresh and drops removed ones.
func (ci *ConceptIndex) Refresh(ctx context.Context, view store.View, emb Embedder) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.col == nil || emb.Model() != ci.model {
		db := chromem.NewDB()
		col, err := db.GetOrCreateCollection(conceptCollection, nil, chromemFunc(emb))
		if err != nil {
			return fmt.Errorf("create concept collection: %w", err)
		}
		ci.db, ci.col, ci.model = db, col, emb.Model()
		ci.indexed = make(map[string]bool)
	}

	concepts, err := view.Concepts()
	if err != nil {
		return err
	}
	current := make(map[string]bool, len(concepts))
	for _, c := range concepts {
		current[c.Name] = true
	}

	var removed []string
	for name, present := range ci.indexed {
		if current[name] {
			continue
		}
		if present {
			removed = append(removed, name)
		}
		delete(ci.indexed, name)
	}
	if len(removed) > 0 {
		if err := ci.col.Delete(ctx, nil, nil, removed...); err != nil {
			return fmt.Errorf("drop concepts: %w", err)
		}
	}

	var docs []chromem.Document
	for _, c := range concepts {
		if _, seen := ci.indexed[c.Name]; seen {
			continue
		}
		vec, err := embedConcept(ctx, emb, c.Name)
		if err != nil {
			return fmt.Errorf("embed concept %s: %w", c.Name, err)
		}
		if vec == nil {
			// Nothing to compare against; remember it so it is not retried.
			ci.indexed[c.Name] = false
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        c.Name,
			Content:   c.Name,
			Embedding: vec,
		})
		ci.indexed[c.Name] = true
	}
	if len(docs) > 0 {
		if err := ci.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("index concepts: %w", err)
		}
	}
	return nil
}

// Similar returns up to n concepts closest to concept, excluding itself.
// Similarity is clamped to [0,1].
func (ci *ConceptIndex) Similar(ctx context.Context, emb Embedder, concept string, n int) ([]ConceptMatch, error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.col == nil || n <= 0 {
		return nil, nil
	}
	qvec, err := embedConcept(ctx, emb, concept)
	if err != nil {
		return nil, fmt.Errorf("embed query concept: %w", err)
	}
	if qvec == nil {
		return nil, nil
	}

	// chromem rejects nResults above the collection size.
	limit := n + 1
	if count := ci.col.Count(); count == 0 {
		return nil, nil
	} else if limit > count {
		limit = count
	}

	results, err := ci.col.QueryEmbedding(ctx, qvec, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query concepts: %w", err)
	}

	var out []ConceptMatch
	for _, r := range results {
		if r.ID == concept {
			continue
		}
		out = append(out, ConceptMatch{Concept: r.ID, Similarity: clamp01(float64(r.Similarity))})
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// embedConcept embeds a concept name as words. A zero vector yields nil.
func embedConcept(ctx context.Context, emb Embedder, concept string) ([]float32, error) {
	vec, err := emb.Embed(ctx, strings.ReplaceAll(concept, "-", " "))
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(vec))
	nonZero := false
	for i, v := range vec {
		out[i] = float32(v)
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return nil, nil
	}
	return out, nil
}

// chromemFunc adapts an Embedder to chromem's single-text embedding func.
func chromemFunc(emb Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := embedConcept(ctx, emb, text)
		if err != nil {
			return nil, err
		}
		if vec == nil {
			return nil, fmt.Errorf("no embedding for %q", text)
		}
		return vec, nil
	}
}
