// Package engine answers retrieval requests over the indexed memories:
// search, direct reads, concept-graph context, listings and the assumption
// ledger. Every ranked answer goes through the decay-weighted pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/index"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/store"
)

// ErrInvalidInput marks requests rejected by validation.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Options configures an Engine.
type Options struct {
	MemoryRoot string
	Exclude    []string
	Embedding  EmbedderConfig
	Calculator *decay.Calculator // nil means decay.DefaultConfig on the wall clock
}

// Engine wires the storage layer, the indexer and the retrieval components.
type Engine struct {
	view     store.View
	calc     *decay.Calculator
	syncer   *index.Syncer
	embCfg   EmbedderConfig
	concepts *ConceptIndex

	mu       sync.RWMutex
	embedder Embedder

	Searcher *Searcher
	Reader   *Reader
	Graph    *Graph
	Lister   *Lister
	Ledger   *Ledger
}

// New creates an Engine over db. Only the Reader receives db's
// AccessRecorder; every other component gets a View or a narrow writer.
func New(db *store.DB, opts Options) (*Engine, error) {
	calc := opts.Calculator
	if calc == nil {
		calc = decay.NewCalculator(decay.DefaultConfig())
	}

	view := db.View()
	emb, err := NewEmbedder(opts.Embedding, view)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		view:     view,
		calc:     calc,
		syncer:   index.NewSyncer(db, opts.MemoryRoot),
		embCfg:   opts.Embedding,
		concepts: NewConceptIndex(),
		embedder: emb,
	}
	e.syncer.SetExclude(opts.Exclude)
	e.syncer.SetEmbedder(emb)

	e.Searcher = NewSearcher(view, calc, e.Embedder)
	e.Reader = NewReader(view, db.Accesses(), calc)
	e.Graph = NewGraph(view, calc, e.concepts, e.Embedder)
	e.Lister = NewLister(view, calc)
	e.Ledger = NewLedger(db, calc)
	return e, nil
}

// Embedder returns the current embedder, or nil when semantic search is off.
func (e *Engine) Embedder() Embedder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.embedder
}

// Calculator returns the decay calculator shared by all components.
func (e *Engine) Calculator() *decay.Calculator { return e.calc }

// Syncer returns the indexer, for progress hooks.
func (e *Engine) Syncer() *index.Syncer { return e.syncer }

// Sync mirrors the memory root into the store. A TF-IDF embedder is rebuilt
// from the new corpus and stale vectors are re-embedded.
func (e *Engine) Sync(ctx context.Context) (index.Stats, error) {
	timer := metrics.StartSync()
	stats, err := e.syncer.Sync(ctx)
	if err != nil {
		timer.Done(false)
		return stats, fmt.Errorf("sync: %w", err)
	}

	if _, ok := e.Embedder().(*TFIDFEmbedder); ok && stats.Changed() {
		rebuilt, err := NewTFIDFEmbedder(e.view, defaultTFIDFTerms)
		if err != nil {
			timer.Done(false)
			return stats, err
		}
		if rebuilt.Model() != e.Embedder().Model() {
			e.mu.Lock()
			e.embedder = rebuilt
			e.mu.Unlock()
			e.syncer.SetEmbedder(rebuilt)

			n, err := e.syncer.EmbedMissing(ctx)
			stats.Embedded += n
			if err != nil {
				timer.Done(false)
				return stats, fmt.Errorf("re-embed: %w", err)
			}
			log.Printf("sync: tfidf vocabulary changed, re-embedded %d files", n)
		}
	}

	timer.Done(true)
	metrics.SetIndexed(stats.Scanned, stats.Concepts)
	return stats, nil
}
