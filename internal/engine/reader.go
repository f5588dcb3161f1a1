package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/index"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/store"
)

// Memory is a file returned by a direct read.
type Memory struct {
	URI          string     `json:"uri"`
	Path         string     `json:"path"`
	Title        string     `json:"title"`
	Tier         string     `json:"tier"`
	Content      string     `json:"content"`
	Concepts     []string   `json:"concepts"`
	Created      time.Time  `json:"created"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	// DecayWeight is the weight the memory had when it was requested.
	DecayWeight float64 `json:"decay_weight"`
}

// Reader serves direct reads. It is the only component that records
// accesses, and it never filters by age.
type Reader struct {
	view     store.View
	accesses store.AccessRecorder
	calc     *decay.Calculator
}

// NewReader creates a Reader. It is the only holder of an AccessRecorder.
func NewReader(view store.View, accesses store.AccessRecorder, calc *decay.Calculator) *Reader {
	return &Reader{view: view, accesses: accesses, calc: calc}
}

// Read returns the memory named by id (a memory:// URI, a relative path or
// a title slug) with its content verbatim, then marks it accessed. Failing
// to record the access does not fail the read.
func (r *Reader) Read(ctx context.Context, id string) (*Memory, error) {
	f, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	metrics.DirectReads.Inc()

	concepts, err := r.view.FileConcepts(f.ID)
	if err != nil {
		return nil, err
	}

	m := &Memory{
		URI:          f.URI,
		Path:         f.Path,
		Title:        f.Title,
		Tier:         decay.ResolveItemTier(f.Tier, f.Path).String(),
		Content:      f.Content,
		Concepts:     concepts,
		Created:      f.Created(),
		LastAccessed: f.LastAccessedTime(),
		DecayWeight:  r.calc.ItemWeight(f.Tier, f.Path, f.Created(), f.LastAccessedTime()),
	}
	if m.Concepts == nil {
		m.Concepts = []string{}
	}

	now := r.calc.Now()
	if err := r.accesses.SetLastAccessed(f.URI, now); err != nil {
		log.Printf("read: record access %s: %v", f.URI, err)
	} else {
		m.LastAccessed = &now
	}
	return m, nil
}

func (r *Reader) resolve(id string) (*store.MemoryFile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid("memory id is required")
	}
	if strings.HasPrefix(id, "memory://") {
		return r.view.FileByURI(strings.TrimSuffix(id, ".md"))
	}

	p := strings.TrimPrefix(strings.ReplaceAll(id, `\`, "/"), "/")
	if !strings.HasSuffix(p, ".md") {
		p += ".md"
	}
	f, err := r.view.FileByPath(p)
	if err == nil || !errors.Is(err, store.ErrNotFound) || strings.Contains(id, "/") {
		return f, err
	}

	files, err := r.view.FilesBySlug(index.Slugify(id))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("memory %q: %w", id, store.ErrNotFound)
	}
	if len(files) > 1 {
		log.Printf("read: %q matches %d memories, using %s", id, len(files), files[0].URI)
	}
	return &files[0], nil
}
