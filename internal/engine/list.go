package engine

import (
	"context"
	"time"

	"github.com/lazypower/recall/internal/decay"
	"github.com/lazypower/recall/internal/store"
)

// MemoryInfo describes a stored memory without its content.
type MemoryInfo struct {
	URI          string     `json:"uri"`
	Path         string     `json:"path"`
	Title        string     `json:"title"`
	Tier         string     `json:"tier"`
	Size         int64      `json:"size"`
	Created      time.Time  `json:"created"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	DecayWeight  float64    `json:"decay_weight"`
}

// Lister lists memories with their current decay weight. Listing is not an
// access.
type Lister struct {
	view store.View
	calc *decay.Calculator
}

// NewLister creates a Lister.
func NewLister(view store.View, calc *decay.Calculator) *Lister {
	return &Lister{view: view, calc: calc}
}

// List returns the memories under folder (all when empty), newest first.
func (l *Lister) List(_ context.Context, folder string) ([]MemoryInfo, error) {
	files, err := l.view.ListFiles(folder)
	if err != nil {
		return nil, err
	}
	out := make([]MemoryInfo, 0, len(files))
	for _, f := range files {
		out = append(out, MemoryInfo{
			URI:          f.URI,
			Path:         f.Path,
			Title:        f.Title,
			Tier:         decay.ResolveItemTier(f.Tier, f.Path).String(),
			Size:         f.Size,
			Created:      f.Created(),
			LastAccessed: f.LastAccessedTime(),
			DecayWeight:  l.calc.ItemWeight(f.Tier, f.Path, f.Created(), f.LastAccessedTime()),
		})
	}
	return out, nil
}
