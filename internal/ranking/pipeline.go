// Package ranking turns backend match scores into decay-weighted result pages.
package ranking

import (
	"sort"
	"strings"
	"time"
)

// Weigher computes the decay weight of a stored item.
// *decay.Calculator satisfies it.
type Weigher interface {
	ItemWeight(tag, path string, created time.Time, lastAccessed *time.Time) float64
}

// Candidate is one backend match awaiting ranking.
type Candidate struct {
	URI          string
	Path         string
	Tier         string // explicit tier tag, empty for legacy rows
	Title        string
	Snippet      string
	Created      time.Time
	LastAccessed *time.Time
	Score        float64 // content-match score from the backend
}

// Result is a ranked candidate.
type Result struct {
	Candidate
	DecayWeight float64
	FinalScore  float64
}

// Stage selects which score the minimum-score filter compares against.
type Stage int

const (
	// PostDecay filters on FinalScore.
	PostDecay Stage = iota
	// PreDecay filters on the backend content score.
	PreDecay
)

func (s Stage) String() string {
	if s == PreDecay {
		return "pre"
	}
	return "post"
}

// ParseStage parses "pre"/"pre-decay"/"content" as PreDecay; anything else
// is PostDecay.
func ParseStage(s string) Stage {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pre", "pre-decay", "predecay", "content":
		return PreDecay
	}
	return PostDecay
}

const defaultPageSize = 10

// Options controls filtering and pagination.
type Options struct {
	MinScore float64
	Stage    Stage
	Page     int // 1-based; values below 1 mean 1
	PageSize int // values <= 0 mean 10
}

func (o Options) page() int {
	if o.Page < 1 {
		return 1
	}
	return o.Page
}

func (o Options) pageSize() int {
	if o.PageSize <= 0 {
		return defaultPageSize
	}
	return o.PageSize
}

// Ranked is one page of results.
type Ranked struct {
	Results  []Result
	Total    int // matches surviving the filter, across all pages
	Page     int
	PageSize int
}

// Pipeline applies decay weighting, ordering, filtering and pagination.
// It holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	weigher Weigher
}

// New returns a Pipeline weighting items with w.
func New(w Weigher) *Pipeline {
	return &Pipeline{weigher: w}
}

// Rank weights every candidate, orders by final score descending (ties keep
// backend order), drops those under the minimum score and returns the
// requested page.
func (p *Pipeline) Rank(cands []Candidate, opts Options) Ranked {
	results := make([]Result, 0, len(cands))
	for _, c := range cands {
		w := p.weigher.ItemWeight(c.Tier, c.Path, c.Created, c.LastAccessed)
		results = append(results, Result{
			Candidate:   c,
			DecayWeight: w,
			FinalScore:  c.Score * w,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	kept := results[:0]
	for _, r := range results {
		s := r.FinalScore
		if opts.Stage == PreDecay {
			s = r.Score
		}
		if s >= opts.MinScore {
			kept = append(kept, r)
		}
	}

	page, size := opts.page(), opts.pageSize()
	out := Ranked{Total: len(kept), Page: page, PageSize: size}

	// Compare before multiplying so huge pages cannot overflow start.
	if len(kept) == 0 || page-1 > (len(kept)-1)/size {
		return out
	}
	start := (page - 1) * size
	end := start + size
	if end > len(kept) {
		end = len(kept)
	}
	out.Results = kept[start:end]
	return out
}
