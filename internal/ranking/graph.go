package ranking

import (
	"sort"
	"time"
)

// Source is a file evidencing a concept relation.
type Source struct {
	URI          string
	Path         string
	Tier         string
	Created      time.Time
	LastAccessed *time.Time
}

// Relation is a concept reached from the graph with its raw score
// (co-occurrence count or similarity).
type Relation struct {
	Concept string
	Score   float64
	Sources []Source
	Weight  float64
	Rank    float64
}

// SourceWeight is the weight of the freshest source. A relation with no
// known sources is not decayed.
func SourceWeight(w Weigher, sources []Source) float64 {
	if len(sources) == 0 {
		return 1.0
	}
	best := 0.0
	for _, s := range sources {
		if v := w.ItemWeight(s.Tier, s.Path, s.Created, s.LastAccessed); v > best {
			best = v
		}
	}
	return best
}

// RankRelations sets Weight and Rank = Score × Weight on every relation and
// orders them by Rank descending. Ties keep input order. Nothing is dropped.
func RankRelations(w Weigher, rels []Relation) []Relation {
	for i := range rels {
		rels[i].Weight = SourceWeight(w, rels[i].Sources)
		rels[i].Rank = rels[i].Score * rels[i].Weight
	}
	sort.SliceStable(rels, func(i, j int) bool {
		return rels[i].Rank > rels[j].Rank
	})
	return rels
}
