package ranking

import "testing"

func TestRankRelationsMultipliesByFreshestSource(t *testing.T) {
	p := testPipeline(t)
	rels := []Relation{
		{
			Concept: "stale-heavy",
			Score:   10,
			Sources: []Source{{Path: "notes/a.md", Created: daysAgo(400)}},
		},
		{
			Concept: "fresh-light",
			Score:   6,
			Sources: []Source{
				{Path: "notes/b.md", Created: daysAgo(400)},
				{Path: "notes/c.md", Created: daysAgo(2)},
			},
		},
	}
	got := RankRelations(p.weigher, rels)

	if got[0].Concept != "fresh-light" {
		t.Errorf("first = %s, want fresh-light", got[0].Concept)
	}
	if got[0].Weight != 1.0 {
		t.Errorf("fresh-light weight = %v, want 1.0 (max over sources)", got[0].Weight)
	}
	if got[1].Rank != got[1].Score*got[1].Weight {
		t.Errorf("Rank = %v, want Score*Weight", got[1].Rank)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, decay must not drop relations", len(got))
	}
}

func TestRankRelationsNoSourcesUndecayed(t *testing.T) {
	p := testPipeline(t)
	got := RankRelations(p.weigher, []Relation{{Concept: "orphan", Score: 3}})
	if got[0].Weight != 1.0 || got[0].Rank != 3 {
		t.Errorf("orphan = %+v, want weight 1 rank 3", got[0])
	}
}

func TestRankRelationsCoOccurrenceStillCounts(t *testing.T) {
	p := testPipeline(t)
	// both fresh: co-occurrence volume decides
	rels := []Relation{
		{Concept: "b", Score: 2, Sources: []Source{{Path: "x.md", Created: daysAgo(1)}}},
		{Concept: "a", Score: 9, Sources: []Source{{Path: "y.md", Created: daysAgo(1)}}},
	}
	got := RankRelations(p.weigher, rels)
	if got[0].Concept != "a" {
		t.Errorf("first = %s, want a", got[0].Concept)
	}
}
