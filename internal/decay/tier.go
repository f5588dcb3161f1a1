package decay

import "strings"

// Tier classifies a stored item for decay purposes.
type Tier int

const (
	TierDefault Tier = iota
	TierSequential
	TierWorkflow
)

func (t Tier) String() string {
	switch t {
	case TierSequential:
		return "sequential"
	case TierWorkflow:
		return "workflow"
	default:
		return "default"
	}
}

// ParseTier parses a stored tier tag. ok is false for empty or unknown tags.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential":
		return TierSequential, true
	case "workflow", "workflows":
		return TierWorkflow, true
	case "default":
		return TierDefault, true
	}
	return TierDefault, false
}

// ResolveTier classifies a storage path by substring. The path is lower-cased
// and backslashes become forward slashes, so any path containing a
// sequential or workflows segment qualifies wherever it sits.
func ResolveTier(path string) Tier {
	p := strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
	switch {
	case strings.Contains(p, "thinking/sequential"), strings.Contains(p, "/sequential/"):
		return TierSequential
	case strings.Contains(p, "thinking/workflow"), strings.Contains(p, "/workflows/"):
		return TierWorkflow
	}
	return TierDefault
}

// ResolveItemTier prefers the tier tag recorded at write time and falls back
// to path classification for untagged rows.
func ResolveItemTier(tag, path string) Tier {
	if t, ok := ParseTier(tag); ok {
		return t
	}
	return ResolveTier(path)
}

// TierPolicy is the grace period and half-life applied to one tier.
type TierPolicy struct {
	GraceDays    int64
	HalfLifeDays int64
}
