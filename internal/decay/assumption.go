package decay

import (
	"strings"
	"time"
)

// AssumptionStatus is the epistemic state of a ledger entry.
type AssumptionStatus string

const (
	StatusActive      AssumptionStatus = "active"
	StatusValidated   AssumptionStatus = "validated"
	StatusInvalidated AssumptionStatus = "invalidated"
	StatusRefined     AssumptionStatus = "refined"
)

// Statuses lists every status an assumption may be set to.
var Statuses = []AssumptionStatus{StatusActive, StatusValidated, StatusInvalidated, StatusRefined}

// ParseStatus normalizes s. ok is false when s is not a known status.
func ParseStatus(s string) (AssumptionStatus, bool) {
	st := AssumptionStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return StatusActive, false
}

var (
	invalidatedPolicy = TierPolicy{GraceDays: 7, HalfLifeDays: 14}
	activePolicy      = TierPolicy{GraceDays: 14, HalfLifeDays: 30}
)

// AssumptionWeightAt weights an assumption by status. Validated assumptions
// never decay. Invalidated ones decay fastest; everything else, including
// unknown or blank statuses, uses the active parameters.
func AssumptionWeightAt(createdAt time.Time, status string, now time.Time) float64 {
	st, _ := ParseStatus(status)
	if st == StatusValidated {
		return 1.0
	}
	p := activePolicy
	if st == StatusInvalidated {
		p = invalidatedPolicy
	}
	age := AgeDays(createdAt, now)
	return Exponential(float64(age), float64(p.GraceDays), float64(p.HalfLifeDays))
}
