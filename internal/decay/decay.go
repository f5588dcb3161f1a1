// Package decay computes age-based retrieval weights for memory items.
//
// Every function here is total: ages, grace periods and half-lives of any
// value produce a weight in [0, 1] and never an error.
package decay

import (
	"math"
	"strings"
	"time"
)

// MinWeight is the floor for any decayed item. Weights approach it but a
// decayed item is never weighted to exactly zero.
const MinWeight = 1e-9

// Power-law defaults from ACT-R: weight halves whenever age quadruples.
const (
	DefaultPowerLawA = 1.0
	DefaultPowerLawB = 0.5
)

const day = 24 * time.Hour

// Function selects the decay curve applied past the grace period.
type Function int

const (
	FunctionExponential Function = iota
	FunctionPowerLaw
)

func (f Function) String() string {
	if f == FunctionPowerLaw {
		return "power-law"
	}
	return "exponential"
}

// ParseFunction maps a configuration value to a Function. Matching is
// case-insensitive; anything unrecognized, including "", is exponential.
func ParseFunction(s string) Function {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "power-law", "powerlaw", "power_law", "actr", "act-r":
		return FunctionPowerLaw
	default:
		return FunctionExponential
	}
}

// Exponential returns 1.0 while ageDays <= graceDays and
// 0.5^((ageDays-graceDays)/halfLifeDays) afterwards.
//
// Negative ages count as 0 and negative grace as no grace. A non-positive
// half-life suppresses the item to MinWeight as soon as grace ends.
func Exponential(ageDays, graceDays, halfLifeDays float64) float64 {
	if math.IsNaN(ageDays) || ageDays < 0 {
		ageDays = 0
	}
	if math.IsNaN(graceDays) || graceDays < 0 {
		graceDays = 0
	}
	if ageDays <= graceDays {
		return 1.0
	}
	if math.IsNaN(halfLifeDays) || halfLifeDays <= 0 {
		return MinWeight
	}
	return clamp(math.Pow(0.5, (ageDays-graceDays)/halfLifeDays))
}

// PowerLaw returns min(1, a·ageDays^-b). Anything at most one day old is
// brand new and weighs exactly 1.0.
func PowerLaw(ageDays, a, b float64) float64 {
	if math.IsNaN(ageDays) || ageDays <= 1 {
		return 1.0
	}
	return clamp(a * math.Pow(ageDays, -b))
}

// Tiered applies fn past the grace period. For power-law the curve starts at
// the end of grace: the effective age is ageDays - graceDays.
func Tiered(ageDays, graceDays, halfLifeDays int64, fn Function) float64 {
	return tiered(ageDays, graceDays, halfLifeDays, fn, DefaultPowerLawA, DefaultPowerLawB)
}

func tiered(ageDays, graceDays, halfLifeDays int64, fn Function, a, b float64) float64 {
	if fn != FunctionPowerLaw {
		return Exponential(float64(ageDays), float64(graceDays), float64(halfLifeDays))
	}
	if graceDays < 0 {
		graceDays = 0
	}
	if ageDays <= graceDays {
		return 1.0
	}
	return PowerLaw(float64(ageDays-graceDays), a, b)
}

// AgeDays returns the whole days elapsed from ref to now. A zero ref or a
// ref in the future is age 0.
func AgeDays(ref, now time.Time) int64 {
	if ref.IsZero() || !ref.Before(now) {
		return 0
	}
	return int64(now.Sub(ref) / day)
}

// ReferenceDate picks the timestamp age is measured from: the last direct
// read when there has been one, otherwise creation.
func ReferenceDate(created time.Time, lastAccessed *time.Time) time.Time {
	if lastAccessed != nil && !lastAccessed.IsZero() {
		return *lastAccessed
	}
	return created
}

func clamp(w float64) float64 {
	switch {
	case math.IsNaN(w):
		return MinWeight
	case w > 1:
		return 1
	case w < MinWeight:
		return MinWeight
	}
	return w
}
