package decay

import "time"

// Config holds the decay parameters for memory files. It is built once from
// application config and passed to NewCalculator.
type Config struct {
	Function            Function
	SequentialGraceDays int64
	WorkflowGraceDays   int64
	DefaultGraceDays    int64
	HalfLifeDays        int64
	PowerLawA           float64
	PowerLawB           float64
}

// DefaultConfig returns the production parameters: power-law decay, grace of
// 7/14/28 days for sequential/workflow/default content and a 30 day half-life.
func DefaultConfig() Config {
	return Config{
		Function:            FunctionPowerLaw,
		SequentialGraceDays: 7,
		WorkflowGraceDays:   14,
		DefaultGraceDays:    28,
		HalfLifeDays:        30,
		PowerLawA:           DefaultPowerLawA,
		PowerLawB:           DefaultPowerLawB,
	}
}

// Policy returns the grace period and half-life for a tier.
func (c Config) Policy(t Tier) TierPolicy {
	grace := c.DefaultGraceDays
	switch t {
	case TierSequential:
		grace = c.SequentialGraceDays
	case TierWorkflow:
		grace = c.WorkflowGraceDays
	}
	return TierPolicy{GraceDays: grace, HalfLifeDays: c.HalfLifeDays}
}

// Calculator evaluates decay weights against a clock.
type Calculator struct {
	cfg Config
	now func() time.Time
}

// NewCalculator returns a Calculator using the wall clock.
func NewCalculator(cfg Config) *Calculator {
	if cfg.PowerLawA == 0 && cfg.PowerLawB == 0 {
		cfg.PowerLawA, cfg.PowerLawB = DefaultPowerLawA, DefaultPowerLawB
	}
	return &Calculator{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of c that reads the time from now.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Calculator) Config() Config { return c.cfg }
func (c *Calculator) Now() time.Time { return c.now() }

// DecayWeight is Exponential evaluated at the age of createdAt.
func (c *Calculator) DecayWeight(createdAt time.Time, graceDays, halfLifeDays int64) float64 {
	return Exponential(float64(AgeDays(createdAt, c.now())), float64(graceDays), float64(halfLifeDays))
}

// PowerLawWeight is PowerLaw evaluated at the fractional age of createdAt.
func (c *Calculator) PowerLawWeight(createdAt time.Time, a, b float64) float64 {
	now := c.now()
	if createdAt.IsZero() || !createdAt.Before(now) {
		return 1.0
	}
	return PowerLaw(now.Sub(createdAt).Hours()/24, a, b)
}

// TieredWeight is Tiered evaluated at the age of createdAt.
func (c *Calculator) TieredWeight(createdAt time.Time, graceDays, halfLifeDays int64, fn Function) float64 {
	return tiered(AgeDays(createdAt, c.now()), graceDays, halfLifeDays, fn, c.cfg.PowerLawA, c.cfg.PowerLawB)
}

// TierWeight weights an item of tier t measured from its reference date.
func (c *Calculator) TierWeight(t Tier, created time.Time, lastAccessed *time.Time) float64 {
	p := c.cfg.Policy(t)
	ref := ReferenceDate(created, lastAccessed)
	return c.TieredWeight(ref, p.GraceDays, p.HalfLifeDays, c.cfg.Function)
}

// FileWeight resolves the tier from path and weights the file from its
// reference date with the configured function.
func (c *Calculator) FileWeight(path string, created time.Time, lastAccessed *time.Time) float64 {
	return c.TierWeight(ResolveTier(path), created, lastAccessed)
}

// ItemWeight is FileWeight for items that may carry an explicit tier tag.
func (c *Calculator) ItemWeight(tag, path string, created time.Time, lastAccessed *time.Time) float64 {
	return c.TierWeight(ResolveItemTier(tag, path), created, lastAccessed)
}

// AssumptionWeight weights an assumption by status and age.
func (c *Calculator) AssumptionWeight(createdAt time.Time, status string) float64 {
	return AssumptionWeightAt(createdAt, status, c.now())
}

// AssumptionWeightByStatus is the legacy argument order of AssumptionWeight.
func (c *Calculator) AssumptionWeightByStatus(status string, createdAt time.Time) float64 {
	return c.AssumptionWeight(createdAt, status)
}
