package grid

import "time"

// Window names accepted by Settings.Window.
const (
	WindowSliding = "sliding"
	WindowFull    = "full"
)

// Settings carries the solution controls of a planning case.
type Settings struct {
	// Years is the planning horizon.
	Years int `yaml:"years" json:"years" validate:"gte=1"`

	// DiscountRate κ; year y is weighted by 1/(1+κ)^(y-1).
	DiscountRate float64 `yaml:"discount_rate" json:"discountRate" validate:"gte=0"`

	// InvestmentBudget bounds the discounted investment cost.
	InvestmentBudget float64 `yaml:"investment_budget" json:"investmentBudget" validate:"gte=0"`

	// Tolerance is the relative gap at which outer, inner and alternation
	// loops stop.
	Tolerance float64 `yaml:"tolerance" json:"tolerance" validate:"gt=0"`

	OuterMaxIter int `yaml:"outer_max_iter" json:"outerMaxIter" validate:"gte=1"`
	InnerMaxIter int `yaml:"inner_max_iter" json:"innerMaxIter" validate:"gte=1"`
	ADAMaxIter   int `yaml:"ada_max_iter" json:"adaMaxIter" validate:"gte=1"`

	// RelativeGap is handed to the solver for every MILP.
	RelativeGap float64 `yaml:"relative_gap" json:"relativeGap" validate:"gte=0"`

	// TimeLimitSeconds caps each solver call; 0 means no limit.
	TimeLimitSeconds float64 `yaml:"time_limit_seconds" json:"timeLimitSeconds" validate:"gte=0"`

	// BigM relaxes the flow equation of an unbuilt candidate line.
	BigM float64 `yaml:"big_m" json:"bigM" validate:"gt=0"`

	// DualBound is the smallest box on the dual variables of the exact inner
	// master. The box is widened to cover the weighted costs of each model.
	DualBound float64 `yaml:"dual_bound" json:"dualBound" validate:"gt=0"`

	// Window selects sliding or full cut history for the relaxed masters.
	Window string `yaml:"window" json:"window" validate:"oneof=sliding full"`

	// MaxLookback limits how far a sliding window grows before it jumps to
	// the full history; 0 means no limit.
	MaxLookback int `yaml:"max_lookback" json:"maxLookback" validate:"gte=0"`

	// ParallelYears runs the per-year inner loops concurrently.
	ParallelYears bool `yaml:"parallel_years" json:"parallelYears"`
}

// DefaultSettings returns the defaults applied before a case file is decoded.
func DefaultSettings() Settings {
	return Settings{
		Years:        1,
		Tolerance:    1e-4,
		OuterMaxIter: 20,
		InnerMaxIter: 20,
		ADAMaxIter:   10,
		RelativeGap:  0.005,
		BigM:         1e4,
		DualBound:    1e5,
		Window:       WindowSliding,
	}
}

// TimeLimit returns the per-call solver limit as a duration.
func (s Settings) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitSeconds * float64(time.Second))
}
