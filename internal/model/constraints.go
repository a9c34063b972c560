package model

import "github.com/rotisserie/eris"

// Positioning selects which end of the competitor price range to anchor on.
type Positioning string

const (
	PositioningAggressive  Positioning = "aggressive"
	PositioningCompetitive Positioning = "competitive"
	PositioningPremium     Positioning = "premium"
)

// OptimizationConstraints bound what the optimizer may recommend. Supplied
// per call; never persisted.
type OptimizationConstraints struct {
	MinMarginPercent        float64     `json:"min_margin_percent"`
	MaxPriceIncreasePercent float64     `json:"max_price_increase_percent"`
	PsychologicalPricing    bool        `json:"psychological_pricing"`
	CompetitivePositioning  Positioning `json:"competitive_positioning"`
	DemandSensitivity       float64     `json:"demand_sensitivity"`
}

// DefaultConstraints mirrors the defaults applied when a caller omits the
// constraint block entirely.
func DefaultConstraints() OptimizationConstraints {
	return OptimizationConstraints{
		MinMarginPercent:        20.0,
		MaxPriceIncreasePercent: 50.0,
		PsychologicalPricing:    true,
		CompetitivePositioning:  PositioningCompetitive,
		DemandSensitivity:       1.0,
	}
}

// Validate rejects out-of-range constraint values.
func (c OptimizationConstraints) Validate() error {
	if c.MinMarginPercent < 0 || c.MinMarginPercent >= 100 {
		return eris.Errorf("constraints: min margin %.2f%% out of range [0, 100)", c.MinMarginPercent)
	}
	if c.MaxPriceIncreasePercent < 0 {
		return eris.Errorf("constraints: negative max price increase %.2f%%", c.MaxPriceIncreasePercent)
	}
	switch c.CompetitivePositioning {
	case PositioningAggressive, PositioningCompetitive, PositioningPremium:
	default:
		return eris.Errorf("constraints: unknown positioning %q", c.CompetitivePositioning)
	}
	if c.DemandSensitivity <= 0 {
		return eris.Errorf("constraints: demand sensitivity must be positive, got %.2f", c.DemandSensitivity)
	}
	return nil
}
