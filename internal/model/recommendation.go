package model

// RiskLevel grades how much could go wrong if a recommendation is applied.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// CompetitivePosition describes where the current price sits relative to the
// observed competitor range.
type CompetitivePosition string

const (
	PositionSignificantlyUnderpriced CompetitivePosition = "significantly_underpriced"
	PositionUnderpriced              CompetitivePosition = "underpriced"
	PositionCompetitive              CompetitivePosition = "competitive"
	PositionPremium                  CompetitivePosition = "premium"
	PositionOverpriced               CompetitivePosition = "overpriced"
	PositionNoData                   CompetitivePosition = "no_competitor_data"
)

// Constraint flags recorded on a recommendation when a business rule altered
// the naive candidate price.
const (
	FlagMarginFloorApplied          = "margin_floor_applied"
	FlagIncreaseCapApplied          = "increase_cap_applied"
	FlagDecreaseCapApplied          = "decrease_cap_applied"
	FlagPsychologicalApplied        = "psychological_pricing_applied"
	FlagPsychologicalSkipped        = "psychological_pricing_skipped"
	FlagNoCompetitorData            = "no_competitor_data"
	FlagCurrencySkipped             = "currency_skipped"
	FlagMarginFloorUnachievable     = "margin_floor_unachievable"
)

// ScenarioOutcome projects unit economics at one candidate price point.
type ScenarioOutcome struct {
	Price               float64 `json:"price"`
	PriceChangePercent  float64 `json:"price_change_percent"`
	DemandChangePercent float64 `json:"demand_change_percent"`
	ExpectedUnits       float64 `json:"expected_units"`
	RevenueChange       float64 `json:"revenue_change"`
	ProfitChange        float64 `json:"profit_change"`
	MarginPercent       float64 `json:"margin_percent"`
}

// PriceRecommendation is the optimizer's output for one product. Produced
// fresh per call and never mutated afterwards.
type PriceRecommendation struct {
	ProductID                  string                     `json:"product_id"`
	CurrentPrice               float64                    `json:"current_price"`
	RecommendedPrice           float64                    `json:"recommended_price"`
	Currency                   string                     `json:"currency"`
	PriceChange                float64                    `json:"price_change"`
	PriceChangePercent         float64                    `json:"price_change_percent"`
	ExpectedDemandChangePercent float64                   `json:"expected_demand_change_percent"`
	ExpectedProfitChange       float64                    `json:"expected_profit_change"`
	ExpectedRevenueChange      float64                    `json:"expected_revenue_change"`
	ConfidenceScore            float64                    `json:"confidence_score"`
	RiskLevel                  RiskLevel                  `json:"risk_level"`
	Rationale                  string                     `json:"rationale"`
	CompetitivePosition        CompetitivePosition        `json:"competitive_position"`
	PsychologicalPriceApplied  bool                       `json:"psychological_price_applied"`
	ConstraintFlags            []string                   `json:"constraint_flags"`
	ScenarioAnalysis           map[string]ScenarioOutcome `json:"scenario_analysis"`
}

// HasFlag reports whether a constraint flag was recorded.
func (r *PriceRecommendation) HasFlag(flag string) bool {
	for _, f := range r.ConstraintFlags {
		if f == flag {
			return true
		}
	}
	return false
}
