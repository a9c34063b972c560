package optimizer

import (
	"fmt"
	"strings"

	"github.com/pricewise/pricewise/internal/model"
)

// rationale builds a short deterministic explanation of what drove the
// recommendation: market position, strategy, binding constraints, and how
// much data backs it.
func rationale(item model.CatalogItem, rec *model.PriceRecommendation, stats marketStats, c model.OptimizationConstraints) string {
	var parts []string

	direction := "hold"
	if rec.PriceChange > 0 {
		direction = "increase"
	} else if rec.PriceChange < 0 {
		direction = "decrease"
	}

	if len(stats.prices) == 0 {
		parts = append(parts, fmt.Sprintf(
			"No usable competitor prices were found, so the %s strategy was applied directly to the current price (%s %.2f -> %.2f, %+.1f%%).",
			c.CompetitivePositioning, item.Currency, item.CurrentPrice, rec.RecommendedPrice, rec.PriceChangePercent))
	} else {
		parts = append(parts, fmt.Sprintf(
			"Based on %d competitor prices (%s %.2f-%.2f, median %.2f) the product is %s; the %s strategy suggests a %.1f%% %s to %s %.2f.",
			len(stats.prices), item.Currency, stats.min, stats.max, stats.med,
			strings.ReplaceAll(string(rec.CompetitivePosition), "_", " "),
			c.CompetitivePositioning, absF(rec.PriceChangePercent), direction, item.Currency, rec.RecommendedPrice))
	}

	switch {
	case rec.HasFlag(model.FlagMarginFloorUnachievable):
		parts = append(parts, fmt.Sprintf("The %.0f%% minimum margin cannot be reached within the %.0f%% price-change cap; the price was capped instead.",
			c.MinMarginPercent, c.MaxPriceIncreasePercent))
	case rec.HasFlag(model.FlagMarginFloorApplied):
		parts = append(parts, fmt.Sprintf("The price was raised to the %.0f%% minimum-margin floor.", c.MinMarginPercent))
	case rec.HasFlag(model.FlagIncreaseCapApplied) || rec.HasFlag(model.FlagDecreaseCapApplied):
		parts = append(parts, fmt.Sprintf("The move was capped at the %.0f%% maximum price change.", c.MaxPriceIncreasePercent))
	}

	if rec.PsychologicalPriceApplied {
		parts = append(parts, "The price was rounded to a conventional ending.")
	} else if rec.HasFlag(model.FlagPsychologicalSkipped) {
		parts = append(parts, "Psychological rounding was skipped because no conventional ending satisfies the margin floor.")
	}

	parts = append(parts, fmt.Sprintf("Expected demand change is %+.1f%% with projected profit impact of %+.2f; confidence %.2f (%s risk).",
		rec.ExpectedDemandChangePercent, rec.ExpectedProfitChange, rec.ConfidenceScore, rec.RiskLevel))

	return strings.Join(parts, " ")
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
