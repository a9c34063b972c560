package optimizer

import "github.com/pricewise/pricewise/internal/model"

// scenarioMultipliers are the candidate price points compared in the
// scenario analysis, relative to the recommended price.
var scenarioMultipliers = []struct {
	label      string
	multiplier float64
}{
	{"conservative", 0.95},
	{"recommended", 1.0},
	{"aggressive", 1.05},
}

// scenarios projects demand, revenue, and profit at alternative price points
// around the recommendation, using the same elasticity model as the main
// projection so the numbers are directly comparable.
func (o *Optimizer) scenarios(item model.CatalogItem, recommended, elasticity float64) map[string]model.ScenarioOutcome {
	currentMargin := item.CurrentPrice - item.UnitCost

	out := make(map[string]model.ScenarioOutcome, len(scenarioMultipliers))
	for _, s := range scenarioMultipliers {
		price := recommended * s.multiplier
		changePct := (price - item.CurrentPrice) / item.CurrentPrice * 100
		demandPct := elasticity * changePct

		margin := price - item.UnitCost
		units := projectedUnits(o.cfg.BaseVolume, demandPct)

		marginPct := 0.0
		if price > 0 {
			marginPct = margin / price * 100
		}

		out[s.label] = model.ScenarioOutcome{
			Price:               round2(price),
			PriceChangePercent:  round1(changePct),
			DemandChangePercent: round1(demandPct),
			ExpectedUnits:       round2(units),
			RevenueChange:       round2(price*units - item.CurrentPrice*o.cfg.BaseVolume),
			ProfitChange:        round2(margin*units - currentMargin*o.cfg.BaseVolume),
			MarginPercent:       round1(marginPct),
		}
	}
	return out
}
