package optimizer

import (
	"math"

	"github.com/pricewise/pricewise/internal/model"
)

// Confidence bounds. The score never reaches 0 or 1: some uncertainty always
// remains, and even a constraints-only fallback is not pure noise.
const (
	minConfidence = 0.10
	maxConfidence = 0.99

	fallbackConfidence = 0.35
)

// clampFlags are the constraint flags that indicate a bound altered the
// candidate price.
var clampFlags = []string{
	model.FlagMarginFloorApplied,
	model.FlagIncreaseCapApplied,
	model.FlagDecreaseCapApplied,
	model.FlagMarginFloorUnachievable,
}

// confidenceScore grows with competitor sample size and mean match quality,
// and shrinks when the optimizer fell back to constraints-only strategy or a
// constraint clipped the result. Monotone in both sample size and average
// match score; bounded to [minConfidence, maxConfidence].
func confidenceScore(samples int, avgMatchScore float64, fallback bool, flags []string) float64 {
	var conf float64
	if fallback {
		conf = fallbackConfidence
	} else {
		conf = 0.5 + 0.05*math.Min(float64(samples), 6) + 0.15*avgMatchScore
	}

	if anyFlag(flags, clampFlags) {
		conf *= 0.9
	}

	return math.Max(minConfidence, math.Min(maxConfidence, conf))
}

// riskLevel grades a recommendation. Any binding constraint or a sample of
// at most one competitor is high risk; small moves with comfortable margin
// headroom and a real sample are low; everything else is medium.
func riskLevel(changePct, recommended float64, item model.CatalogItem, c model.OptimizationConstraints, flags []string, samples int) model.RiskLevel {
	if samples <= 1 || anyFlag(flags, clampFlags) {
		return model.RiskHigh
	}

	marginPct := (recommended - item.UnitCost) / recommended * 100
	if math.Abs(changePct) < 5 && marginPct >= c.MinMarginPercent+5 && samples >= 3 {
		return model.RiskLow
	}
	return model.RiskMedium
}

func anyFlag(flags, wanted []string) bool {
	for _, f := range flags {
		for _, w := range wanted {
			if f == w {
				return true
			}
		}
	}
	return false
}
