// Package optimizer computes constrained price recommendations from a
// catalog item, its matched competitor observations, and a constraint set.
//
// Optimize is a pure function of its inputs: identical calls produce
// identical recommendations. Missing competitor data never fails a call; it
// degrades the confidence score instead.
package optimizer

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pricewise/pricewise/internal/model"
)

// ErrInvalidInput marks malformed optimization input (non-positive price,
// cost above price, out-of-range constraints).
var ErrInvalidInput = eris.New("invalid input")

// Config holds the fixed parameters of the optimization model.
type Config struct {
	// BaseVolume is the projected unit volume at the current price, used to
	// turn demand-change percentages into absolute revenue/profit deltas.
	BaseVolume float64
	// ElasticityBase is the baseline price elasticity of demand (negative),
	// used for categories without a prior.
	ElasticityBase float64
	// CategoryElasticity overrides the baseline per product category
	// (lowercased). Luxury categories trend more elastic, staples less.
	CategoryElasticity map[string]float64
	// Rates maps an ISO currency code to its fixed multiplier into a common
	// base currency. Conversion between two currencies is the ratio of their
	// multipliers. Observations in currencies absent from the map are
	// excluded from market statistics.
	Rates map[string]float64
	// MoveFraction is how far a unit demand sensitivity pulls the price from
	// current toward the market anchor.
	MoveFraction float64
}

// DefaultConfig returns the standard model parameters.
func DefaultConfig() Config {
	return Config{
		BaseVolume:     100,
		ElasticityBase: -1.0,
		CategoryElasticity: map[string]float64{
			"sunglasses": -1.2,
			"bottle":     -0.8,
			"mug":        -0.9,
			"stand":      -1.1,
			"notebook":   -1.0,
			"lunchbox":   -0.7,
			"stole":      -1.4,
		},
		Rates: map[string]float64{
			"USD": 1.0,
			"EUR": 1.08,
			"GBP": 1.27,
		},
		MoveFraction: 0.75,
	}
}

// Optimizer maps (catalog item, observations, constraints) to a price
// recommendation. Stateless and safe for concurrent use.
type Optimizer struct {
	cfg Config
}

// New creates an Optimizer, filling zero config fields with defaults.
func New(cfg Config) *Optimizer {
	def := DefaultConfig()
	if cfg.BaseVolume <= 0 {
		cfg.BaseVolume = def.BaseVolume
	}
	if cfg.ElasticityBase >= 0 {
		cfg.ElasticityBase = def.ElasticityBase
	}
	if cfg.CategoryElasticity == nil {
		cfg.CategoryElasticity = def.CategoryElasticity
	}
	if len(cfg.Rates) == 0 {
		cfg.Rates = def.Rates
	}
	if cfg.MoveFraction <= 0 || cfg.MoveFraction > 1 {
		cfg.MoveFraction = def.MoveFraction
	}
	return &Optimizer{cfg: cfg}
}

// marketStats summarizes usable competitor prices in the item's currency.
type marketStats struct {
	prices        []float64
	min, med, max float64
	avgMatchScore float64
	skippedFX     bool
}

// Optimize produces a recommendation for one product.
func (o *Optimizer) Optimize(item model.CatalogItem, obs []model.CompetitorObservation, c model.OptimizationConstraints) (*model.PriceRecommendation, error) {
	if item.CurrentPrice <= 0 {
		return nil, eris.Wrapf(ErrInvalidInput, "optimizer: product %s has non-positive current price %.2f", item.ID, item.CurrentPrice)
	}
	if item.UnitCost > item.CurrentPrice {
		return nil, eris.Wrapf(ErrInvalidInput, "optimizer: product %s unit cost %.2f exceeds current price %.2f", item.ID, item.UnitCost, item.CurrentPrice)
	}
	if err := c.Validate(); err != nil {
		return nil, eris.Wrap(ErrInvalidInput, err.Error())
	}

	stats := o.collectStats(item, obs)

	var flags []string
	if stats.skippedFX {
		flags = append(flags, model.FlagCurrencySkipped)
	}

	fallback := len(stats.prices) == 0
	candidate := o.candidatePrice(item, stats, c, fallback)
	if fallback {
		flags = append(flags, model.FlagNoCompetitorData)
	}

	candidate, flags = clampPrice(candidate, item, c, flags)

	psychApplied := false
	if c.PsychologicalPricing {
		rounded, ok := psychologicalPrice(candidate, item, c)
		if ok {
			candidate = rounded
			psychApplied = true
			flags = append(flags, model.FlagPsychologicalApplied)
		} else {
			flags = append(flags, model.FlagPsychologicalSkipped)
		}
	}

	recommended := round2(candidate)
	change := recommended - item.CurrentPrice
	changePct := change / item.CurrentPrice * 100

	elasticity := o.elasticity(item, len(stats.prices)) * c.DemandSensitivity
	demandPct := elasticity * changePct

	currentMargin := item.CurrentPrice - item.UnitCost
	newMargin := recommended - item.UnitCost
	newUnits := projectedUnits(o.cfg.BaseVolume, demandPct)

	profitChange := newMargin*newUnits - currentMargin*o.cfg.BaseVolume
	revenueChange := recommended*newUnits - item.CurrentPrice*o.cfg.BaseVolume

	position := assessPosition(item.CurrentPrice, stats)
	conf := confidenceScore(len(stats.prices), stats.avgMatchScore, fallback, flags)
	risk := riskLevel(changePct, recommended, item, c, flags, len(stats.prices))

	rec := &model.PriceRecommendation{
		ProductID:                   item.ID,
		CurrentPrice:                item.CurrentPrice,
		RecommendedPrice:            recommended,
		Currency:                    item.Currency,
		PriceChange:                 round2(change),
		PriceChangePercent:          round1(changePct),
		ExpectedDemandChangePercent: round1(demandPct),
		ExpectedProfitChange:        round2(profitChange),
		ExpectedRevenueChange:       round2(revenueChange),
		ConfidenceScore:             round2(conf),
		RiskLevel:                   risk,
		CompetitivePosition:         position,
		PsychologicalPriceApplied:   psychApplied,
		ConstraintFlags:             flags,
		ScenarioAnalysis:            o.scenarios(item, recommended, elasticity),
	}
	rec.Rationale = rationale(item, rec, stats, c)
	return rec, nil
}

// collectStats filters observations to positive prices in convertible
// currencies and converts them into the item's currency.
func (o *Optimizer) collectStats(item model.CatalogItem, obs []model.CompetitorObservation) marketStats {
	var stats marketStats
	var matchSum float64

	for _, ob := range obs {
		if ob.Price == nil || *ob.Price <= 0 {
			continue
		}
		converted, ok := o.convert(*ob.Price, ob.Currency, item.Currency)
		if !ok {
			stats.skippedFX = true
			continue
		}
		stats.prices = append(stats.prices, converted)
		matchSum += ob.MatchScore
	}

	if n := len(stats.prices); n > 0 {
		sorted := append([]float64(nil), stats.prices...)
		sort.Float64s(sorted)
		stats.min = sorted[0]
		stats.max = sorted[n-1]
		if n%2 == 1 {
			stats.med = sorted[n/2]
		} else {
			stats.med = (sorted[n/2-1] + sorted[n/2]) / 2
		}
		stats.avgMatchScore = matchSum / float64(n)
	}
	return stats
}

// convert applies the fixed cross rate between two currencies. Same-currency
// conversion always succeeds even when the code is not in the rate table.
func (o *Optimizer) convert(price float64, from, to string) (float64, bool) {
	if from == to {
		return price, true
	}
	fromRate, okFrom := o.cfg.Rates[from]
	toRate, okTo := o.cfg.Rates[to]
	if !okFrom || !okTo || toRate == 0 {
		return 0, false
	}
	return price * fromRate / toRate, true
}

// candidatePrice picks the pre-clamp target. With market data the anchor is
// min/median/max by positioning and the price moves from current toward it,
// scaled by demand sensitivity. Without data it is a fixed positioning delta.
func (o *Optimizer) candidatePrice(item model.CatalogItem, stats marketStats, c model.OptimizationConstraints, fallback bool) float64 {
	if fallback {
		switch c.CompetitivePositioning {
		case model.PositioningAggressive:
			return item.CurrentPrice * 0.95
		case model.PositioningPremium:
			return item.CurrentPrice * 1.10
		default:
			return item.CurrentPrice * 1.05
		}
	}

	var anchor float64
	switch c.CompetitivePositioning {
	case model.PositioningAggressive:
		anchor = stats.min
	case model.PositioningPremium:
		anchor = stats.max
	default:
		anchor = stats.med
	}

	fraction := math.Min(1, o.cfg.MoveFraction*c.DemandSensitivity)
	return item.CurrentPrice + (anchor-item.CurrentPrice)*fraction
}

// clampPrice enforces the increase/decrease cap and the margin floor,
// recording which bound was binding. When floor and cap conflict the cap
// wins and the margin shortfall is flagged as unachievable.
func clampPrice(candidate float64, item model.CatalogItem, c model.OptimizationConstraints, flags []string) (float64, []string) {
	capUp := item.CurrentPrice * (1 + c.MaxPriceIncreasePercent/100)
	capDown := item.CurrentPrice * (1 - c.MaxPriceIncreasePercent/100)

	if candidate > capUp {
		candidate = capUp
		flags = append(flags, model.FlagIncreaseCapApplied)
	}
	if candidate < capDown {
		candidate = capDown
		flags = append(flags, model.FlagDecreaseCapApplied)
	}

	floor := marginFloor(item.UnitCost, c.MinMarginPercent)
	if candidate < floor {
		if floor <= capUp {
			candidate = floor
			flags = append(flags, model.FlagMarginFloorApplied)
		} else {
			candidate = capUp
			if !containsFlag(flags, model.FlagIncreaseCapApplied) {
				flags = append(flags, model.FlagIncreaseCapApplied)
			}
			flags = append(flags, model.FlagMarginFloorUnachievable)
		}
	}
	return candidate, flags
}

// marginFloor is the lowest price at which (price-cost)/price >= min%.
// Rounded up to the cent so the invariant survives final price rounding.
func marginFloor(unitCost, minMarginPercent float64) float64 {
	raw := unitCost / (1 - minMarginPercent/100)
	return math.Ceil(raw*100) / 100
}

// psychologicalPrice rounds to the nearest conventional .95/.99 ending.
// If that ending would breach the margin floor or the price-change caps the
// rounding is skipped entirely and the clamped price stands, so a clamp is
// never silently undone by cosmetics.
func psychologicalPrice(price float64, item model.CatalogItem, c model.OptimizationConstraints) (float64, bool) {
	base := math.Floor(price)
	candidates := []float64{base - 1 + 0.95, base - 1 + 0.99, base + 0.95, base + 0.99}

	nearest := candidates[0]
	for _, cand := range candidates[1:] {
		if math.Abs(cand-price) < math.Abs(nearest-price) {
			nearest = cand
		}
	}

	floor := marginFloor(item.UnitCost, c.MinMarginPercent)
	capUp := item.CurrentPrice * (1 + c.MaxPriceIncreasePercent/100)
	capDown := item.CurrentPrice * (1 - c.MaxPriceIncreasePercent/100)

	const eps = 1e-9
	if nearest <= 0 || nearest < floor-eps || nearest > capUp+eps || nearest < capDown-eps {
		return 0, false
	}
	return round2(nearest), true
}

// elasticity starts from the category prior (or the baseline) and adjusts
// for competitive intensity and price level: crowded markets and expensive
// products are more elastic.
func (o *Optimizer) elasticity(item model.CatalogItem, competitors int) float64 {
	e := o.cfg.ElasticityBase
	if prior, ok := o.cfg.CategoryElasticity[strings.ToLower(item.Category)]; ok {
		e = prior
	}
	if competitors > 5 {
		e *= 1.2
	} else if competitors < 2 {
		e *= 0.8
	}
	if item.CurrentPrice > 100 {
		e *= 1.1
	} else if item.CurrentPrice < 20 {
		e *= 0.9
	}
	return e
}

// assessPosition buckets the current price against the observed market range.
func assessPosition(currentPrice float64, stats marketStats) model.CompetitivePosition {
	if len(stats.prices) == 0 {
		return model.PositionNoData
	}
	switch {
	case currentPrice < stats.min*0.9:
		return model.PositionSignificantlyUnderpriced
	case currentPrice < stats.med*0.95:
		return model.PositionUnderpriced
	case currentPrice <= stats.max*1.05:
		return model.PositionCompetitive
	case currentPrice <= stats.max*1.2:
		return model.PositionPremium
	default:
		return model.PositionOverpriced
	}
}

func projectedUnits(baseVolume, demandChangePct float64) float64 {
	units := baseVolume * (1 + demandChangePct/100)
	if units < 0 {
		return 0
	}
	return units
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
