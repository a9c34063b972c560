package optimizer

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/model"
)

func obsAt(store string, price float64, currency string, matchScore float64) model.CompetitorObservation {
	p := price
	return model.CompetitorObservation{
		ProductID:       "p1",
		StoreName:       store,
		Title:           "Bamboo Water Bottle",
		Price:           &p,
		Currency:        currency,
		InStock:         true,
		ScrapedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		MatchScore:      matchScore,
		MatchConfidence: model.ConfidenceForScore(matchScore),
	}
}

func eurItem() model.CatalogItem {
	return model.CatalogItem{
		ID:           "p1",
		Name:         "Bamboo Water Bottle",
		CurrentPrice: 57.95,
		UnitCost:     14.23,
		Currency:     "EUR",
		Category:     "bottle",
	}
}

func TestOptimizeFallbackWithoutCompetitors(t *testing.T) {
	t.Parallel()

	o := New(Config{})
	c := model.OptimizationConstraints{
		MinMarginPercent:        25,
		MaxPriceIncreasePercent: 30,
		PsychologicalPricing:    true,
		CompetitivePositioning:  model.PositioningCompetitive,
		DemandSensitivity:       1.0,
	}

	rec, err := o.Optimize(eurItem(), nil, c)
	require.NoError(t, err)

	// Competitive fallback: +5%, then rounded to the nearest ending.
	assert.Equal(t, 60.95, rec.RecommendedPrice)
	assert.True(t, rec.PsychologicalPriceApplied)
	assert.True(t, rec.HasFlag(model.FlagNoCompetitorData))
	assert.Equal(t, model.PositionNoData, rec.CompetitivePosition)

	margin := (rec.RecommendedPrice - 14.23) / rec.RecommendedPrice * 100
	assert.GreaterOrEqual(t, margin, 25.0)
	assert.LessOrEqual(t, rec.PriceChangePercent, 30.0)
	assert.Equal(t, model.RiskHigh, rec.RiskLevel)

	// Confidence must be noticeably lower than with a populated sample.
	withData, err := o.Optimize(eurItem(), []model.CompetitorObservation{
		obsAt("a", 50, "EUR", 0.6),
		obsAt("b", 55, "EUR", 0.6),
		obsAt("c", 58, "EUR", 0.6),
		obsAt("d", 60, "EUR", 0.6),
		obsAt("e", 62, "EUR", 0.6),
	}, c)
	require.NoError(t, err)
	assert.Greater(t, withData.ConfidenceScore, rec.ConfidenceScore+0.2)
}

func TestOptimizeIdempotent(t *testing.T) {
	t.Parallel()

	o := New(Config{})
	obs := []model.CompetitorObservation{
		obsAt("a", 50, "EUR", 0.4),
		obsAt("b", 62, "USD", 0.8),
	}
	c := model.DefaultConstraints()

	first, err := o.Optimize(eurItem(), obs, c)
	require.NoError(t, err)
	second, err := o.Optimize(eurItem(), obs, c)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestOptimizeAggressiveAnchorsNearMarketMin(t *testing.T) {
	t.Parallel()

	item := model.CatalogItem{ID: "p2", Name: "Widget", CurrentPrice: 60, UnitCost: 20, Currency: "USD"}
	obs := []model.CompetitorObservation{
		obsAt("a", 45, "USD", 0.5),
		obsAt("b", 52, "USD", 0.5),
		obsAt("c", 65, "USD", 0.5),
	}
	c := model.OptimizationConstraints{
		MinMarginPercent:        10,
		MaxPriceIncreasePercent: 50,
		CompetitivePositioning:  model.PositioningAggressive,
		DemandSensitivity:       1.0,
	}

	o := New(Config{})
	rec, err := o.Optimize(item, obs, c)
	require.NoError(t, err)

	assert.Equal(t, 48.75, rec.RecommendedPrice)
	assert.Less(t, rec.RecommendedPrice-45, 65-rec.RecommendedPrice)

	// Lower demand sensitivity moves the price less far toward the anchor.
	c.DemandSensitivity = 0.5
	gentler, err := o.Optimize(item, obs, c)
	require.NoError(t, err)
	assert.Greater(t, gentler.RecommendedPrice, rec.RecommendedPrice)
}

func TestOptimizePsychologicalRounding(t *testing.T) {
	t.Parallel()

	t.Run("rounds clamped price to nearest ending", func(t *testing.T) {
		t.Parallel()
		item := model.CatalogItem{ID: "p3", Name: "Widget", CurrentPrice: 61.50, UnitCost: 20, Currency: "USD"}
		obs := []model.CompetitorObservation{obsAt("a", 61.50, "USD", 0.5)}
		c := model.OptimizationConstraints{
			MinMarginPercent:        25,
			MaxPriceIncreasePercent: 30,
			PsychologicalPricing:    true,
			CompetitivePositioning:  model.PositioningCompetitive,
			DemandSensitivity:       1.0,
		}

		rec, err := New(Config{}).Optimize(item, obs, c)
		require.NoError(t, err)
		assert.Equal(t, 61.95, rec.RecommendedPrice)
		assert.True(t, rec.PsychologicalPriceApplied)
	})

	t.Run("skips rounding that would breach the margin floor", func(t *testing.T) {
		t.Parallel()
		// Floor is 62.27; the candidate clamps up to it and the nearest
		// ending (61.99) sits below the floor, so the price stays unrounded.
		item := model.CatalogItem{ID: "p3", Name: "Widget", CurrentPrice: 61.50, UnitCost: 46.70, Currency: "USD"}
		obs := []model.CompetitorObservation{obsAt("a", 61.50, "USD", 0.5)}
		c := model.OptimizationConstraints{
			MinMarginPercent:        25,
			MaxPriceIncreasePercent: 30,
			PsychologicalPricing:    true,
			CompetitivePositioning:  model.PositioningCompetitive,
			DemandSensitivity:       1.0,
		}

		rec, err := New(Config{}).Optimize(item, obs, c)
		require.NoError(t, err)
		assert.Equal(t, 62.27, rec.RecommendedPrice)
		assert.False(t, rec.PsychologicalPriceApplied)
		assert.True(t, rec.HasFlag(model.FlagPsychologicalSkipped))
		assert.True(t, rec.HasFlag(model.FlagMarginFloorApplied))
	})
}

func TestOptimizeClamping(t *testing.T) {
	t.Parallel()

	t.Run("decrease capped at max change", func(t *testing.T) {
		t.Parallel()
		item := model.CatalogItem{ID: "p4", Name: "Widget", CurrentPrice: 100, UnitCost: 10, Currency: "USD"}
		obs := []model.CompetitorObservation{obsAt("a", 40, "USD", 0.9)}
		c := model.OptimizationConstraints{
			MinMarginPercent:        10,
			MaxPriceIncreasePercent: 30,
			CompetitivePositioning:  model.PositioningAggressive,
			DemandSensitivity:       1.4,
		}

		rec, err := New(Config{}).Optimize(item, obs, c)
		require.NoError(t, err)
		assert.Equal(t, 70.0, rec.RecommendedPrice)
		assert.True(t, rec.HasFlag(model.FlagDecreaseCapApplied))
		assert.InDelta(t, -30.0, rec.PriceChangePercent, 1e-9)
	})

	t.Run("margin floor unachievable within cap", func(t *testing.T) {
		t.Parallel()
		item := model.CatalogItem{ID: "p5", Name: "Widget", CurrentPrice: 100, UnitCost: 90, Currency: "USD"}
		obs := []model.CompetitorObservation{obsAt("a", 130, "USD", 0.9)}
		c := model.OptimizationConstraints{
			MinMarginPercent:        25, // requires 120.00, cap allows 110
			MaxPriceIncreasePercent: 10,
			CompetitivePositioning:  model.PositioningPremium,
			DemandSensitivity:       1.0,
		}

		rec, err := New(Config{}).Optimize(item, obs, c)
		require.NoError(t, err)
		assert.Equal(t, 110.0, rec.RecommendedPrice)
		assert.True(t, rec.HasFlag(model.FlagIncreaseCapApplied))
		assert.True(t, rec.HasFlag(model.FlagMarginFloorUnachievable))
		assert.Equal(t, model.RiskHigh, rec.RiskLevel)
	})

	t.Run("margin floor applied exactly", func(t *testing.T) {
		t.Parallel()
		item := model.CatalogItem{ID: "p6", Name: "Widget", CurrentPrice: 30, UnitCost: 27, Currency: "USD"}
		obs := []model.CompetitorObservation{obsAt("a", 28, "USD", 0.9)}
		c := model.OptimizationConstraints{
			MinMarginPercent:        20, // floor 33.75
			MaxPriceIncreasePercent: 50,
			CompetitivePositioning:  model.PositioningCompetitive,
			DemandSensitivity:       1.0,
		}

		rec, err := New(Config{}).Optimize(item, obs, c)
		require.NoError(t, err)
		assert.Equal(t, 33.75, rec.RecommendedPrice)
		assert.True(t, rec.HasFlag(model.FlagMarginFloorApplied))
		margin := (rec.RecommendedPrice - item.UnitCost) / rec.RecommendedPrice * 100
		assert.GreaterOrEqual(t, margin, 20.0)
	})
}

func TestOptimizeCurrencyHandling(t *testing.T) {
	t.Parallel()

	o := New(Config{})
	item := eurItem()

	t.Run("converts known currencies", func(t *testing.T) {
		t.Parallel()
		// 64.80 USD at 1.0/1.08 is 60.00 EUR.
		rec, err := o.Optimize(item, []model.CompetitorObservation{
			obsAt("us-store", 64.80, "USD", 0.5),
			obsAt("eu-store", 60.00, "EUR", 0.5),
		}, model.DefaultConstraints())
		require.NoError(t, err)
		assert.NotEqual(t, model.PositionNoData, rec.CompetitivePosition)
		assert.False(t, rec.HasFlag(model.FlagCurrencySkipped))
	})

	t.Run("skips unknown currencies with a flag", func(t *testing.T) {
		t.Parallel()
		rec, err := o.Optimize(item, []model.CompetitorObservation{
			obsAt("jp-store", 9800, "JPY", 0.5),
		}, model.DefaultConstraints())
		require.NoError(t, err)
		assert.True(t, rec.HasFlag(model.FlagCurrencySkipped))
		assert.True(t, rec.HasFlag(model.FlagNoCompetitorData))
	})

	t.Run("missing prices are excluded", func(t *testing.T) {
		t.Parallel()
		noPrice := obsAt("a", 0, "EUR", 0.5)
		noPrice.Price = nil
		rec, err := o.Optimize(item, []model.CompetitorObservation{noPrice}, model.DefaultConstraints())
		require.NoError(t, err)
		assert.True(t, rec.HasFlag(model.FlagNoCompetitorData))
	})
}

func TestOptimizeInvalidInput(t *testing.T) {
	t.Parallel()

	o := New(Config{})

	t.Run("non-positive price", func(t *testing.T) {
		t.Parallel()
		item := eurItem()
		item.CurrentPrice = 0
		_, err := o.Optimize(item, nil, model.DefaultConstraints())
		assert.True(t, eris.Is(err, ErrInvalidInput))
	})

	t.Run("cost above price", func(t *testing.T) {
		t.Parallel()
		item := eurItem()
		item.UnitCost = item.CurrentPrice + 1
		_, err := o.Optimize(item, nil, model.DefaultConstraints())
		assert.True(t, eris.Is(err, ErrInvalidInput))
	})

	t.Run("bad constraints", func(t *testing.T) {
		t.Parallel()
		c := model.DefaultConstraints()
		c.DemandSensitivity = -1
		_, err := o.Optimize(eurItem(), nil, c)
		assert.True(t, eris.Is(err, ErrInvalidInput))
	})
}

func TestOptimizeScenarioAnalysis(t *testing.T) {
	t.Parallel()

	o := New(Config{})
	rec, err := o.Optimize(eurItem(), []model.CompetitorObservation{
		obsAt("a", 55, "EUR", 0.5),
		obsAt("b", 60, "EUR", 0.5),
		obsAt("c", 65, "EUR", 0.5),
	}, model.DefaultConstraints())
	require.NoError(t, err)

	require.Len(t, rec.ScenarioAnalysis, 3)
	cons := rec.ScenarioAnalysis["conservative"]
	mid := rec.ScenarioAnalysis["recommended"]
	aggr := rec.ScenarioAnalysis["aggressive"]

	assert.Equal(t, rec.RecommendedPrice, mid.Price)
	assert.Less(t, cons.Price, mid.Price)
	assert.Greater(t, aggr.Price, mid.Price)
	// Higher price, lower projected demand.
	assert.Greater(t, cons.DemandChangePercent, aggr.DemandChangePercent)
	assert.Greater(t, aggr.MarginPercent, cons.MarginPercent)
}

func TestAssessPosition(t *testing.T) {
	t.Parallel()

	stats := marketStats{prices: []float64{50, 60, 70}, min: 50, med: 60, max: 70}

	assert.Equal(t, model.PositionSignificantlyUnderpriced, assessPosition(40, stats))
	assert.Equal(t, model.PositionUnderpriced, assessPosition(50, stats))
	assert.Equal(t, model.PositionCompetitive, assessPosition(65, stats))
	assert.Equal(t, model.PositionPremium, assessPosition(80, stats))
	assert.Equal(t, model.PositionOverpriced, assessPosition(90, stats))
	assert.Equal(t, model.PositionNoData, assessPosition(60, marketStats{}))
}

func TestMarginFloorRoundsUp(t *testing.T) {
	t.Parallel()

	// 14.23 / 0.75 = 18.9733..., must round up so the invariant holds in cents.
	assert.Equal(t, 18.98, marginFloor(14.23, 25))
	assert.Equal(t, 0.0, marginFloor(0, 25))
}

func TestConfidenceScoreMonotone(t *testing.T) {
	t.Parallel()

	base := confidenceScore(2, 0.5, false, nil)
	moreSamples := confidenceScore(5, 0.5, false, nil)
	betterMatches := confidenceScore(2, 0.9, false, nil)
	clamped := confidenceScore(5, 0.5, false, []string{model.FlagIncreaseCapApplied})
	fallback := confidenceScore(0, 0, true, nil)

	assert.Greater(t, moreSamples, base)
	assert.Greater(t, betterMatches, base)
	assert.Less(t, clamped, moreSamples)
	assert.Less(t, fallback, base)
	assert.GreaterOrEqual(t, fallback, minConfidence)
	assert.LessOrEqual(t, confidenceScore(100, 1.0, false, nil), maxConfidence)
}

func TestElasticityCategoryPriors(t *testing.T) {
	t.Parallel()

	o := New(Config{})
	item := func(category string, price float64) model.CatalogItem {
		return model.CatalogItem{
			ID:           "p1",
			Name:         "Product",
			CurrentPrice: price,
			UnitCost:     10,
			Currency:     "USD",
			Category:     category,
		}
	}

	// category priors replace the baseline; unknown categories keep it
	assert.InDelta(t, -0.7, o.elasticity(item("lunchbox", 30), 3), 1e-9)
	assert.InDelta(t, -1.4, o.elasticity(item("stole", 30), 3), 1e-9)
	assert.InDelta(t, -1.0, o.elasticity(item("boots", 30), 3), 1e-9)

	// lookup is case-insensitive
	assert.InDelta(t, -0.7, o.elasticity(item("Lunchbox", 30), 3), 1e-9)

	// intensity and price-level adjustments still compound on the prior
	assert.InDelta(t, -0.7*1.2, o.elasticity(item("lunchbox", 30), 6), 1e-9)
	assert.InDelta(t, -0.7*1.1, o.elasticity(item("lunchbox", 150), 3), 1e-9)

	// an explicit override map wins over the built-in priors
	custom := New(Config{CategoryElasticity: map[string]float64{"boots": -2.0}})
	assert.InDelta(t, -2.0, custom.elasticity(item("boots", 30), 3), 1e-9)
}
