package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/model"
	"github.com/pricewise/pricewise/internal/optimizer"
)

func product(id string, price, cost float64) model.CatalogItem {
	return model.CatalogItem{ID: id, Name: "Product " + id, CurrentPrice: price, UnitCost: cost, Currency: "USD"}
}

func observations(productID string, prices ...float64) []model.CompetitorObservation {
	obs := make([]model.CompetitorObservation, 0, len(prices))
	for _, p := range prices {
		price := p
		obs = append(obs, model.CompetitorObservation{
			ProductID:  productID,
			StoreName:  "store",
			Title:      "Product",
			Price:      &price,
			Currency:   "USD",
			InStock:    true,
			ScrapedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			MatchScore: 0.5,
		})
	}
	return obs
}

func TestOptimizeBatchRanksByProfitChange(t *testing.T) {
	t.Parallel()

	coord := New(optimizer.New(optimizer.Config{}), 4)

	products := []model.CatalogItem{
		product("low", 20, 18),   // thin margin, little room
		product("high", 50, 10),  // big headroom, competitors above
		product("mid", 40, 20),
	}
	obs := map[string][]model.CompetitorObservation{
		"low":  observations("low", 20, 21, 22),
		"high": observations("high", 70, 75, 80),
		"mid":  observations("mid", 42, 44, 46),
	}

	res, err := coord.OptimizeBatch(context.Background(), products, obs, model.DefaultConstraints())
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 3)
	assert.Empty(t, res.Errors)

	for i := 1; i < len(res.Recommendations); i++ {
		assert.GreaterOrEqual(t,
			res.Recommendations[i-1].ExpectedProfitChange,
			res.Recommendations[i].ExpectedProfitChange,
		)
	}

	assert.Equal(t, 3, res.Summary.TotalProducts)
	assert.Equal(t, 3, res.Summary.Succeeded)
	assert.Zero(t, res.Summary.Failed)
	riskTotal := 0
	for _, n := range res.Summary.RiskCounts {
		riskTotal += n
	}
	assert.Equal(t, 3, riskTotal)
	assert.False(t, res.Timestamp.IsZero())
}

func TestOptimizeBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	coord := New(optimizer.New(optimizer.Config{}), 2)

	bad := product("bad", 10, 25) // cost above price: rejected
	products := []model.CatalogItem{product("ok", 30, 10), bad}

	res, err := coord.OptimizeBatch(context.Background(), products, nil, model.DefaultConstraints())
	require.NoError(t, err)

	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, "ok", res.Recommendations[0].ProductID)
	require.Contains(t, res.Errors, "bad")
	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 1, res.Summary.Succeeded)
}

func TestOptimizeBatchEmptyInput(t *testing.T) {
	t.Parallel()

	coord := New(optimizer.New(optimizer.Config{}), 0)
	res, err := coord.OptimizeBatch(context.Background(), nil, nil, model.DefaultConstraints())
	require.NoError(t, err)
	assert.Empty(t, res.Recommendations)
	assert.Zero(t, res.Summary.TotalProducts)
}
