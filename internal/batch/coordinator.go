// Package batch runs the price optimizer over a product list in parallel
// and ranks the results.
package batch

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pricewise/pricewise/internal/model"
	"github.com/pricewise/pricewise/internal/optimizer"
)

// Summary aggregates a batch run for reporting.
type Summary struct {
	TotalProducts           int     `json:"total_products"`
	Succeeded               int     `json:"succeeded"`
	Failed                  int     `json:"failed"`
	AvgPriceChangePercent   float64 `json:"avg_price_change_percent"`
	TotalProfitChange       float64 `json:"total_profit_change"`
	TotalRevenueUplift      float64 `json:"total_revenue_uplift"`
	HighConfidenceCount     int     `json:"high_confidence_count"`
	RiskCounts              map[model.RiskLevel]int `json:"risk_counts"`
}

// Result holds ranked recommendations plus per-product failures. Failures
// never abort the batch; they are collected by product ID.
type Result struct {
	Recommendations []model.PriceRecommendation `json:"recommendations"`
	Errors          map[string]string           `json:"errors,omitempty"`
	Summary         Summary                     `json:"summary"`
	Timestamp       time.Time                   `json:"timestamp"`
}

// Coordinator fans the optimizer out across products. Products share no
// mutable state, so each goroutine writes only its own slot and results are
// merged and ranked afterwards.
type Coordinator struct {
	opt   *optimizer.Optimizer
	limit int
}

// New creates a Coordinator with the given parallelism limit.
func New(opt *optimizer.Optimizer, limit int) *Coordinator {
	if limit <= 0 {
		limit = 5
	}
	return &Coordinator{opt: opt, limit: limit}
}

// OptimizeBatch optimizes every product with the shared constraints and
// returns recommendations ordered by descending expected profit change.
func (c *Coordinator) OptimizeBatch(ctx context.Context, products []model.CatalogItem, observations map[string][]model.CompetitorObservation, constraints model.OptimizationConstraints) (*Result, error) {
	log := zap.L().With(zap.String("component", "batch.coordinator"))

	recs := make([]*model.PriceRecommendation, len(products))
	errs := make([]error, len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)

	for i, item := range products {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := c.opt.Optimize(item, observations[item.ID], constraints)
			if err != nil {
				log.Warn("product optimization failed",
					zap.String("product_id", item.ID),
					zap.Error(err),
				)
				errs[i] = err
				return nil // isolate per-product failures
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Errors:    make(map[string]string),
		Timestamp: time.Now().UTC(),
	}
	for i, rec := range recs {
		if rec != nil {
			result.Recommendations = append(result.Recommendations, *rec)
		} else if errs[i] != nil {
			result.Errors[products[i].ID] = errs[i].Error()
		}
	}
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	sort.SliceStable(result.Recommendations, func(a, b int) bool {
		return result.Recommendations[a].ExpectedProfitChange > result.Recommendations[b].ExpectedProfitChange
	})

	result.Summary = summarize(len(products), result.Recommendations)

	log.Info("batch optimization complete",
		zap.Int("products", len(products)),
		zap.Int("succeeded", result.Summary.Succeeded),
		zap.Int("failed", result.Summary.Failed),
	)
	return result, nil
}

func summarize(total int, recs []model.PriceRecommendation) Summary {
	s := Summary{
		TotalProducts: total,
		Succeeded:     len(recs),
		Failed:        total - len(recs),
		RiskCounts:    make(map[model.RiskLevel]int),
	}

	var changeSum float64
	for _, r := range recs {
		changeSum += r.PriceChangePercent
		s.TotalProfitChange += r.ExpectedProfitChange
		s.TotalRevenueUplift += r.ExpectedRevenueChange
		s.RiskCounts[r.RiskLevel]++
		if r.ConfidenceScore > 0.8 {
			s.HighConfidenceCount++
		}
	}
	if len(recs) > 0 {
		s.AvgPriceChangePercent = changeSum / float64(len(recs))
	}
	return s
}
