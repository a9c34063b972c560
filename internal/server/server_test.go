package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/batch"
	"github.com/pricewise/pricewise/internal/matcher"
	"github.com/pricewise/pricewise/internal/model"
	"github.com/pricewise/pricewise/internal/optimizer"
	"github.com/pricewise/pricewise/internal/scraper"
	"github.com/pricewise/pricewise/internal/store"
)

type stubWorker struct {
	name    string
	delay   time.Duration
	results []model.RawObservation
}

func (w *stubWorker) Store() string { return w.name }

func (w *stubWorker) Fetch(ctx context.Context, query string, limit int) ([]model.RawObservation, error) {
	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return w.results, nil
}

func price(v float64) *float64 { return &v }

func newTestServer(t *testing.T, workers []scraper.Worker) *Server {
	t.Helper()

	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })

	catalog := []model.CatalogItem{
		{ID: "sku-1", Name: "Trailblazer Hiking Boots", CurrentPrice: 120, UnitCost: 60, Currency: "USD", Category: "boots"},
	}
	orch := scraper.New(st, matcher.New(), workers, catalog, scraper.Config{
		Concurrency:   2,
		WorkerTimeout: time.Second,
		MaxPerStore:   5,
	})
	opt := optimizer.New(optimizer.Config{})
	return New(orch, opt, batch.New(opt, 2))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, []scraper.Worker{&stubWorker{name: "alpha"}}).Handler()
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestScrapingLifecycle(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, []scraper.Worker{
		&stubWorker{name: "alpha", results: []model.RawObservation{{
			StoreName:  "alpha",
			Title:      "Trail Hiking Boots",
			Price:      price(99.95),
			Currency:   "USD",
			ProductURL: "https://alpha.example/boots",
			InStock:    true,
			ScrapedAt:  time.Now().UTC(),
		}}},
	}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/start-scraping", map[string]any{
		"target_products": []string{"hiking boots"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started map[string]string
	decode(t, rec, &started)
	taskID := started["task_id"]
	require.NotEmpty(t, taskID)
	assert.Equal(t, "pending", started["status"])

	var job model.ScrapeJob
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, h, http.MethodGet, "/scraping-progress/"+taskID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &job)
		if job.Status.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.ProductsFound)

	rec = doJSON(t, h, http.MethodGet, "/scraping-results/"+taskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The results endpoint returns the bare observation list.
	var results []model.CompetitorObservation
	decode(t, rec, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "sku-1", results[0].ProductID)
}

func TestStartScrapingValidation(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, []scraper.Worker{&stubWorker{name: "alpha"}}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/start-scraping", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/start-scraping", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownTaskReturns404(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, []scraper.Worker{&stubWorker{name: "alpha"}}).Handler()

	rec := doJSON(t, h, http.MethodGet, "/scraping-progress/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/scraping-results/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResultsBeforeCompletionReturns409(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, []scraper.Worker{
		&stubWorker{name: "slow", delay: 500 * time.Millisecond},
	}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/start-scraping", map[string]any{
		"target_products": []string{"boots"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started map[string]string
	decode(t, rec, &started)

	rec = doJSON(t, h, http.MethodGet, "/scraping-results/"+started["task_id"], nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOptimizePrice(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, []scraper.Worker{&stubWorker{name: "alpha"}}).Handler()

	rec := doJSON(t, h, http.MethodPost, "/optimize-price", map[string]any{
		"product": map[string]any{
			"id": "sku-1", "name": "Boots", "current_price": 60.0,
			"unit_cost": 20.0, "currency": "USD",
		},
		"competitors": []map[string]any{
			{"product_id": "sku-1", "store_name": "alpha", "title": "Boots", "price": 55.0, "currency": "USD", "product_url": "https://x/1", "in_stock": true, "match_score": 0.8, "match_confidence": "high"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rec2 model.PriceRecommendation
	decode(t, rec, &rec2)
	assert.Equal(t, "sku-1", rec2.ProductID)
	assert.Greater(t, rec2.RecommendedPrice, 0.0)
	assert.NotEmpty(t, rec2.Rationale)
	// The competitor list must feed the market model, not the fallback path.
	assert.False(t, rec2.HasFlag(model.FlagNoCompetitorData))
	assert.NotEqual(t, model.PositionNoData, rec2.CompetitivePosition)
}

func TestOptimizePriceInvalidInput(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, []scraper.Worker{&stubWorker{name: "alpha"}}).Handler()

	// unit cost above current price is rejected by the optimizer
	rec := doJSON(t, h, http.MethodPost, "/optimize-price", map[string]any{
		"product": map[string]any{
			"id": "sku-1", "name": "Boots", "current_price": 20.0,
			"unit_cost": 50.0, "currency": "USD",
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimizeBatch(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, []scraper.Worker{&stubWorker{name: "alpha"}}).Handler()

	products := make([]map[string]any, 3)
	for i := range products {
		products[i] = map[string]any{
			"id": fmt.Sprintf("sku-%d", i+1), "name": fmt.Sprintf("Product %d", i+1),
			"current_price": 60.0, "unit_cost": 20.0, "currency": "USD",
		}
	}

	rec := doJSON(t, h, http.MethodPost, "/optimize-batch", map[string]any{
		"products": products,
		"competitor_data": map[string]any{
			"sku-1": []map[string]any{
				{"product_id": "sku-1", "store_name": "alpha", "title": "Product 1", "price": 55.0, "currency": "USD", "product_url": "https://x/1", "in_stock": true, "match_score": 0.8, "match_confidence": "high"},
			},
		},
		"global_constraints": map[string]any{
			"min_margin_percent":         20.0,
			"max_price_increase_percent": 50.0,
			"psychological_pricing":      false,
			"competitive_positioning":    "competitive",
			"demand_sensitivity":         1.0,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result batch.Result
	decode(t, rec, &result)
	assert.Equal(t, 3, result.Summary.TotalProducts)
	assert.Equal(t, 3, result.Summary.Succeeded)
	require.Len(t, result.Recommendations, 3)

	for _, r := range result.Recommendations {
		// global_constraints disabled psychological endings for every product
		assert.False(t, r.HasFlag(model.FlagPsychologicalApplied))
		if r.ProductID == "sku-1" {
			assert.False(t, r.HasFlag(model.FlagNoCompetitorData))
		} else {
			assert.True(t, r.HasFlag(model.FlagNoCompetitorData))
		}
	}

	rec = doJSON(t, h, http.MethodPost, "/optimize-batch", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
