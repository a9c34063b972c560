package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pricewise/pricewise/internal/model"
	"github.com/pricewise/pricewise/internal/resilience"
)

// httpListing is one entry in a store's JSON search response.
type httpListing struct {
	Title    string   `json:"title"`
	Price    *float64 `json:"price"`
	Currency string   `json:"currency"`
	Brand    string   `json:"brand"`
	URL      string   `json:"url"`
	InStock  bool     `json:"in_stock"`
}

type httpSearchResponse struct {
	Results []httpListing `json:"results"`
}

// HTTPWorker queries a store's JSON search endpoint. Requests are rate
// limited per store and retried on transient failures.
type HTTPWorker struct {
	name      string
	endpoint  string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// NewHTTPWorker builds an HTTP worker from a registry entry.
func NewHTTPWorker(sc StoreConfig) (*HTTPWorker, error) {
	if sc.Endpoint == "" {
		return nil, eris.Errorf("feed: http store %q has no endpoint", sc.Name)
	}
	if _, err := url.Parse(sc.Endpoint); err != nil {
		return nil, eris.Wrapf(err, "feed: http store %q endpoint", sc.Name)
	}

	rps := sc.Rate
	if rps <= 0 {
		rps = 5
	}
	burst := sc.Burst
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := sc.UserAgent
	if ua == "" {
		ua = "pricewise/1.0"
	}

	return &HTTPWorker{
		name:      sc.Name,
		endpoint:  sc.Endpoint,
		userAgent: ua,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		retry:     resilience.DefaultRetryConfig(),
	}, nil
}

func (w *HTTPWorker) Store() string { return w.name }

// Fetch runs one search against the store endpoint. The endpoint does the
// relevance filtering; we only cap the result count.
func (w *HTTPWorker) Fetch(ctx context.Context, query string, limit int) ([]model.RawObservation, error) {
	resp, err := resilience.Do(ctx, w.retry, func(ctx context.Context) (*httpSearchResponse, error) {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "feed: rate limiter wait")
		}
		return w.search(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	obs := make([]model.RawObservation, 0, len(resp.Results))
	for _, l := range resp.Results {
		if l.Title == "" || l.URL == "" {
			continue
		}
		obs = append(obs, model.RawObservation{
			StoreName:  w.name,
			Title:      l.Title,
			Price:      l.Price,
			Currency:   l.Currency,
			Brand:      l.Brand,
			ProductURL: l.URL,
			InStock:    l.InStock,
			ScrapedAt:  now,
		})
		if len(obs) >= limit {
			break
		}
	}

	zap.L().Debug("http feed search",
		zap.String("store", w.name),
		zap.String("query", query),
		zap.Int("results", len(obs)),
	)
	return obs, nil
}

func (w *HTTPWorker) search(ctx context.Context, query string, limit int) (*httpSearchResponse, error) {
	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, eris.Wrap(err, "feed: parse endpoint")
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "feed: create request")
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "feed: %s request", w.name), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("feed: %s returned status %d", w.name, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var out httpSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrapf(err, "feed: decode %s response", w.name)
	}
	return &out, nil
}
