// Package search talks to the external product search API. The client fetches
// the current ranked result list for a query against a site's configured
// endpoint; the refresher persists those lists and triggers rescoring.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
	apperrors "github.com/opencommercesearch/relevancy-engine/pkg/errors"
	"github.com/opencommercesearch/relevancy-engine/pkg/metrics"
	"github.com/opencommercesearch/relevancy-engine/pkg/resilience"
)

// Provider fetches the current ranked results for a query on a site.
type Provider interface {
	Search(ctx context.Context, site *model.Site, query string) ([]model.ResultItem, error)
}

// Client is the HTTP product search client. Calls run behind a retry policy
// and a circuit breaker shared across all sites.
type Client struct {
	httpClient  *http.Client
	resultLimit int
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewClient creates a search Client. metrics may be nil.
func NewClient(searchCfg config.SearchConfig, scoringCfg config.ScoringConfig, m *metrics.Metrics) *Client {
	breaker := resilience.NewCircuitBreaker("search-api", resilience.CircuitBreakerConfig{})
	if m != nil {
		breaker.OnStateChange(func(name string, state resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
		})
	}
	return &Client{
		httpClient:  &http.Client{Timeout: searchCfg.Timeout},
		resultLimit: scoringCfg.ResultLimit,
		retry:       resilience.RetryConfig{MaxAttempts: searchCfg.MaxAttempts},
		breaker:     breaker,
		metrics:     m,
		logger:      slog.Default().With("component", "search-client"),
	}
}

type searchResponse struct {
	Metadata struct {
		Found int `json:"found"`
	} `json:"metadata"`
	Products []searchProduct `json:"products"`
}

type searchProduct struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Brand struct {
		Name string `json:"name"`
	} `json:"brand"`
	Skus []struct {
		Image struct {
			URL string `json:"url"`
		} `json:"image"`
	} `json:"skus"`
}

// Search fetches the ranked result list for query against site's API. Any
// failure, including an empty result set, yields an ErrSearch so callers can
// keep the previously stored results.
func (c *Client) Search(ctx context.Context, site *model.Site, query string) ([]model.ResultItem, error) {
	start := time.Now()
	var items []model.ResultItem
	err := c.breaker.Execute(func() error {
		return resilience.Retry(ctx, "search-api", c.retry, func() error {
			var err error
			items, err = c.fetch(ctx, site, query)
			return err
		})
	})
	if c.metrics != nil {
		c.metrics.SearchCallDuration.Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.SearchCallsTotal.WithLabelValues(status).Inc()
	}
	if err != nil {
		c.logger.Error("search call failed", "site", site.Code, "query", query, "error", err)
		return nil, err
	}
	c.logger.Debug("search call finished", "site", site.Code, "query", query, "results", len(items))
	return items, nil
}

func (c *Client) fetch(ctx context.Context, site *model.Site, query string) ([]model.ResultItem, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("site", site.Code)
	params.Set("fields", site.Fields)
	params.Set("metadata", "found")
	params.Set("preview", "false")
	params.Set("limit", strconv.Itoa(c.resultLimit))
	endpoint := site.APIURL + "/v1/products?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building search request: %v", resilience.Permanent, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling search api: %v", apperrors.ErrSearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: search api returned status %d", apperrors.ErrSearch, resp.StatusCode)
	}
	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding search response: %v", apperrors.ErrSearch, err)
	}
	if body.Metadata.Found == 0 || len(body.Products) == 0 {
		// An empty result set will not improve on retry.
		return nil, fmt.Errorf("%w: no products found for %q on %s: %w",
			resilience.Permanent, query, site.Code, apperrors.ErrSearch)
	}

	items := make([]model.ResultItem, 0, len(body.Products))
	for i, p := range body.Products {
		item := model.ResultItem{
			ProductID: p.ID,
			Rank:      i,
			Title:     p.Title,
			Brand:     p.Brand.Name,
		}
		if len(p.Skus) > 0 {
			item.ImageURL = p.Skus[0].Image.URL
		}
		items = append(items, item)
	}
	return items, nil
}
