package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"casesync/pkg/config"
	errs "casesync/pkg/errors"
	"casesync/pkg/logger"
	"casesync/pkg/metrics"
	"casesync/pkg/models"
	"casesync/pkg/ratelimit"
	"casesync/pkg/retry"
	"casesync/pkg/store"
)

// Client is the single point of upstream HTTP communication. It owns response
// caching, the transport retry policy and per-endpoint call counters.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	kv         store.KV
	limiter    ratelimit.Limiter
	maxRetries int
	retryBase  time.Duration
	listingTTL time.Duration
	pageSize   int
	logger     logger.Logger
	metrics    *metrics.Metrics
	stats      *statsCollector
}

// NewClient creates a new catalog API client
func NewClient(cfg *config.Config, kv store.KV, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if cfg.Upstream.APIToken != "" {
		headers["Authorization"] = "Bearer " + cfg.Upstream.APIToken
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Upstream.RequestTimeout,
		},
		baseURL:    cfg.Upstream.BaseURL,
		headers:    headers,
		kv:         kv,
		limiter:    ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute),
		maxRetries: cfg.Upstream.MaxRetries,
		retryBase:  cfg.Upstream.RetryBaseDelay,
		listingTTL: cfg.Upstream.ListingCacheTTL,
		pageSize:   cfg.Sync.PageSize,
		logger:     log,
		metrics:    nil,
		stats:      newStatsCollector(),
	}
}

// SetMetrics attaches prometheus collectors to the client
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Stats returns a snapshot of the per-endpoint counters
func (c *Client) Stats() map[string]EndpointStats {
	return c.stats.snapshot()
}

// Request performs an upstream call under the given cache policy. On a cache
// hit the network is skipped entirely; on a miss a live request is made and,
// if it succeeds and the policy allows, the body is stored with the policy's
// TTL. Transport failures are retried with backoff; application responses
// never are.
func (c *Client) Request(ctx context.Context, endpoint, method, url string, body []byte, policy CachePolicy) ([]byte, error) {
	var key string
	if policy.cacheable() && c.kv != nil {
		key = cacheKey(method, url, body)
		if payload, ok := cacheGet(ctx, c.kv, key); ok {
			c.stats.recordCacheHit(endpoint)
			if c.metrics != nil {
				c.metrics.CacheHitsTotal.WithLabelValues(endpoint).Inc()
			}
			c.logger.DebugWithFields("cache hit", map[string]interface{}{
				"endpoint": endpoint,
				"url":      url,
			})
			return payload, nil
		}
	}

	payload, err := retry.DoWithResult(func() ([]byte, error) {
		return c.doLive(ctx, endpoint, method, url, body)
	}, &retry.Config{
		MaxAttempts: c.maxRetries,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:  c.retryBase,
			MaxDelay:   30 * time.Second,
			Multiplier: 2.0,
		},
		RetryIf: retry.DefaultRetryIf,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.stats.recordRetry(endpoint)
			if c.metrics != nil {
				c.metrics.RetriesTotal.WithLabelValues(endpoint).Inc()
			}
		},
		Context: ctx,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, err
	}

	if policy.cacheable() && c.kv != nil {
		if err := cacheSet(ctx, c.kv, key, payload, policy.TTL); err != nil {
			c.logger.WithError(err).WithField("endpoint", endpoint).Warn("failed to store cache entry")
		}
	}

	return payload, nil
}

// doLive performs a single live HTTP request and classifies failures
func (c *Client) doLive(ctx context.Context, endpoint, method, url string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		c.limiter.Wait()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &errs.ApiError{
			Kind:     errs.KindUnknown,
			Endpoint: endpoint,
			Message:  fmt.Sprintf("failed to create request: %v", err),
		}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	c.stats.recordCall(endpoint, duration, err != nil)
	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "transport_error"
		}
		c.metrics.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
		c.metrics.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	}

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   method,
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Transport(endpoint, fmt.Sprintf("network error: %v", err))
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   method,
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errs.ApiError{
			Kind:     errs.KindForStatusCode(resp.StatusCode),
			Endpoint: endpoint,
			Message:  fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Code:     resp.StatusCode,
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		// A truncated body is a transport failure, not an application one
		return nil, errs.Transport(endpoint, fmt.Sprintf("failed to read response body: %v", err))
	}

	return payload, nil
}

// getJSON performs a request and decodes the JSON response into target
func (c *Client) getJSON(ctx context.Context, endpoint, url string, policy CachePolicy, target interface{}) error {
	payload, err := c.Request(ctx, endpoint, http.MethodGet, url, nil, policy)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(payload, target); err != nil {
		preview := string(payload)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"endpoint":     endpoint,
			"url":          url,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errs.Parsing(endpoint, fmt.Sprintf("failed to parse JSON: %v", err), 0)
	}

	return nil
}

// FetchTaxonomy fetches the full procedure taxonomy. Always a live call.
func (c *Client) FetchTaxonomy(ctx context.Context) ([]models.Procedure, error) {
	var response taxonomyResponse
	if err := c.getJSON(ctx, EndpointTaxonomy, TaxonomyURL(c.baseURL), NoCache, &response); err != nil {
		return nil, err
	}

	procedures := make([]models.Procedure, 0, len(response.Procedures))
	for _, p := range response.Procedures {
		if p.ID == "" {
			c.logger.Warn("skipping taxonomy entry without id")
			continue
		}
		procedures = append(procedures, mapProcedure(p))
	}

	return procedures, nil
}

// FetchCaseListing fetches one page of a procedure's case listing. Listing
// pages are cacheable with the configured TTL.
func (c *Client) FetchCaseListing(ctx context.Context, procedureID string, page int) (ListingPage, error) {
	url := CaseListingURL(c.baseURL, procedureID, page, c.pageSize)

	var response listingResponse
	if err := c.getJSON(ctx, EndpointCaseListing, url, TTL(c.listingTTL), &response); err != nil {
		return ListingPage{}, err
	}

	return mapListing(response, c.pageSize), nil
}

// FetchCaseDetail fetches one case by external id. Always a live call so a
// resumed run never upserts stale data.
func (c *Client) FetchCaseDetail(ctx context.Context, caseID string, procedureIDs []string) (models.Case, error) {
	url := CaseDetailURL(c.baseURL, caseID)

	payload, err := c.Request(ctx, EndpointCaseDetail, http.MethodGet, url, nil, NoCache)
	if err != nil {
		return models.Case{}, err
	}

	var response caseDetailResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return models.Case{}, errs.Parsing(EndpointCaseDetail, fmt.Sprintf("failed to parse JSON: %v", err), 0)
	}
	if response.ID == "" {
		response.ID = caseID
	}

	return mapCase(response, payload, procedureIDs), nil
}
