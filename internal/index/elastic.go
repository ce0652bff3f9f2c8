// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/metrics"
	"github.com/tomtom215/indexsync/internal/models"
)

// Config configures the Elasticsearch-compatible gateway.
type Config struct {
	URL      string `koanf:"url"`
	Name     string `koanf:"name"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// ConnectTimeout bounds dialing. ReadTimeout bounds waiting for response headers.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`

	// RateLimit is requests per second. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// Refresh is passed through as the refresh query parameter when set.
	Refresh string `koanf:"refresh"`

	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
}

// DefaultConfig returns gateway defaults for a local single node.
func DefaultConfig() Config {
	return Config{
		URL:                 "http://localhost:9200",
		Name:                "entities",
		ConnectTimeout:      2 * time.Second,
		ReadTimeout:         5 * time.Second,
		RateLimit:           0,
		RateBurst:           50,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.6,
		BreakerTimeout:      30 * time.Second,
	}
}

// ElasticGateway implements Gateway against the Elasticsearch document API.
//
// Versioned writes use version_type=external so the cluster rejects any write
// whose version is not strictly greater than the stored one.
type ElasticGateway struct {
	baseURL    *url.URL
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[*http.Response]
}

var _ Gateway = (*ElasticGateway)(nil)

// NewElasticGateway creates a gateway for cfg.URL.
func NewElasticGateway(cfg Config) (*ElasticGateway, error) {
	u, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid index url %q", cfg.URL)
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}

	g := &ElasticGateway{
		baseURL:    u,
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	g.cb = newBreaker("search-index", cfg)
	return g, nil
}

func newBreaker(name string, cfg Config) *gobreaker.CircuitBreaker[*http.Response] {
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= ratio
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
		// Only transient failures count against the breaker. A 4xx means the
		// cluster is healthy and the request was wrong.
		IsSuccessful: func(err error) bool {
			return err == nil || !KindOf(err).Retryable()
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// CreateEntity indexes e under its own id, overwriting any existing document.
func (g *ElasticGateway) CreateEntity(ctx context.Context, index string, e *models.Entity) (*models.Entity, error) {
	if e == nil || e.ID == "" {
		return nil, NewStatusError(http.StatusBadRequest, "document with id is required")
	}
	if err := g.do(ctx, OpCreate, http.MethodPut, g.docPath(index, "_doc", e.ID), nil, e, false); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEntity applies a partial update, creating the document if missing.
func (g *ElasticGateway) UpdateEntity(ctx context.Context, index, id string, e *models.Entity) (*models.Entity, error) {
	if e == nil {
		return nil, NewStatusError(http.StatusBadRequest, "document is required")
	}
	body := map[string]interface{}{"doc": e, "doc_as_upsert": true}
	if err := g.do(ctx, OpUpdate, http.MethodPost, g.docPath(index, "_update", id), nil, body, false); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEntity removes a document. A missing document is not an error.
func (g *ElasticGateway) DeleteEntity(ctx context.Context, index, id string) (bool, error) {
	if err := g.do(ctx, OpDelete, http.MethodDelete, g.docPath(index, "_doc", id), nil, nil, true); err != nil {
		return false, err
	}
	return true, nil
}

// CreateEntityWithVersion indexes e with an external version.
func (g *ElasticGateway) CreateEntityWithVersion(ctx context.Context, index, id string, e *models.Entity, version int64) (*models.Entity, error) {
	return g.putVersioned(ctx, OpCreateVersioned, index, id, e, version)
}

// UpdateEntityWithVersion replaces the document with an external version. The
// _update API does not accept external versions, so this is a full index call.
func (g *ElasticGateway) UpdateEntityWithVersion(ctx context.Context, index, id string, e *models.Entity, version int64) (*models.Entity, error) {
	return g.putVersioned(ctx, OpUpdateVersioned, index, id, e, version)
}

// DeleteEntityWithVersion deletes with an external version. A missing
// document is not an error but a stale version is.
func (g *ElasticGateway) DeleteEntityWithVersion(ctx context.Context, index, id string, version int64) (bool, error) {
	if err := g.do(ctx, OpDeleteVersioned, http.MethodDelete, g.docPath(index, "_doc", id), versionQuery(version), nil, true); err != nil {
		return false, err
	}
	return true, nil
}

func (g *ElasticGateway) putVersioned(ctx context.Context, op Op, index, id string, e *models.Entity, version int64) (*models.Entity, error) {
	if e == nil {
		return nil, NewStatusError(http.StatusBadRequest, "document is required")
	}
	if version <= 0 {
		return nil, NewStatusError(http.StatusBadRequest, "external version must be positive")
	}
	if err := g.do(ctx, op, http.MethodPut, g.docPath(index, "_doc", id), versionQuery(version), e, false); err != nil {
		return nil, err
	}
	return e, nil
}

// Healthy reports whether the cluster answers its health endpoint with a
// status other than red. It bypasses the breaker and the rate limiter.
func (g *ElasticGateway) Healthy(ctx context.Context) bool {
	req, err := g.newRequest(ctx, http.MethodGet, "/_cluster/health", nil, nil)
	if err != nil {
		return false
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status != "red"
}

func versionQuery(version int64) url.Values {
	q := url.Values{}
	q.Set("version", strconv.FormatInt(version, 10))
	q.Set("version_type", "external")
	return q
}

func (g *ElasticGateway) docPath(index, endpoint, id string) string {
	return "/" + url.PathEscape(index) + "/" + endpoint + "/" + url.PathEscape(id)
}

// do performs one request through the rate limiter and circuit breaker.
// With notFoundOK a 404 is treated as success.
func (g *ElasticGateway) do(ctx context.Context, op Op, method, path string, query url.Values, body interface{}, notFoundOK bool) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordIndexRequest(string(op), KindOf(err).String(), time.Since(start))
	}()

	if g.limiter != nil {
		if werr := g.limiter.Wait(ctx); werr != nil {
			return Transient("RateLimiterWait", werr)
		}
	}

	req, err := g.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := g.cb.Execute(func() (*http.Response, error) {
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, Transient("", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		defer func() { _ = resp.Body.Close() }()
		if notFoundOK && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, decodeError(resp)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(g.cb.Name(), "rejected").Inc()
			return Transient("CircuitOpen", err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(g.cb.Name(), "failure").Inc()
		return err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(g.cb.Name(), "success").Inc()
	if resp != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	return nil
}

func (g *ElasticGateway) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	u := *g.baseURL
	u.Path = g.baseURL.Path + path
	if query == nil {
		query = url.Values{}
	}
	if g.cfg.Refresh != "" {
		query.Set("refresh", g.cfg.Refresh)
	}
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, NewStatusError(http.StatusBadRequest, fmt.Sprintf("encode document: %v", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, NewStatusError(http.StatusBadRequest, fmt.Sprintf("build request: %v", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if g.cfg.Username != "" {
		req.SetBasicAuth(g.cfg.Username, g.cfg.Password)
	}
	return req, nil
}

// esErrorBody is the error envelope returned by the cluster.
type esErrorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

func decodeError(resp *http.Response) *Error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	reason := http.StatusText(resp.StatusCode)
	var body esErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Reason != "" {
		reason = body.Error.Reason
	} else if len(data) > 0 && len(data) < 512 {
		reason = strings.TrimSpace(string(data))
	}
	return NewStatusError(resp.StatusCode, reason)
}
