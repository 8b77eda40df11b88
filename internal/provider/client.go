// Package provider fetches table schemas from the external workspace API
// and normalizes them into core.RawTable and core.RawRelation values.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// Defaults for the provider API.
const (
	DefaultBaseURL  = "https://api.notion.com/v1"
	DefaultVersion  = "2022-06-28"
	MaxPageSize     = 100
	DefaultTimeout  = 10 * time.Second
	DefaultRate     = 3.0
	DefaultBurst    = 3
	maxErrorBodyLen = 4 << 10
)

// Client calls the provider's search endpoint.
type Client struct {
	baseURL  string
	version  string
	pageSize int
	language string
	http     *http.Client
	limiter  *rate.Limiter
	requests *prometheus.CounterVec
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithVersion sets the schema-version header value.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithPageSize sets the search page size, clamped to 1..MaxPageSize.
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = clampPageSize(n) }
}

// WithLanguage sets the language used for the untitled placeholder.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithHTTPClient sets the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit limits outgoing requests. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRegisterer registers the request counter on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schemagraph_provider_requests_total",
			Help: "Schema fetches by result kind",
		}, []string{"result"})
		if err := reg.Register(counter); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				counter = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				return
			}
		}
		c.requests = counter
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client with defaults applied before opts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		version:  DefaultVersion,
		pageSize: MaxPageSize,
		http:     &http.Client{Timeout: DefaultTimeout},
		limiter:  rate.NewLimiter(rate.Limit(DefaultRate), DefaultBurst),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func clampPageSize(n int) int {
	switch {
	case n <= 0:
		return MaxPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// FetchSchema lists every database the token can see and normalizes it.
// Failures are *core.SyncError values and are never retried here.
func (c *Client) FetchSchema(ctx context.Context, providerToken string) (*core.Schema, error) {
	if strings.TrimSpace(providerToken) == "" {
		return nil, c.count(&core.SyncError{
			Kind:    core.KindInvalidCredential,
			Message: core.InvalidCredentialMessage,
		})
	}

	resp, err := c.search(ctx, providerToken)
	if err != nil {
		return nil, c.count(err)
	}

	schema := normalize(resp.Results, Untitled(c.language))
	c.logger.Debug("schema fetched",
		slog.Int("tables", len(schema.Tables)),
		slog.Int("relations", len(schema.Relations)),
		slog.Bool("has_more", resp.HasMore))
	_ = c.count(nil)
	return schema, nil
}

func (c *Client) search(ctx context.Context, token string) (*searchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, core.NewNetworkError(err)
		}
	}

	body, err := json.Marshal(searchRequest{
		Filter:   searchFilter{Value: "database", Property: "object"},
		PageSize: c.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, &core.SyncError{
			Kind:    core.KindInvalidCredential,
			Status:  res.StatusCode,
			Message: core.InvalidCredentialMessage,
		}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyLen))
		return nil, core.NewSyncFailed(res.StatusCode, errorMessage(raw, res.StatusCode))
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, core.NewSyncFailed(res.StatusCode, "malformed search response: "+err.Error())
	}
	return &out, nil
}

// errorMessage prefers the provider's own message over the raw body.
func errorMessage(raw []byte, status int) string {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return http.StatusText(status)
}

func (c *Client) count(err error) error {
	if c.requests == nil {
		return err
	}
	result := "ok"
	if err != nil {
		result = "error"
		if k, ok := core.KindOf(err); ok {
			result = k.String()
		}
	}
	c.requests.WithLabelValues(result).Inc()
	return err
}
