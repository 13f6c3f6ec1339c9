// Package lookup provides the HTTP client for the remote user link service,
// together with caller-side retry and caching decorators.
package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for link lookups.
var (
	lookupRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userlink_lookup_requests_total",
		Help: "Total link service requests by status",
	}, []string{"status"})

	lookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "userlink_lookup_duration_seconds",
		Help:    "Link service request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	lookupErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userlink_lookup_errors_total",
		Help: "Total failed link lookups by reason",
	}, []string{"reason"})
)

// maxBodyBytes caps how much of a response body is read as a link.
const maxBodyBytes = 64 << 10

// Fetcher fetches the external link for one user.
type Fetcher interface {
	Fetch(ctx context.Context, id int64) (string, error)
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the link service, e.g. "https://links.example.com".
	BaseURL string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout per request. The caller's context still bounds the total.
	Timeout time.Duration

	// RateLimit paces requests per second across all callers. <= 0 disables.
	RateLimit float64
}

// DefaultConfig returns a default configuration for the given service URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "userlink-enricher/0.1.0",
		Timeout:   5 * time.Second,
	}
}

// Client performs single link lookups against the link service.
// It never retries; see WithRetry for a caller-side policy.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new link service client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		limiter:    limiter,
		config:     cfg,
		logger:     log.With().Str("component", "lookup-client").Logger(),
	}, nil
}

// Fetch returns the external link of user id.
//
// Every failure is an *Error carrying a Reason; an empty link is never
// returned with a nil error.
func (c *Client) Fetch(ctx context.Context, id int64) (string, error) {
	if id < 0 {
		return "", c.fail(&Error{ID: id, Reason: ReasonInvalidID, Message: "negative id"})
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			reason, ok := contextReason(ctx)
			if !ok {
				// Wait refuses up front when the deadline cannot be met.
				reason = ReasonTimeout
			}
			return "", c.fail(&Error{ID: id, Reason: reason, Message: "waiting for rate limiter", Err: err})
		}
	}

	reqCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.linkURL(id), nil)
	if err != nil {
		return "", c.fail(&Error{ID: id, Reason: ReasonUnreachable, Message: "create request", Err: err})
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept", "text/plain")

	start := time.Now()
	defer func() {
		lookupDuration.Observe(time.Since(start).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.fail(c.transportError(reqCtx, id, err))
	}
	defer resp.Body.Close()

	lookupRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return "", c.fail(&Error{
			ID:         id,
			Reason:     ReasonBadResponse,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		lookupErr := c.transportError(reqCtx, id, err)
		if lookupErr.Reason == ReasonUnreachable {
			lookupErr.Reason = ReasonBadResponse
			lookupErr.StatusCode = resp.StatusCode
			lookupErr.Message = "read body"
		}
		return "", c.fail(lookupErr)
	}

	link := strings.TrimSpace(string(body))
	if link == "" {
		return "", c.fail(&Error{ID: id, Reason: ReasonBadResponse, StatusCode: resp.StatusCode, Err: ErrEmptyLink})
	}

	c.logger.Debug().
		Int64("user_id", id).
		Dur("duration", time.Since(start)).
		Msg("Link fetched")

	return link, nil
}

// linkURL builds {BaseURL}/users/{id}/link.
func (c *Client) linkURL(id int64) string {
	return c.baseURL.JoinPath("users", strconv.FormatInt(id, 10), "link").String()
}

// transportError classifies a failure that happened on the wire.
func (c *Client) transportError(ctx context.Context, id int64, err error) *Error {
	if reason, ok := contextReason(ctx); ok {
		return &Error{ID: id, Reason: reason, Err: err}
	}
	return &Error{ID: id, Reason: ReasonUnreachable, Err: err}
}

// fail records metrics and logs for a failed lookup.
func (c *Client) fail(err *Error) *Error {
	lookupErrorsTotal.WithLabelValues(string(err.Reason)).Inc()
	if err.Reason == ReasonUnreachable {
		lookupRequestsTotal.WithLabelValues("network_error").Inc()
	}
	c.logger.Warn().
		Err(err).
		Int64("user_id", err.ID).
		Str("reason", string(err.Reason)).
		Int("status_code", err.StatusCode).
		Msg("Link lookup failed")
	return err
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
