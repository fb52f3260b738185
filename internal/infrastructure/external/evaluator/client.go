// Package evaluator implements the HTTP client for the external scoring
// service that grades free-text scenario responses. The engine never
// interprets the response text itself: it sends the text out, gets a
// 0-100 score back, and feeds that score into the progress pipeline.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
	"github.com/pmcraft/pmcraft-hub/pkg/circuitbreaker"
	"github.com/pmcraft/pmcraft-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the scoring service client.
type ClientConfig struct {
	// BaseURL is the scoring service base URL
	BaseURL string

	// APIKey authenticates the engine against the scoring service
	APIKey string

	// Timeout is the HTTP request timeout. LLM calls are slow; the
	// default is generous on purpose.
	Timeout time.Duration

	// RateLimiterConfig for client-side throttling
	RateLimiterConfig RateLimiterConfig

	// Logger for structured logging
	Logger *slog.Logger

	// Debug enables request-level debug logging
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           60 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the scoring service API client. Calls go through a client-side
// rate limiter, a retrier for transient failures, and a circuit breaker
// that fails fast when the service is down.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
}

// NewClient creates a new scoring service client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	logger := config.Logger

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:      logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker: circuitbreaker.EvaluatorBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("evaluator circuit state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}),
		retrier: retry.EvaluatorRetrier(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYSIS OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// AnalyzeResponse submits a free-text scenario response for scoring.
// The returned score is guaranteed to be in [0, 100].
func (c *Client) AnalyzeResponse(ctx context.Context, req AnalysisRequestDTO) (*AnalysisResultDTO, error) {
	var result AnalysisResultDTO
	if err := c.doRequest(ctx, http.MethodPost, "/v1/analyze", req, &result); err != nil {
		return nil, fmt.Errorf("analyze response for scenario %s: %w", req.ScenarioID, err)
	}

	if !result.IsScoreValid() {
		return nil, fmt.Errorf("%w: score %d out of range", shared.ErrEvaluatorInvalidResponse, result.Score)
	}

	return &result, nil
}

// IsHealthy checks whether the scoring service is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	var health HealthDTO
	if err := c.doSingleRequest(ctx, http.MethodGet, "/v1/health", nil, &health); err != nil {
		return false
	}
	return health.Status == "ok"
}

// BreakerState returns the current circuit breaker state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

// Reset resets the rate limiter and circuit breaker.
func (c *Client) Reset() {
	c.rateLimiter.Reset()
	c.breaker.Reset()
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request with rate limiting, circuit breaking,
// and retries. Transient failures (429, 5xx, network errors) are retried;
// everything else fails immediately.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		err := c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Allow(ctx); err != nil {
				return retry.Permanent(fmt.Errorf("%w: %v", shared.ErrEvaluatorRateLimited, err))
			}

			reqErr := c.doSingleRequest(ctx, method, path, body, result)
			if reqErr == nil {
				return nil
			}

			var rateLimitErr *RateLimitError
			if errors.As(reqErr, &rateLimitErr) {
				c.rateLimiter.RecordRateLimitHit(rateLimitErr.RetryAfter)
				return retry.Retryable(fmt.Errorf("%w: %v", shared.ErrEvaluatorRateLimited, reqErr))
			}

			var apiErr *APIErrorDTO
			if errors.As(reqErr, &apiErr) {
				if apiErr.Status >= 500 {
					return retry.Retryable(fmt.Errorf("%w: %v", shared.ErrEvaluatorUnavailable, reqErr))
				}
				return retry.Permanent(reqErr)
			}

			if errors.Is(reqErr, context.DeadlineExceeded) {
				return retry.Retryable(fmt.Errorf("%w: %v", shared.ErrEvaluatorTimeout, reqErr))
			}
			if errors.Is(reqErr, shared.ErrEvaluatorInvalidResponse) {
				return retry.Permanent(reqErr)
			}

			// Remaining transport errors are worth one more try.
			return retry.Retryable(fmt.Errorf("%w: %v", shared.ErrEvaluatorUnavailable, reqErr))
		})
		return err
	})
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("evaluator api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 30 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{
			RetryAfter: retryAfter,
			Message:    "scoring service rate limit exceeded",
		}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIErrorDTO{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Code = "HTTP_" + strconv.Itoa(resp.StatusCode)
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrEvaluatorInvalidResponse, err)
		}
	}

	return nil
}
