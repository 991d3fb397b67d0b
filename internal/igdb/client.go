// Package igdb is the client for the upstream game-metadata API.
package igdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/dkarlsen/gamepulse/internal/models"
	"github.com/dkarlsen/gamepulse/internal/observability"
)

var (
	ErrUnauthorized    = errors.New("upstream rejected credentials")
	ErrRateLimited     = errors.New("upstream rate limited")
	ErrUpstreamFailure = errors.New("upstream failure")
)

// gameFields is the field list requested for every game fetch. It must
// stay in sync with models.GameRecord.
const gameFields = "fields id,name,slug,summary,first_release_date,rating," +
	"cover.image_id,cover.url," +
	"genres.name,platforms.name,game_modes.name,game_types.name," +
	"screenshots.image_id,screenshots.url,websites.url,websites.category;"

// Client fetches game records from the upstream provider. Calls go
// through a circuit breaker so a failing upstream sheds load instead of
// tying up batch invocations in retries.
type Client struct {
	baseURL        string
	clientID       string
	timeout        time.Duration
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker[[]models.GameRecord]
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// Config holds client settings.
type Config struct {
	BaseURL        string
	ClientID       string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	BreakerTimeout time.Duration
}

// NewClient creates an upstream Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrUnauthorized)
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[[]models.GameRecord](gobreaker.Settings{
		Name:    "igdb",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		clientID:       cfg.ClientID,
		timeout:        cfg.Timeout,
		client:         &http.Client{Timeout: cfg.Timeout},
		breaker:        breaker,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
	}, nil
}

// GamesByID fetches canonical records for the given ids in a single
// batched call, authenticated with the provided bearer token. The
// upstream caps list queries, so callers should keep len(ids) <= 100.
func (c *Client) GamesByID(ctx context.Context, accessToken string, ids []int64) ([]models.GameRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := c.buildQuery(ids)

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.breaker.Execute(func() ([]models.GameRecord, error) {
			return c.callAPI(ctx, accessToken, query)
		})
		if err == nil {
			return result, nil
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || !c.isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

// buildQuery renders the Apicalypse query for an id-list fetch.
func (c *Client) buildQuery(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return gameFields +
		" where id = (" + strings.Join(parts, ",") + ");" +
		" limit " + strconv.Itoa(len(ids)) + ";"
}

func (c *Client) callAPI(ctx context.Context, accessToken, query string) ([]models.GameRecord, error) {
	start := time.Now()

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/games", strings.NewReader(query))
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues("error").Inc()
		observability.UpstreamCallDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(status).Inc()
	observability.UpstreamCallDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var games []models.GameRecord
	if err := json.Unmarshal(body, &games); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return games, nil
}

func (c *Client) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context deadline exceeded")
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
