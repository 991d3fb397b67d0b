// Package token caches the upstream provider's bearer credential in the
// shared cache store, refreshing it through a client-credentials exchange
// only when the cached value is absent or expired.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dkarlsen/gamepulse/internal/kvstore"
	"github.com/dkarlsen/gamepulse/internal/observability"
)

// cacheKey is the single well-known key the token lives under.
const cacheKey = "igdb:token"

// ErrExchangeFailed wraps any failure to obtain a credential upstream.
var ErrExchangeFailed = errors.New("token exchange failed")

// AuthError carries the upstream status and body for diagnostics when
// the credential exchange is rejected.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token exchange rejected: HTTP %d: %s", e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return ErrExchangeFailed }

// Exchanger obtains a fresh bearer token from the credential endpoint.
type Exchanger interface {
	Exchange(ctx context.Context) (string, error)
}

// Cache is a read-through cache for the upstream bearer token.
// Concurrent misses may each exchange and overwrite the key
// (last-writer-wins); re-fetching a token is idempotent so this costs
// an extra round trip, not correctness.
type Cache struct {
	store     kvstore.Store
	exchanger Exchanger
	ttl       time.Duration
	logger    *zap.Logger
}

// NewCache creates a token Cache storing tokens with the given TTL.
func NewCache(store kvstore.Store, exchanger Exchanger, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{store: store, exchanger: exchanger, ttl: ttl, logger: logger}
}

// GetToken returns the cached bearer token, exchanging credentials on a
// miss and caching the result. Failed exchanges are never cached.
func (c *Cache) GetToken(ctx context.Context) (string, error) {
	cached, ok, err := c.store.Get(ctx, cacheKey)
	if err != nil {
		// A broken cache store should not take token access down with it;
		// fall through to a direct exchange.
		observability.CacheStoreErrorsTotal.WithLabelValues("token_get").Inc()
		c.logger.Warn("token cache read failed", zap.Error(err))
	} else if ok {
		observability.TokenCacheHitsTotal.Inc()
		return cached, nil
	}

	fresh, err := c.exchanger.Exchange(ctx)
	if err != nil {
		observability.TokenFetchesTotal.WithLabelValues("error").Inc()
		return "", err
	}
	observability.TokenFetchesTotal.WithLabelValues("success").Inc()

	if err := c.store.Set(ctx, cacheKey, fresh, c.ttl); err != nil {
		observability.CacheStoreErrorsTotal.WithLabelValues("token_set").Inc()
		c.logger.Warn("token cache write failed", zap.Error(err))
	}
	return fresh, nil
}

// ClientCredentialsExchanger implements Exchanger against a Twitch-style
// OAuth client-credentials endpoint.
type ClientCredentialsExchanger struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client
}

// NewClientCredentialsExchanger creates an exchanger for the given
// endpoint and pre-shared credentials.
func NewClientCredentialsExchanger(tokenURL, clientID, clientSecret string, timeout time.Duration) (*ClientCredentialsExchanger, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: client id and secret are required", ErrExchangeFailed)
	}
	return &ClientCredentialsExchanger{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Exchange performs the client-credentials exchange and returns the
// bearer token. Non-2xx responses surface as *AuthError.
func (e *ClientCredentialsExchanger) Exchange(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", e.clientID)
	form.Set("client_secret", e.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: malformed token response: %v", ErrExchangeFailed, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing access_token", ErrExchangeFailed)
	}
	return tr.AccessToken, nil
}
