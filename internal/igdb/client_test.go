package igdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:        baseURL,
		ClientID:       "cid",
		Timeout:        2 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

// TestGamesByID_QueryAndHeaders verifies the rendered query, auth
// headers, and response decoding for a batched id fetch.
func TestGamesByID_QueryAndHeaders(t *testing.T) {
	var gotQuery, gotAuth, gotClientID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/games" {
			t.Errorf("path = %q, want /games", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		gotQuery = string(body)
		gotAuth = r.Header.Get("Authorization")
		gotClientID = r.Header.Get("Client-ID")
		w.Write([]byte(`[{"id":4,"name":"Four"},{"id":9,"name":"Nine"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	games, err := c.GamesByID(context.Background(), "tok", []int64{4, 9})
	if err != nil {
		t.Fatalf("GamesByID() error = %v", err)
	}
	if len(games) != 2 || games[0].ID != 4 || games[1].Name != "Nine" {
		t.Errorf("GamesByID() = %+v, want 2 records", games)
	}
	if !strings.Contains(gotQuery, "where id = (4,9);") {
		t.Errorf("query = %q, want id-list where clause", gotQuery)
	}
	if !strings.Contains(gotQuery, "limit 2;") {
		t.Errorf("query = %q, want limit 2", gotQuery)
	}
	if !strings.HasPrefix(gotQuery, "fields ") {
		t.Errorf("query = %q, want fields clause first", gotQuery)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if gotClientID != "cid" {
		t.Errorf("Client-ID = %q, want cid", gotClientID)
	}
}

// TestGamesByID_EmptyIDs verifies an empty id list short-circuits
// without a network call.
func TestGamesByID_EmptyIDs(t *testing.T) {
	c := newTestClient(t, "http://unreachable.invalid")
	games, err := c.GamesByID(context.Background(), "tok", nil)
	if err != nil {
		t.Fatalf("GamesByID() error = %v", err)
	}
	if games != nil {
		t.Errorf("GamesByID() = %v, want nil", games)
	}
}

// TestGamesByID_Unauthorized verifies 401/403 surface immediately as
// ErrUnauthorized with no retries.
func TestGamesByID_Unauthorized(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GamesByID(context.Background(), "bad", []int64{1})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("GamesByID() error = %v, want ErrUnauthorized", err)
	}
	if calls != 1 {
		t.Errorf("upstream calls = %d, want 1 (no retries on auth failure)", calls)
	}
}

// TestGamesByID_RetriesServerErrors verifies 5xx responses are retried
// up to the attempt budget.
func TestGamesByID_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id":1,"name":"One"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	games, err := c.GamesByID(context.Background(), "tok", []int64{1})
	if err != nil {
		t.Fatalf("GamesByID() error = %v", err)
	}
	if len(games) != 1 {
		t.Errorf("GamesByID() = %v, want 1 record", games)
	}
	if calls != 3 {
		t.Errorf("upstream calls = %d, want 3", calls)
	}
}

// TestGamesByID_ExhaustsRetries verifies a persistently failing upstream
// eventually returns ErrUpstreamFailure.
func TestGamesByID_ExhaustsRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GamesByID(context.Background(), "tok", []int64{1})
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("GamesByID() error = %v, want ErrUpstreamFailure", err)
	}
	if calls != 3 {
		t.Errorf("upstream calls = %d, want 3 (retry budget)", calls)
	}
}

// TestGamesByID_RateLimited verifies 429 maps to ErrRateLimited.
func TestGamesByID_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GamesByID(context.Background(), "tok", []int64{1})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("GamesByID() error = %v, want ErrRateLimited", err)
	}
}

// TestNewClient_RequiresClientID verifies the constructor guard.
func TestNewClient_RequiresClientID(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "https://api.example"}); err == nil {
		t.Error("NewClient() without client id error = nil, want error")
	}
}

// TestStatusLabel covers the metric label mapping.
func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{code: 200, want: "success"},
		{code: 204, want: "success"},
		{code: 429, want: "rate_limited"},
		{code: 404, want: "client_error"},
		{code: 500, want: "server_error"},
		{code: 100, want: "error"},
	}
	for _, tc := range tests {
		if got := statusLabel(tc.code); got != tc.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}
