// Package popularity maintains per-game popularity counters in the
// shared cache store, rate-limits updates per game, and flips the
// durable is_popular flag once a game crosses the threshold.
package popularity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dkarlsen/gamepulse/internal/kvstore"
	"github.com/dkarlsen/gamepulse/internal/observability"
)

// Action is a user signal against a game.
type Action string

const (
	ActionView     Action = "view"
	ActionLibrary  Action = "library"
	ActionWishlist Action = "wishlist"
	ActionRate     Action = "rate"
)

var (
	ErrInvalidGameID    = errors.New("game id must be positive")
	ErrInvalidAction    = errors.New("unknown action")
	ErrStoreUnavailable = errors.New("cache store unavailable")
)

// ReadFailurePolicy controls what a counter read failure does to the
// tracking flow.
type ReadFailurePolicy string

const (
	// AssumeZero treats an unreadable counter/marker as absent, so user
	// actions are never blocked by a cache-store outage.
	AssumeZero ReadFailurePolicy = "assume_zero"
	// FailClosed surfaces read failures to the caller. Used by tests and
	// deployments that prefer visibility over availability.
	FailClosed ReadFailurePolicy = "fail"
)

// FlagStore is the durable record-store surface the tracker needs for
// the one-way popularity flag.
type FlagStore interface {
	IsPopular(ctx context.Context, gameID int64) (bool, error)
	MarkPopular(ctx context.Context, gameID int64) error
}

// Config holds tracker tuning. Zero values are replaced with the
// defaults the production system runs with.
type Config struct {
	Threshold       int64             // counter value that makes a game popular (default 10)
	CounterTTL      time.Duration     // counter lifetime from last increment (default 7d)
	RateWindow      time.Duration     // minimum interval between accepted updates per game (default 60s)
	ViewIncrement   int64             // magnitude for view (default 1)
	StrongIncrement int64             // magnitude for library/wishlist/rate (default 2)
	OnReadFailure   ReadFailurePolicy // default AssumeZero
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 10
	}
	if c.CounterTTL <= 0 {
		c.CounterTTL = 7 * 24 * time.Hour
	}
	if c.RateWindow <= 0 {
		c.RateWindow = 60 * time.Second
	}
	if c.ViewIncrement <= 0 {
		c.ViewIncrement = 1
	}
	if c.StrongIncrement <= 0 {
		c.StrongIncrement = 2
	}
	if c.OnReadFailure == "" {
		c.OnReadFailure = AssumeZero
	}
	return c
}

// Result is the outcome of a single track attempt.
type Result struct {
	Count       int64 // counter value after (or at, when rate limited) this attempt
	Unique      int64 // accepted updates within the counter TTL window
	RateLimited bool  // true when the attempt was rejected by the per-game window
	Popular     bool  // true when Count has reached the threshold
}

// Tracker applies track actions against the cache store and record store.
type Tracker struct {
	kv     kvstore.Store
	flags  FlagStore
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(kv kvstore.Store, flags FlagStore, cfg Config, logger *zap.Logger) *Tracker {
	return &Tracker{
		kv:     kv,
		flags:  flags,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

func counterKey(gameID int64) string { return "popularity:" + strconv.FormatInt(gameID, 10) }
func uniqueKey(gameID int64) string  { return "unique:" + strconv.FormatInt(gameID, 10) }
func markerKey(gameID int64) string  { return "last_search:" + strconv.FormatInt(gameID, 10) }

// increment returns the counter magnitude for action, or ErrInvalidAction.
func (t *Tracker) increment(action Action) (int64, error) {
	switch action {
	case ActionView:
		return t.cfg.ViewIncrement, nil
	case ActionLibrary, ActionWishlist, ActionRate:
		return t.cfg.StrongIncrement, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

// TrackAction records one action against a game. Within the per-game
// rate window the attempt is rejected and the current counter value is
// returned unchanged. Otherwise the counter is incremented and its TTL
// refreshed in one atomic store round trip, the marker is advanced, and
// the popularity flag is flipped the first time the threshold is hit.
func (t *Tracker) TrackAction(ctx context.Context, gameID int64, action Action) (Result, error) {
	if gameID <= 0 {
		observability.TrackActionsTotal.WithLabelValues(string(action), "invalid").Inc()
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidGameID, gameID)
	}
	delta, err := t.increment(action)
	if err != nil {
		observability.TrackActionsTotal.WithLabelValues(string(action), "invalid").Inc()
		return Result{}, err
	}

	now := t.now()
	limited, err := t.withinRateWindow(ctx, gameID, now)
	if err != nil {
		observability.TrackActionsTotal.WithLabelValues(string(action), "error").Inc()
		return Result{}, err
	}
	if limited {
		count := t.readCounter(ctx, counterKey(gameID))
		unique := t.readCounter(ctx, uniqueKey(gameID))
		observability.TrackActionsTotal.WithLabelValues(string(action), "rate_limited").Inc()
		return Result{
			Count:       count,
			Unique:      unique,
			RateLimited: true,
			Popular:     count >= t.cfg.Threshold,
		}, nil
	}

	count, err := t.kv.IncrBy(ctx, counterKey(gameID), delta, t.cfg.CounterTTL)
	if err != nil {
		// Counter writes fail loud: without the increment there is
		// nothing meaningful to report back.
		observability.CacheStoreErrorsTotal.WithLabelValues("incr").Inc()
		observability.TrackActionsTotal.WithLabelValues(string(action), "error").Inc()
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	unique, err := t.kv.IncrBy(ctx, uniqueKey(gameID), 1, t.cfg.CounterTTL)
	if err != nil {
		observability.CacheStoreErrorsTotal.WithLabelValues("incr_unique").Inc()
		t.logger.Warn("unique counter increment failed", zap.Int64("game_id", gameID), zap.Error(err))
	}

	marker := strconv.FormatInt(now.UnixMilli(), 10)
	if err := t.kv.Set(ctx, markerKey(gameID), marker, t.cfg.CounterTTL); err != nil {
		observability.CacheStoreErrorsTotal.WithLabelValues("marker_set").Inc()
		t.logger.Warn("rate-limit marker write failed", zap.Int64("game_id", gameID), zap.Error(err))
	}

	result := Result{Count: count, Unique: unique, Popular: count >= t.cfg.Threshold}
	if result.Popular {
		t.flagPopular(ctx, gameID, count)
	}

	observability.TrackActionsTotal.WithLabelValues(string(action), "tracked").Inc()
	return result, nil
}

// withinRateWindow reports whether an accepted update for gameID
// happened less than RateWindow ago. Marker read failures follow the
// configured read-failure policy.
func (t *Tracker) withinRateWindow(ctx context.Context, gameID int64, now time.Time) (bool, error) {
	raw, ok, err := t.kv.Get(ctx, markerKey(gameID))
	if err != nil {
		observability.CacheStoreErrorsTotal.WithLabelValues("marker_get").Inc()
		if t.cfg.OnReadFailure == FailClosed {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		t.logger.Warn("rate-limit marker read failed, assuming absent",
			zap.Int64("game_id", gameID), zap.Error(err))
		return false, nil
	}
	if !ok {
		return false, nil
	}
	last, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Corrupt marker: treat as absent so it gets overwritten.
		t.logger.Warn("corrupt rate-limit marker", zap.Int64("game_id", gameID), zap.String("value", raw))
		return false, nil
	}
	return now.UnixMilli()-last < t.cfg.RateWindow.Milliseconds(), nil
}

// readCounter reads an integer counter, applying the fail-open policy:
// unreadable or corrupt counters report as zero.
func (t *Tracker) readCounter(ctx context.Context, key string) int64 {
	raw, ok, err := t.kv.Get(ctx, key)
	if err != nil {
		observability.CacheStoreErrorsTotal.WithLabelValues("counter_get").Inc()
		t.logger.Warn("counter read failed, assuming zero", zap.String("key", key), zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.logger.Warn("corrupt counter", zap.String("key", key), zap.String("value", raw))
		return 0
	}
	return val
}

// flagPopular flips the durable is_popular flag if it is not already
// set. The existence check keeps the write path quiet for games that
// crossed the threshold long ago; re-marking would be harmless but
// wasteful. Record-store failures are logged, never propagated: the
// counter increment already happened and is not rolled back.
func (t *Tracker) flagPopular(ctx context.Context, gameID int64, count int64) {
	already, err := t.flags.IsPopular(ctx, gameID)
	if err != nil {
		t.logger.Warn("popularity flag check failed", zap.Int64("game_id", gameID), zap.Error(err))
		return
	}
	if already {
		return
	}
	if err := t.flags.MarkPopular(ctx, gameID); err != nil {
		t.logger.Warn("popularity flag write failed", zap.Int64("game_id", gameID), zap.Error(err))
		return
	}
	observability.PopularityFlagFlipsTotal.Inc()
	t.logger.Info("game crossed popularity threshold",
		zap.Int64("game_id", gameID), zap.Int64("count", count))
}
