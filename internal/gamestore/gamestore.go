// Package gamestore is the durable record store for games and their
// relationship rows. All writes are upserts keyed by stable ids, so
// re-applying a record is a no-op.
package gamestore

import (
	"context"
	"errors"
	"time"

	"github.com/dkarlsen/gamepulse/internal/models"
)

// ErrNotFound is returned when an operation targets a game that has no
// persisted row.
var ErrNotFound = errors.New("game not found")

// Store is the record-store surface the ingestion worker and popularity
// tracker depend on.
type Store interface {
	// UpsertGame persists the main game row and each relationship
	// collection as separate idempotent upserts. An error means the main
	// row could not be written; relationship failures are logged by the
	// implementation and do not fail the call.
	UpsertGame(ctx context.Context, g models.GameRecord) error

	// IsPopular reports the durable is_popular flag. A missing game
	// reads as not popular.
	IsPopular(ctx context.Context, gameID int64) (bool, error)

	// MarkPopular sets is_popular. The transition is one-way; marking an
	// already-popular game is a no-op. Returns ErrNotFound when the game
	// has no row yet.
	MarkPopular(ctx context.Context, gameID int64) error

	// StaleGameIDs returns up to limit ids of games whose last update is
	// older than olderThan, oldest first.
	StaleGameIDs(ctx context.Context, olderThan time.Time, limit int) ([]int64, error)

	// Ping checks record-store reachability. Used for health checks.
	Ping(ctx context.Context) error

	// Close releases the connection pool. Call during shutdown.
	Close()
}
