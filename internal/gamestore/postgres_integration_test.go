//go:build integration
// +build integration

package gamestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dkarlsen/gamepulse/internal/models"
)

func newIntegrationStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := NewPostgresStore(context.Background(), dsn, zap.NewNop())
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// TestPostgresStore_UpsertGame_Integration verifies that re-applying the
// same record converges instead of duplicating rows, and that an update
// never touches the popularity flag.
func TestPostgresStore_UpsertGame_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	game := models.GameRecord{
		ID:      987654321,
		Name:    "Integration Game",
		Slug:    "integration-game",
		Summary: "first version",
		Cover:   &models.Image{ID: 1, ImageID: "cov1", URL: "//img/cov1.jpg"},
		Genres:  []models.Named{{ID: 31, Name: "Adventure"}},
	}
	if err := s.UpsertGame(ctx, game); err != nil {
		t.Fatalf("UpsertGame() error = %v", err)
	}
	if err := s.MarkPopular(ctx, game.ID); err != nil {
		t.Fatalf("MarkPopular() error = %v", err)
	}

	game.Summary = "second version"
	if err := s.UpsertGame(ctx, game); err != nil {
		t.Fatalf("UpsertGame() second apply error = %v", err)
	}

	popular, err := s.IsPopular(ctx, game.ID)
	if err != nil {
		t.Fatalf("IsPopular() error = %v", err)
	}
	if !popular {
		t.Error("IsPopular() = false after re-upsert, want true (flag is one-way)")
	}
}

// TestPostgresStore_MarkPopular_Integration verifies the not-found path.
func TestPostgresStore_MarkPopular_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	err := s.MarkPopular(context.Background(), -1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkPopular(missing) error = %v, want ErrNotFound", err)
	}
}

// TestPostgresStore_IsPopular_Missing_Integration verifies a missing
// game reads as not popular without an error.
func TestPostgresStore_IsPopular_Missing_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	popular, err := s.IsPopular(context.Background(), -1)
	if err != nil {
		t.Fatalf("IsPopular(missing) error = %v", err)
	}
	if popular {
		t.Error("IsPopular(missing) = true, want false")
	}
}

// TestPostgresStore_StaleGameIDs_Integration verifies the staleness
// query respects its limit and cutoff.
func TestPostgresStore_StaleGameIDs_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	if err := s.UpsertGame(ctx, models.GameRecord{ID: 987654322, Name: "Fresh Game"}); err != nil {
		t.Fatalf("UpsertGame() error = %v", err)
	}

	// A cutoff in the past excludes the game just written.
	ids, err := s.StaleGameIDs(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("StaleGameIDs() error = %v", err)
	}
	for _, id := range ids {
		if id == 987654322 {
			t.Error("freshly written game reported stale")
		}
	}

	// A cutoff in the future includes it, capped by limit.
	ids, err = s.StaleGameIDs(ctx, time.Now().Add(time.Hour), 1)
	if err != nil {
		t.Fatalf("StaleGameIDs() error = %v", err)
	}
	if len(ids) > 1 {
		t.Errorf("StaleGameIDs() len = %d, want <= 1", len(ids))
	}
}
