package gamestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dkarlsen/gamepulse/internal/models"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects a pool from dsn and verifies reachability.
// The returned store owns the pool; Close releases it.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// UpsertGame implements Store.UpsertGame. The main row upsert never
// touches is_popular, so the flag survives refreshes.
func (s *PostgresStore) UpsertGame(ctx context.Context, g models.GameRecord) error {
	var releaseDate any
	if rd := g.ReleaseDate(); !rd.IsZero() {
		releaseDate = rd
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO games (id, name, slug, summary, first_release_date, rating, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			summary = EXCLUDED.summary,
			first_release_date = EXCLUDED.first_release_date,
			rating = EXCLUDED.rating,
			updated_at = now()
	`, g.ID, g.Name, g.Slug, g.Summary, releaseDate, g.Rating)
	if err != nil {
		return fmt.Errorf("upsert game %d: %w", g.ID, err)
	}

	s.upsertCover(ctx, g)
	s.upsertNamed(ctx, g.ID, "game_genres", "genre_id", g.Genres)
	s.upsertNamed(ctx, g.ID, "game_platforms", "platform_id", g.Platforms)
	s.upsertNamed(ctx, g.ID, "game_modes", "mode_id", g.GameModes)
	s.upsertNamed(ctx, g.ID, "game_types", "type_id", g.GameTypes)
	s.upsertScreenshots(ctx, g)
	s.upsertWebsites(ctx, g)
	return nil
}

// upsertCover writes the one cover row per game, keyed by game id.
func (s *PostgresStore) upsertCover(ctx context.Context, g models.GameRecord) {
	if g.Cover == nil {
		return
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO game_covers (game_id, cover_id, image_id, url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id) DO UPDATE SET
			cover_id = EXCLUDED.cover_id,
			image_id = EXCLUDED.image_id,
			url = EXCLUDED.url
	`, g.ID, g.Cover.ID, g.Cover.ImageID, g.Cover.URL)
	if err != nil {
		s.logRelationError(ctx, "cover", g.ID, err)
	}
}

// upsertNamed writes one named-relation row per entry, keyed by
// (game_id, related id). The table and id column are internal constants,
// never caller input.
func (s *PostgresStore) upsertNamed(ctx context.Context, gameID int64, table, idColumn string, entries []models.Named) {
	if len(entries) == 0 {
		return
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (game_id, %s, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (game_id, %s) DO UPDATE SET name = EXCLUDED.name
	`, table, idColumn, idColumn)
	for _, e := range entries {
		if _, err := s.pool.Exec(ctx, query, gameID, e.ID, e.Name); err != nil {
			s.logRelationError(ctx, table, gameID, err)
		}
	}
}

func (s *PostgresStore) upsertScreenshots(ctx context.Context, g models.GameRecord) {
	for _, sc := range g.Screenshots {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO game_screenshots (game_id, screenshot_id, image_id, url)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (game_id, screenshot_id) DO NOTHING
		`, g.ID, sc.ID, sc.ImageID, sc.URL)
		if err != nil {
			s.logRelationError(ctx, "screenshots", g.ID, err)
		}
	}
}

func (s *PostgresStore) upsertWebsites(ctx context.Context, g models.GameRecord) {
	for _, w := range g.Websites {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO game_websites (game_id, website_id, url, category)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (game_id, website_id) DO NOTHING
		`, g.ID, w.ID, w.URL, w.Category)
		if err != nil {
			s.logRelationError(ctx, "websites", g.ID, err)
		}
	}
}

// logRelationError records a single-relation persistence failure. These
// do not fail the game upsert: the main row is in place and the next
// refresh re-applies the relation idempotently.
func (s *PostgresStore) logRelationError(ctx context.Context, relation string, gameID int64, err error) {
	s.logger.Warn("relation upsert failed",
		zap.String("relation", relation),
		zap.Int64("game_id", gameID),
		zap.Error(err))
}

// IsPopular implements Store.IsPopular.
func (s *PostgresStore) IsPopular(ctx context.Context, gameID int64) (bool, error) {
	var popular bool
	err := s.pool.QueryRow(ctx, `SELECT is_popular FROM games WHERE id = $1`, gameID).Scan(&popular)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read is_popular for %d: %w", gameID, err)
	}
	return popular, nil
}

// MarkPopular implements Store.MarkPopular.
func (s *PostgresStore) MarkPopular(ctx context.Context, gameID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE games SET is_popular = true WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("mark popular %d: %w", gameID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark popular %d: %w", gameID, ErrNotFound)
	}
	return nil
}

// StaleGameIDs implements Store.StaleGameIDs.
func (s *PostgresStore) StaleGameIDs(ctx context.Context, olderThan time.Time, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM games
		WHERE updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale games: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale game id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale games: %w", err)
	}
	return ids, nil
}

// Ping implements Store.Ping.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.Close.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
