package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord is returned when a payload decodes but fails basic validation.
var ErrInvalidRecord = errors.New("invalid game record")

// GameRecord is a game as fetched from the upstream metadata provider,
// in the shape producers enqueue it. The record store persists the main
// fields as one row and each relationship slice as its own keyed rows,
// so re-applying the same record is a no-op.
type GameRecord struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Summary          string    `json:"summary"`
	FirstReleaseDate int64     `json:"first_release_date"` // unix seconds, 0 = unknown
	Rating           float64   `json:"rating"`
	Cover            *Image    `json:"cover,omitempty"`
	Genres           []Named   `json:"genres,omitempty"`
	Platforms        []Named   `json:"platforms,omitempty"`
	GameModes        []Named   `json:"game_modes,omitempty"`
	GameTypes        []Named   `json:"game_types,omitempty"`
	Screenshots      []Image   `json:"screenshots,omitempty"`
	Websites         []Website `json:"websites,omitempty"`
}

// Named is a related entity carrying only an id and a display name
// (genre, platform, game mode, game type).
type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Image is a cover or screenshot reference.
type Image struct {
	ID      int64  `json:"id"`
	ImageID string `json:"image_id"`
	URL     string `json:"url"`
}

// Website is an external link for a game.
type Website struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Category int    `json:"category"`
}

// ReleaseDate converts FirstReleaseDate to a time.Time, zero if unset.
func (g GameRecord) ReleaseDate() time.Time {
	if g.FirstReleaseDate <= 0 {
		return time.Time{}
	}
	return time.Unix(g.FirstReleaseDate, 0).UTC()
}

// ParseGameRecord decodes a queue payload into a GameRecord and validates
// the fields persistence depends on. A record without a positive id or a
// name cannot be upserted and is rejected with ErrInvalidRecord.
func ParseGameRecord(data []byte) (GameRecord, error) {
	var g GameRecord
	if err := json.Unmarshal(data, &g); err != nil {
		return GameRecord{}, fmt.Errorf("decode game record: %w", err)
	}
	if g.ID <= 0 {
		return GameRecord{}, fmt.Errorf("%w: missing or non-positive id", ErrInvalidRecord)
	}
	if g.Name == "" {
		return GameRecord{}, fmt.Errorf("%w: missing name for id %d", ErrInvalidRecord, g.ID)
	}
	return g, nil
}
