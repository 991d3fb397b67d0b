package models

import (
	"errors"
	"testing"
	"time"
)

// TestParseGameRecord_Valid verifies that a full payload decodes with all
// relationship collections intact.
func TestParseGameRecord_Valid(t *testing.T) {
	payload := []byte(`{
		"id": 42,
		"name": "Outer Wilds",
		"slug": "outer-wilds",
		"summary": "A space exploration mystery.",
		"first_release_date": 1559088000,
		"rating": 86.5,
		"cover": {"id": 7, "image_id": "co1abc", "url": "//images.example/co1abc.jpg"},
		"genres": [{"id": 31, "name": "Adventure"}],
		"platforms": [{"id": 6, "name": "PC"}, {"id": 48, "name": "PlayStation 4"}],
		"game_modes": [{"id": 1, "name": "Single player"}],
		"game_types": [{"id": 0, "name": "Main Game"}],
		"screenshots": [{"id": 100, "image_id": "sc1", "url": "//images.example/sc1.jpg"}],
		"websites": [{"id": 9, "url": "https://outerwilds.example", "category": 1}]
	}`)

	got, err := ParseGameRecord(payload)
	if err != nil {
		t.Fatalf("ParseGameRecord() error = %v", err)
	}
	if got.ID != 42 || got.Name != "Outer Wilds" {
		t.Errorf("ParseGameRecord() id/name = %d/%q, want 42/\"Outer Wilds\"", got.ID, got.Name)
	}
	if got.Cover == nil || got.Cover.ImageID != "co1abc" {
		t.Errorf("ParseGameRecord() cover = %+v, want image_id co1abc", got.Cover)
	}
	if len(got.Platforms) != 2 || len(got.Genres) != 1 || len(got.Screenshots) != 1 || len(got.Websites) != 1 {
		t.Errorf("ParseGameRecord() relation counts = %d/%d/%d/%d",
			len(got.Platforms), len(got.Genres), len(got.Screenshots), len(got.Websites))
	}
	want := time.Date(2019, 5, 29, 0, 0, 0, 0, time.UTC)
	if !got.ReleaseDate().Equal(want) {
		t.Errorf("ReleaseDate() = %v, want %v", got.ReleaseDate(), want)
	}
}

// TestParseGameRecord_Invalid verifies rejection of malformed and
// incomplete payloads.
func TestParseGameRecord_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantSchema bool // expect ErrInvalidRecord rather than a decode error
	}{
		{name: "not json", payload: `{{{`},
		{name: "json array", payload: `[1,2,3]`},
		{name: "missing id", payload: `{"name":"No ID"}`, wantSchema: true},
		{name: "negative id", payload: `{"id":-1,"name":"Negative"}`, wantSchema: true},
		{name: "missing name", payload: `{"id":7}`, wantSchema: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseGameRecord([]byte(tc.payload))
			if err == nil {
				t.Fatal("ParseGameRecord() error = nil, want error")
			}
			if tc.wantSchema != errors.Is(err, ErrInvalidRecord) {
				t.Errorf("errors.Is(err, ErrInvalidRecord) = %v, want %v (err = %v)",
					!tc.wantSchema, tc.wantSchema, err)
			}
		})
	}
}

// TestGameRecord_ReleaseDate_Unset verifies zero handling for unknown
// release dates.
func TestGameRecord_ReleaseDate_Unset(t *testing.T) {
	g := GameRecord{ID: 1, Name: "Unreleased"}
	if !g.ReleaseDate().IsZero() {
		t.Errorf("ReleaseDate() = %v, want zero", g.ReleaseDate())
	}
}
