// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// DuckDBStore implements Store on DuckDB.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore wraps an open DuckDB handle. Call CreateTables before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTables creates the stats table if it does not exist.
func (s *DuckDBStore) CreateTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS character_stats (
			character_id BIGINT PRIMARY KEY,
			total_seconds BIGINT NOT NULL DEFAULT 0,
			hull_seconds JSON NOT NULL DEFAULT '{}',
			active_session_start TIMESTAMPTZ,
			active_hull TEXT
		);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create stats table: %w", err)
	}
	return nil
}

// Get returns the pilot's stats row, or nil if none exists.
func (s *DuckDBStore) Get(ctx context.Context, characterID int64) (*Stats, error) {
	stats := &Stats{CharacterID: characterID}
	var hulls string
	var start sql.NullTime
	var hull sql.NullString

	// The driver materializes JSON columns as maps; cast to VARCHAR so the
	// raw text scans into a string for go-json decoding.
	err := s.db.QueryRowContext(ctx, `
		SELECT total_seconds, CAST(hull_seconds AS VARCHAR), active_session_start, active_hull
		FROM character_stats WHERE character_id = ?`,
		characterID,
	).Scan(&stats.TotalSeconds, &hulls, &start, &hull)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stats row: %w", err)
	}

	if err := json.Unmarshal([]byte(hulls), &stats.HullSeconds); err != nil {
		return nil, fmt.Errorf("decode hull seconds: %w", err)
	}
	if start.Valid {
		t := start.Time
		stats.ActiveStart = &t
	}
	stats.ActiveHull = hull.String
	return stats, nil
}

// Put creates or replaces the pilot's stats row.
func (s *DuckDBStore) Put(ctx context.Context, stats *Stats) error {
	hulls, err := json.Marshal(stats.HullSeconds)
	if err != nil {
		return fmt.Errorf("encode hull seconds: %w", err)
	}

	var start any
	if stats.ActiveStart != nil {
		start = *stats.ActiveStart
	}
	var hull any
	if stats.ActiveHull != "" {
		hull = stats.ActiveHull
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO character_stats
			(character_id, total_seconds, hull_seconds, active_session_start, active_hull)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (character_id) DO UPDATE SET
			total_seconds = excluded.total_seconds,
			hull_seconds = excluded.hull_seconds,
			active_session_start = excluded.active_session_start,
			active_hull = excluded.active_hull`,
		stats.CharacterID, stats.TotalSeconds, string(hulls), start, hull,
	)
	if err != nil {
		return fmt.Errorf("upsert stats row: %w", err)
	}
	return nil
}

// Reset drops all stats rows.
func (s *DuckDBStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM character_stats`); err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}
	return nil
}
