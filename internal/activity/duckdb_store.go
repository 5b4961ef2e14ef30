// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DuckDBStore implements Store and PendingStore on DuckDB.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore wraps an open DuckDB handle. Call CreateTables before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTables creates the activity tables if they do not exist.
func (s *DuckDBStore) CreateTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS fleet_activity (
			id TEXT PRIMARY KEY,
			fleet_id BIGINT NOT NULL,
			character_id BIGINT NOT NULL,
			character_name TEXT NOT NULL,
			actor_id BIGINT,
			action TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			ship_name TEXT,
			hull_id INTEGER,
			details TEXT,
			fit_snapshot JSON
		);
		CREATE INDEX IF NOT EXISTS idx_activity_fleet_time ON fleet_activity(fleet_id, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_activity_character ON fleet_activity(character_id);

		CREATE TABLE IF NOT EXISTS characters (
			character_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS waitlist_pending (
			fleet_id BIGINT NOT NULL,
			character_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (fleet_id, character_id)
		);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create activity tables: %w", err)
	}
	return nil
}

// Insert appends one entry, assigning an ID and timestamp if unset.
func (s *DuckDBStore) Insert(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var actorID any
	if entry.ActorID != 0 {
		actorID = entry.ActorID
	}
	var fit any
	if len(entry.FitSnapshot) > 0 {
		fit = string(entry.FitSnapshot)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fleet_activity
			(id, fleet_id, character_id, character_name, actor_id, action,
			 timestamp, ship_name, hull_id, details, fit_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.FleetID, entry.CharacterID, entry.Character, actorID,
		string(entry.Action), entry.Timestamp, entry.ShipName, entry.HullID,
		entry.Details, fit,
	)
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}
	return nil
}

// HasPrior reports whether the pilot already appears in this fleet's log.
func (s *DuckDBStore) HasPrior(ctx context.Context, fleetID, characterID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fleet_activity
		WHERE fleet_id = ? AND character_id = ? LIMIT 1`,
		fleetID, characterID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query prior activity: %w", err)
	}
	return n > 0, nil
}

// History returns entries for a fleet, newest first.
func (s *DuckDBStore) History(ctx context.Context, fleetID int64, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fleet_id, character_id, character_name, actor_id, action,
		       timestamp, ship_name, hull_id, details, CAST(fit_snapshot AS VARCHAR)
		FROM fleet_activity
		WHERE fleet_id = ?
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?`,
		fleetID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query fleet history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ReplayAsc streams every entry in timestamp order.
func (s *DuckDBStore) ReplayAsc(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fleet_id, character_id, character_name, actor_id, action,
		       timestamp, ship_name, hull_id, details, CAST(fit_snapshot AS VARCHAR)
		FROM fleet_activity
		ORDER BY timestamp ASC`)
	if err != nil {
		return fmt.Errorf("query activity replay: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

// KnownCharacters maps IDs to names for pilots with a profile record.
func (s *DuckDBStore) KnownCharacters(ctx context.Context, ids []int64) (map[int64]string, error) {
	known := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return known, nil
	}

	query := "SELECT character_id, name FROM characters WHERE character_id IN ("
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query known characters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		known[id] = name
	}
	return known, rows.Err()
}

// UpsertCharacter records or renames a pilot profile.
func (s *DuckDBStore) UpsertCharacter(ctx context.Context, characterID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO characters (character_id, name) VALUES (?, ?)
		ON CONFLICT (character_id) DO UPDATE SET name = excluded.name`,
		characterID, name,
	)
	if err != nil {
		return fmt.Errorf("upsert character: %w", err)
	}
	return nil
}

// TakePending deletes the pending waitlist entry for (fleet, character) and
// reports whether one existed.
func (s *DuckDBStore) TakePending(ctx context.Context, fleetID, characterID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM waitlist_pending WHERE fleet_id = ? AND character_id = ?`,
		fleetID, characterID,
	)
	if err != nil {
		return false, fmt.Errorf("clear pending entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddPending records a pending waitlist entry. The waitlist views own this in
// production; tests use it to stage state.
func (s *DuckDBStore) AddPending(ctx context.Context, fleetID, characterID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waitlist_pending (fleet_id, character_id) VALUES (?, ?)
		ON CONFLICT (fleet_id, character_id) DO NOTHING`,
		fleetID, characterID,
	)
	if err != nil {
		return fmt.Errorf("add pending entry: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// scanEntry expects the fit_snapshot column cast to VARCHAR; the driver
// materializes raw JSON columns as maps, which cannot scan into a string.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var entry Entry
	var actorID sql.NullInt64
	var shipName, details, fit sql.NullString
	var hullID sql.NullInt32
	var action string

	err := rows.Scan(&entry.ID, &entry.FleetID, &entry.CharacterID,
		&entry.Character, &actorID, &action, &entry.Timestamp,
		&shipName, &hullID, &details, &fit)
	if err != nil {
		return Entry{}, fmt.Errorf("scan activity entry: %w", err)
	}

	entry.Action = Action(action)
	entry.ActorID = actorID.Int64
	entry.ShipName = shipName.String
	entry.HullID = hullID.Int32
	entry.Details = details.String
	if fit.Valid && fit.String != "" {
		entry.FitSnapshot = []byte(fit.String)
	}
	return entry, nil
}
