// Package persistence provides SQLite-based snapshot storage.
// A snapshot is stored as one JSON row per key; bloom events go to their own
// append-only table so long runs don't rewrite the whole history every save.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/kernel-universe/internal/engine"
)

// StateKey is the key the server saves its live simulation under.
const StateKey = "kernel_universe:state"

// ErrNoState is returned by LoadState when nothing is stored for a key.
var ErrNoState = errors.New("no stored state")

// DB wraps a SQLite connection for snapshot persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		state_json TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bloom_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		tick INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bloom_events_key ON bloom_events(key, id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type snapshotRow struct {
	Key       string `db:"key"`
	RunID     string `db:"run_id"`
	Tick      int    `db:"tick"`
	StateJSON string `db:"state_json"`
	SavedAt   string `db:"saved_at"`
}

type bloomRow struct {
	Tick int `db:"tick"`
	X    int `db:"x"`
	Y    int `db:"y"`
}

// SaveState upserts snap under key. Bloom events already stored for the
// same run are kept and only the new tail is appended; a different run, or
// a stored history longer than the snapshot's, replaces them all.
func (db *DB) SaveState(ctx context.Context, key string, snap engine.Snapshot) error {
	events := snap.BloomEvents
	snap.BloomEvents = nil
	stateJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var prevRun string
	err = tx.GetContext(ctx, &prevRun, "SELECT run_id FROM snapshots WHERE key = ?", key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read run id: %w", err)
	}

	var stored int
	if err := tx.GetContext(ctx, &stored, "SELECT COUNT(*) FROM bloom_events WHERE key = ?", key); err != nil {
		return fmt.Errorf("count bloom events: %w", err)
	}
	if prevRun != snap.RunID || stored > len(events) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM bloom_events WHERE key = ?", key); err != nil {
			return fmt.Errorf("clear bloom events: %w", err)
		}
		stored = 0
	}

	if stored < len(events) {
		stmt, err := tx.PreparexContext(ctx, "INSERT INTO bloom_events (key, tick, x, y) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range events[stored:] {
			if _, err := stmt.ExecContext(ctx, key, e.Tick, e.X, e.Y); err != nil {
				return fmt.Errorf("insert bloom event: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (key, run_id, tick, state_json, saved_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, snap.RunID, snap.Tick, string(stateJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return tx.Commit()
}

// LoadState returns the snapshot stored under key with its full bloom
// history. It returns ErrNoState if the key has never been saved.
func (db *DB) LoadState(ctx context.Context, key string) (engine.Snapshot, error) {
	var row snapshotRow
	err := db.conn.GetContext(ctx, &row,
		"SELECT key, run_id, tick, state_json, saved_at FROM snapshots WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Snapshot{}, ErrNoState
	}
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(row.StateJSON), &snap); err != nil {
		return engine.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	events, err := db.BloomEvents(ctx, key, 0)
	if err != nil {
		return engine.Snapshot{}, err
	}
	snap.BloomEvents = events
	return snap, nil
}

// BloomEvents returns the bloom history for key in order. A positive limit
// returns only the most recent limit events.
func (db *DB) BloomEvents(ctx context.Context, key string, limit int) ([]engine.BloomEvent, error) {
	var rows []bloomRow
	var err error
	if limit > 0 {
		err = db.conn.SelectContext(ctx, &rows,
			`SELECT tick, x, y FROM (
				SELECT id, tick, x, y FROM bloom_events WHERE key = ? ORDER BY id DESC LIMIT ?
			) ORDER BY id`, key, limit)
	} else {
		err = db.conn.SelectContext(ctx, &rows,
			"SELECT tick, x, y FROM bloom_events WHERE key = ? ORDER BY id", key)
	}
	if err != nil {
		return nil, fmt.Errorf("load bloom events: %w", err)
	}

	events := make([]engine.BloomEvent, len(rows))
	for i, r := range rows {
		events[i] = engine.BloomEvent{X: r.X, Y: r.Y, Tick: r.Tick}
	}
	return events, nil
}

// ClearState removes the snapshot and bloom history stored under key.
func (db *DB) ClearState(ctx context.Context, key string) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE key = ?", key); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM bloom_events WHERE key = ?", key); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair in metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}
