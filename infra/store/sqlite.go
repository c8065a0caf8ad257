package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/smartwatt/core/model"
	"github.com/kilianp07/smartwatt/core/schedule"
)

// SQLiteStore persists the schedule, one row per device, and the recent
// optimizations in the same database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single connection: upserts and trims never interleave.
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS schedules (
        device TEXT PRIMARY KEY,
        start_time TEXT NOT NULL,
        end_time TEXT NOT NULL,
        duration REAL
    );
    CREATE TABLE IF NOT EXISTS recent_optimizations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        record TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, device string) (schedule.Entry, error) {
	var e schedule.Entry
	var dur sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT start_time, end_time, duration FROM schedules WHERE device = ?`, device).
		Scan(&e.Start, &e.End, &dur)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("%w: %s", schedule.ErrNotFound, device)
	}
	if err != nil {
		return e, err
	}
	if dur.Valid {
		e.Duration = &dur.Float64
	}
	return e, nil
}

func (s *SQLiteStore) Put(ctx context.Context, device string, e schedule.Entry) error {
	return s.PutAll(ctx, schedule.Schedule{device: e})
}

// PutAll upserts every entry in one transaction. A nil duration keeps the
// stored override.
func (s *SQLiteStore) PutAll(ctx context.Context, entries schedule.Schedule) error {
	for dev, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%s: %w", dev, err)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, dev := range entries.Devices() {
		e := entries[dev]
		var dur any
		if e.Duration != nil {
			dur = *e.Duration
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedules (device, start_time, end_time, duration) VALUES (?, ?, ?, ?)
             ON CONFLICT(device) DO UPDATE SET start_time = excluded.start_time, end_time = excluded.end_time,
             duration = COALESCE(excluded.duration, schedules.duration)`,
			dev, e.Start, e.End, dur); err != nil {
			return fmt.Errorf("upsert %s: %w", dev, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) All(ctx context.Context) (schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT device, start_time, end_time, duration FROM schedules ORDER BY device`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := schedule.Schedule{}
	for rows.Next() {
		var dev string
		var e schedule.Entry
		var dur sql.NullFloat64
		if err := rows.Scan(&dev, &e.Start, &e.End, &dur); err != nil {
			return nil, err
		}
		if dur.Valid {
			v := dur.Float64
			e.Duration = &v
		}
		out[dev] = e
	}
	return out, rows.Err()
}

// Record inserts r and drops everything beyond the newest RecentCap rows.
func (s *SQLiteStore) Record(ctx context.Context, r model.OptimizationResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO recent_optimizations (ts, record) VALUES (?, ?)`,
		r.CreatedAt.Unix(), string(b)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recent_optimizations WHERE id NOT IN
         (SELECT id FROM recent_optimizations ORDER BY id DESC LIMIT ?)`, schedule.RecentCap); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns the recent optimizations, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]model.OptimizationResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM recent_optimizations ORDER BY id DESC LIMIT ?`, schedule.RecentCap)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.OptimizationResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r model.OptimizationResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
