// Package catalogdb indexes terrain snapshots in a sqlite database so a map
// can be found again by seed and size.
package catalogdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Lookup when no snapshot matches.
var ErrNotFound = errors.New("catalogdb: no snapshot recorded")

// createdLayout is fixed-width so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded snapshot.
type Entry struct {
	Seed      int64
	Size      int
	Path      string
	CreatedAt time.Time
	Histogram map[string]int // tiles per biome name
}

// DB is the snapshot catalog.
type DB struct {
	db *sql.DB
}

// Open opens or creates the catalog at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("catalogdb: empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("catalogdb: %s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS terrains (
		seed INTEGER NOT NULL,
		size INTEGER NOT NULL,
		path TEXT NOT NULL,
		created_at TEXT NOT NULL,
		histogram_json TEXT NOT NULL,
		PRIMARY KEY (seed, size)
	);`)
	if err != nil {
		return fmt.Errorf("catalogdb: schema: %w", err)
	}
	return nil
}

// Record stores e, replacing any earlier entry for the same seed and size.
// A zero CreatedAt is set to the current time.
func (d *DB) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	hist, err := json.Marshal(e.Histogram)
	if err != nil {
		return fmt.Errorf("catalogdb: histogram: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO terrains(seed, size, path, created_at, histogram_json) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(seed, size) DO UPDATE SET path=excluded.path, created_at=excluded.created_at, histogram_json=excluded.histogram_json`,
		e.Seed, e.Size, e.Path, e.CreatedAt.UTC().Format(createdLayout), string(hist))
	if err != nil {
		return fmt.Errorf("catalogdb: record seed %d size %d: %w", e.Seed, e.Size, err)
	}
	return nil
}

// Lookup returns the entry for seed and size, or ErrNotFound.
func (d *DB) Lookup(ctx context.Context, seed int64, size int) (Entry, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT seed, size, path, created_at, histogram_json FROM terrains WHERE seed = ? AND size = ?`,
		seed, size)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: seed %d size %d", ErrNotFound, seed, size)
	}
	return e, err
}

// List returns every entry, newest first.
func (d *DB) List(ctx context.Context) ([]Entry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT seed, size, path, created_at, histogram_json FROM terrains ORDER BY created_at DESC, seed, size`)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		created string
		hist    string
	)
	if err := s.Scan(&e.Seed, &e.Size, &e.Path, &created, &hist); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(createdLayout, created)
	if err != nil {
		return Entry{}, fmt.Errorf("catalogdb: created_at %q: %w", created, err)
	}
	e.CreatedAt = t
	if err := json.Unmarshal([]byte(hist), &e.Histogram); err != nil {
		return Entry{}, fmt.Errorf("catalogdb: histogram: %w", err)
	}
	return e, nil
}
