// Package store persists telemetry snapshots to SQLite so utilization
// history survives restarts and can be inspected offline.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// SQLite driver (pure Go, no CGO required)
	_ "modernc.org/sqlite"

	"livevlm/telemetry"
)

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	platform TEXT NOT NULL,
	gpu_name TEXT NOT NULL,
	gpu_percent REAL NOT NULL,
	vram_used_gb REAL NOT NULL,
	vram_total_gb REAL NOT NULL,
	vram_percent REAL NOT NULL,
	temp_c REAL,
	power_w REAL,
	cpu_model TEXT NOT NULL,
	cpu_percent REAL NOT NULL,
	ram_used_gb REAL NOT NULL,
	ram_total_gb REAL NOT NULL,
	ram_percent REAL NOT NULL,
	hostname TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_recorded_at ON snapshots(recorded_at);
`

// Config holds connection settings for the snapshot store.
type Config struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks, in milliseconds.
	BusyTimeout int

	// MaxOpenConns limits concurrent connections. SQLite handles
	// concurrency best with a single writer.
	MaxOpenConns int

	// MaxIdleConns limits idle connections in the pool.
	MaxIdleConns int
}

// DefaultConfig returns sensible defaults for SQLite.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		BusyTimeout:  5000,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// SnapshotStore persists telemetry snapshots in a single SQLite table.
type SnapshotStore struct {
	db *sql.DB
}

// Open creates (or opens) the snapshot database with WAL mode enabled
// and ensures the schema exists.
func Open(config Config) (*SnapshotStore, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []struct {
		name  string
		query string
	}{
		{"journal_mode", "PRAGMA journal_mode=WAL"},
		{"busy_timeout", fmt.Sprintf("PRAGMA busy_timeout=%d", config.BusyTimeout)},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.query); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %s pragma: %w", p.name, err)
		}
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	if _, err := db.Exec(createSnapshotsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

// OpenWithDefaults opens the store using default configuration.
func OpenWithDefaults(path string) (*SnapshotStore, error) {
	return Open(DefaultConfig(path))
}

// Save inserts one snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap telemetry.Snapshot) error {
	const query = `
		INSERT INTO snapshots (
			platform, gpu_name, gpu_percent,
			vram_used_gb, vram_total_gb, vram_percent,
			temp_c, power_w,
			cpu_model, cpu_percent,
			ram_used_gb, ram_total_gb, ram_percent,
			hostname
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		snap.PlatformLabel, snap.AcceleratorName, snap.AcceleratorUtilPct,
		snap.AcceleratorMemUsedGB, snap.AcceleratorMemTotalGB, snap.AcceleratorMemPct,
		nullableFloat(snap.TemperatureC), nullableFloat(snap.PowerW),
		snap.CPUModel, snap.CPUUtilPct,
		snap.RAMUsedGB, snap.RAMTotalGB, snap.RAMPct,
		snap.Hostname,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// StoredSnapshot is a persisted snapshot with its storage metadata.
type StoredSnapshot struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	telemetry.Snapshot
}

// Recent returns up to limit snapshots, newest first.
func (s *SnapshotStore) Recent(ctx context.Context, limit int) ([]StoredSnapshot, error) {
	if limit <= 0 {
		limit = 60
	}

	const query = `
		SELECT id, recorded_at,
			platform, gpu_name, gpu_percent,
			vram_used_gb, vram_total_gb, vram_percent,
			temp_c, power_w,
			cpu_model, cpu_percent,
			ram_used_gb, ram_total_gb, ram_percent,
			hostname
		FROM snapshots
		ORDER BY id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []StoredSnapshot
	for rows.Next() {
		var rec StoredSnapshot
		var temp, power sql.NullFloat64
		err := rows.Scan(
			&rec.ID, &rec.RecordedAt,
			&rec.PlatformLabel, &rec.AcceleratorName, &rec.AcceleratorUtilPct,
			&rec.AcceleratorMemUsedGB, &rec.AcceleratorMemTotalGB, &rec.AcceleratorMemPct,
			&temp, &power,
			&rec.CPUModel, &rec.CPUUtilPct,
			&rec.RAMUsedGB, &rec.RAMTotalGB, &rec.RAMPct,
			&rec.Hostname,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if temp.Valid {
			v := temp.Float64
			rec.TemperatureC = &v
		}
		if power.Valid {
			v := power.Float64
			rec.PowerW = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return out, nil
}

// PruneBefore deletes snapshots recorded before the cutoff and returns
// the number of rows removed.
func (s *SnapshotStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE recorded_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return n, nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
