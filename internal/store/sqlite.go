package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// SQLite stores records in a local database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database and its tables.
func NewSQLite(dataSourceName string) (*SQLite, error) {
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}
	// Batch workers share one writer.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return &SQLite{db: db}, nil
}

func createTables(db *sql.DB) error {
	createParams := `
    CREATE TABLE IF NOT EXISTS normalization_params (
        scene TEXT NOT NULL,
        band TEXT NOT NULL,
        run_id TEXT NOT NULL,
        slope REAL NOT NULL,
        intercept REAL NOT NULL,
        std_threshold REAL NOT NULL,
        r REAL NOT NULL,
        n INTEGER NOT NULL,
        iteration INTEGER NOT NULL,
        mask TEXT NOT NULL,
        coef REAL NOT NULL,
        n_sea INTEGER, n_reservoirs INTEGER, n_pine_forest INTEGER,
        n_urban_1 INTEGER, n_urban_2 INTEGER, n_airports INTEGER,
        n_sand INTEGER, n_grassland INTEGER, n_mining INTEGER,
        processed_at TEXT NOT NULL,
        PRIMARY KEY (scene, band)
    );
    `

	createArea := `
    CREATE TABLE IF NOT EXISTS flood_area (
        scene TEXT PRIMARY KEY,
        run_id TEXT NOT NULL,
        flooded_pixels INTEGER NOT NULL,
        dry_pixels INTEGER NOT NULL,
        invalid_pixels INTEGER NOT NULL,
        nodata_pixels INTEGER NOT NULL,
        flooded_ha REAL NOT NULL,
        dry_ha REAL NOT NULL,
        processed_at TEXT NOT NULL
    );
    `

	for _, q := range []string{createParams, createArea} {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveParams upserts the records of one scene in a single transaction. A
// re-processed scene replaces its earlier parameters.
func (s *SQLite) SaveParams(ctx context.Context, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT OR REPLACE INTO normalization_params (
            scene, band, run_id, slope, intercept, std_threshold, r, n, iteration, mask, coef,
            n_sea, n_reservoirs, n_pine_forest, n_urban_1, n_urban_2, n_airports,
            n_sand, n_grassland, n_mining, processed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.Scene, r.Band, r.RunID, r.Slope, r.Intercept, r.StdThreshold, r.R, r.N, r.Iteration, r.Mask, r.Coef,
			r.Sea, r.Reservoirs, r.PineForest, r.Urban1, r.Urban2, r.Airports,
			r.Sand, r.Grassland, r.Mining, r.ProcessedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert %s/%s: %w", r.Scene, r.Band, err)
		}
	}
	return tx.Commit()
}

// SaveArea upserts the flood area summary of one scene.
func (s *SQLite) SaveArea(ctx context.Context, a AreaRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO flood_area (
            scene, run_id, flooded_pixels, dry_pixels, invalid_pixels, nodata_pixels,
            flooded_ha, dry_ha, processed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Scene, a.RunID, a.FloodedPixels, a.DryPixels, a.InvalidPixels, a.NoDataPixels,
		a.FloodedHa, a.DryHa, a.ProcessedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert flood area %s: %w", a.Scene, err)
	}
	return nil
}

// Params returns the stored records of a scene ordered by band.
func (s *SQLite) Params(ctx context.Context, scene string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT scene, band, run_id, slope, intercept, std_threshold, r, n, iteration, mask, coef,
               n_sea, n_reservoirs, n_pine_forest, n_urban_1, n_urban_2, n_airports,
               n_sand, n_grassland, n_mining, processed_at
        FROM normalization_params WHERE scene = ? ORDER BY band`, scene)
	if err != nil {
		return nil, fmt.Errorf("query params: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r  Record
			at string
		)
		if err := rows.Scan(&r.Scene, &r.Band, &r.RunID, &r.Slope, &r.Intercept, &r.StdThreshold,
			&r.R, &r.N, &r.Iteration, &r.Mask, &r.Coef,
			&r.Sea, &r.Reservoirs, &r.PineForest, &r.Urban1, &r.Urban2, &r.Airports,
			&r.Sand, &r.Grassland, &r.Mining, &at); err != nil {
			return nil, fmt.Errorf("scan params: %w", err)
		}
		if r.ProcessedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse processed_at %q: %w", at, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Area returns the stored flood area of a scene, or sql.ErrNoRows.
func (s *SQLite) Area(ctx context.Context, scene string) (AreaRecord, error) {
	var (
		a  AreaRecord
		at string
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT scene, run_id, flooded_pixels, dry_pixels, invalid_pixels, nodata_pixels,
               flooded_ha, dry_ha, processed_at
        FROM flood_area WHERE scene = ?`, scene).Scan(
		&a.Scene, &a.RunID, &a.FloodedPixels, &a.DryPixels, &a.InvalidPixels, &a.NoDataPixels,
		&a.FloodedHa, &a.DryHa, &at)
	if err != nil {
		return a, err
	}
	a.ProcessedAt, err = time.Parse(time.RFC3339Nano, at)
	return a, err
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }
