// Package db persists print runs and per-layer scan results in sqlite.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arcment-data/arcweld/internal/heights"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the database at path and applies any pending
// migrations.
func NewDB(path string) (*DB, error) {
	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	db := &DB{sdb}
	if err := db.MigrateUp(); err != nil {
		sdb.Close()
		return nil, err
	}
	return db, nil
}

// CreateRun records the start of a print run.
func (db *DB) CreateRun(runID, gcodeFile string, totalLayers int) error {
	_, err := db.Exec(
		"INSERT INTO runs (run_id, gcode_file, total_layers) VALUES (?, ?, ?)",
		runID, gcodeFile, totalLayers,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stamps the run's completion time.
func (db *DB) FinishRun(runID string) error {
	res, err := db.Exec(
		"UPDATE runs SET finished_at = ? WHERE run_id = ?",
		time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordScanResult stores one layer's scan summary.
func (db *DB) RecordScanResult(runID string, r heights.ScanResult) error {
	_, err := db.Exec(`
		INSERT INTO scan_results
			(run_id, layer_index, expected_z, max_height, min_height,
			 avg_height, raw_points, filtered_points, deviation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.LayerIndex, r.ExpectedZ, r.MaxHeight, r.MinHeight,
		r.AvgHeight, r.RawPoints, r.FilteredPoints, r.Deviation,
	)
	if err != nil {
		return fmt.Errorf("failed to record scan result for layer %d: %w", r.LayerIndex, err)
	}
	return nil
}

// ScanResults returns the stored results of a run ordered by layer index.
func (db *DB) ScanResults(runID string) ([]heights.ScanResult, error) {
	rows, err := db.Query(`
		SELECT layer_index, expected_z, max_height, min_height,
		       avg_height, raw_points, filtered_points, deviation
		FROM scan_results WHERE run_id = ? ORDER BY layer_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan results: %w", err)
	}
	defer rows.Close()

	var results []heights.ScanResult
	for rows.Next() {
		var r heights.ScanResult
		if err := rows.Scan(
			&r.LayerIndex, &r.ExpectedZ, &r.MaxHeight, &r.MinHeight,
			&r.AvgHeight, &r.RawPoints, &r.FilteredPoints, &r.Deviation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
