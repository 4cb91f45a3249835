package db

import (
	"path/filepath"
	"testing"

	"github.com/arcment-data/arcweld/internal/heights"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "arcweld.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version == 0 || dirty {
		t.Errorf("version = %d, dirty = %v", version, dirty)
	}
}

func TestScanResultRoundTrip(t *testing.T) {
	db := newTestDB(t)

	if err := db.CreateRun("run-1", "part.gcode", 12); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	in := heights.ScanResult{
		LayerIndex:     4,
		ExpectedZ:      0.8,
		MaxHeight:      0.95,
		MinHeight:      0.78,
		AvgHeight:      0.85,
		RawPoints:      40,
		FilteredPoints: 38,
		Deviation:      0.05,
	}
	if err := db.RecordScanResult("run-1", in); err != nil {
		t.Fatalf("RecordScanResult failed: %v", err)
	}

	results, err := db.ScanResults("run-1")
	if err != nil {
		t.Fatalf("ScanResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0] != in {
		t.Errorf("result = %+v, want %+v", results[0], in)
	}
}

func TestScanResultsOrderedByLayer(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateRun("run-2", "part.gcode", 3); err != nil {
		t.Fatal(err)
	}
	for _, idx := range []int{2, 0, 1} {
		if err := db.RecordScanResult("run-2", heights.ScanResult{LayerIndex: idx}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := db.ScanResults("run-2")
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r.LayerIndex != i {
			t.Errorf("results[%d].LayerIndex = %d", i, r.LayerIndex)
		}
	}
}

func TestFinishRun(t *testing.T) {
	db := newTestDB(t)
	if err := db.CreateRun("run-3", "part.gcode", 1); err != nil {
		t.Fatal(err)
	}
	if err := db.FinishRun("run-3"); err != nil {
		t.Errorf("FinishRun failed: %v", err)
	}
	if err := db.FinishRun("missing"); err == nil {
		t.Error("FinishRun on unknown run should fail")
	}
}
