package scanpath

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arcment-data/arcweld/internal/gcode"
	"github.com/arcment-data/arcweld/internal/monitoring"
)

var testGen = Generator{
	Margin:        2.0,
	SafetyOffset:  5.0,
	Clearance:     2.0,
	TravelFeed:    1000,
	ScanFeed:      500,
	DefaultHeight: 0.2,
}

func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func TestGenerateBoundingBoxPath(t *testing.T) {
	layer := gcode.Layer{
		"G0 Z2.0",
		"G1 X0 Y0",
		"G1 X10 Y5",
	}

	got := testGen.Generate(layer, 3)
	want := gcode.Layer{
		"; scan path for layer 3",
		"G0 F1000 Z7.000",
		"G0 X-2.000 Y-2.000",
		"G0 Z4.000",
		"G1 X12.000 Y-2.000 F500",
		"G1 X12.000 Y5.000",
		"G1 X-2.000 Y5.000",
		"G1 X-2.000 Y-2.000",
		"G0 Z7.000",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scan path mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateMissingXYUsesDefaultBox(t *testing.T) {
	var warnings []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		warnings = append(warnings, format)
	})
	t.Cleanup(func() { monitoring.Logf = original })

	got := testGen.Generate(gcode.Layer{"G0 Z1.0", "M400"}, 0)
	if len(got) == 0 {
		t.Fatal("expected a path, not empty")
	}
	// Corner of the default box expanded by the margin.
	if got[2] != "G0 X-2.000 Y-2.000" {
		t.Errorf("start corner = %q", got[2])
	}
	if got[4] != "G1 X202.000 Y-2.000 F500" {
		t.Errorf("first edge = %q", got[4])
	}

	found := false
	for _, w := range warnings {
		if strings.Contains(w, "default bounding box") {
			found = true
		}
	}
	if !found {
		t.Error("expected a default-bounding-box diagnostic")
	}
}

func TestGenerateMissingZUsesIndexDerivedDefault(t *testing.T) {
	muteLogs(t)

	got := testGen.Generate(gcode.Layer{"G1 X0 Y0", "G1 X4 Y4"}, 4)
	// Default height 0.2 * (4+1) = 1.0; safety lift 1.0 + 5.0.
	if got[1] != "G0 F1000 Z6.000" {
		t.Errorf("safety lift = %q, want G0 F1000 Z6.000", got[1])
	}
	if got[3] != "G0 Z3.000" {
		t.Errorf("scan height = %q, want G0 Z3.000", got[3])
	}
}

func TestGenerateDeterministic(t *testing.T) {
	muteLogs(t)

	layer := gcode.Layer{"G0 Z0.4", "G1 X1 Y1", "G1 X9 Y7"}
	first := testGen.Generate(layer, 1)
	second := testGen.Generate(layer, 1)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated Generate differed:\n%s", diff)
	}
}
