package job

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/arcment-data/arcweld/internal/config"
	"github.com/arcment-data/arcweld/internal/gcode"
	"github.com/arcment-data/arcweld/internal/monitoring"
	"github.com/arcment-data/arcweld/internal/scanner"
	"github.com/arcment-data/arcweld/internal/transport"
)

func ptrStr(s string) *string { return &s }

// fastConfig shrinks every wait so a full run finishes in tens of
// milliseconds.
func fastConfig() *config.ProcessConfig {
	return &config.ProcessConfig{
		StopWindowMin:        ptrStr("40ms"),
		StopWindowPerCommand: ptrStr("1ms"),
		ScanSettle:           ptrStr("1ms"),
		InterLayerSettle:     ptrStr("1ms"),
		PollIdle:             ptrStr("1ms"),
		PollAfterSample:      ptrStr("1ms"),
	}
}

func muteLogs(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func threeLayers() *gcode.LayerSet {
	return gcode.NewLayerSet([]gcode.Layer{
		{"G0 Z0.2", "G1 X0 Y0", "G1 X10 Y5"},
		{"G0 Z0.4 F500", "G1 X0 Y0", "G1 X10 Y5"},
		{"G0 Z0.6", "G1 X0 Y0", "G1 X10 Y5"},
	})
}

// steadyFrames yields frames whose plausible average height is exactly h.
func steadyFrames(h float64, n int) []scanner.Sample {
	frames := make([]scanner.Sample, n)
	for i := range frames {
		frames[i] = scanner.Sample{
			X:         []float64{-1, 0, 1},
			Z:         []float64{h, h, h},
			Timestamp: time.Unix(0, int64(i)),
		}
	}
	return frames
}

func TestRunAdaptsLayersEndToEnd(t *testing.T) {
	muteLogs(t)

	layers := threeLayers()
	tr := &transport.Mock{}
	src := scanner.NewMockSource(steadyFrames(0.5, 5))

	r, err := NewRunner(Options{Layers: layers, Transport: tr, Source: src, Config: fastConfig()})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := r.State(); got != StateDone {
		t.Errorf("final state = %q, want done", got)
	}
	if layers.Len() != 3 {
		t.Errorf("layer count changed to %d", layers.Len())
	}

	// The last layer is never scanned, so at most two deviations exist.
	devs := r.Deviations()
	if len(devs) != 2 {
		t.Fatalf("deviation table = %v, want entries for layers 0 and 1", devs)
	}

	// Layer 0 measured 0.5 against expected 0.2: deviation 0.3 lowers
	// layer 1 from Z0.4 to Z0.100.
	layer1, _ := layers.Layer(1)
	if layer1[0] != "G0 Z0.100 F500" {
		t.Errorf("corrected layer 1 head = %q, want G0 Z0.100 F500", layer1[0])
	}

	// Layer 1 now prints at Z0.100, so its scan measures deviation 0.4 and
	// layer 2 drops from Z0.6 to Z0.200.
	layer2, _ := layers.Layer(2)
	if layer2[0] != "G0 Z0.200" {
		t.Errorf("corrected layer 2 head = %q, want G0 Z0.200", layer2[0])
	}

	// Five dispatches: three layer prints and two scan paths, interleaved.
	batches := tr.Batches()
	if len(batches) != 5 {
		t.Fatalf("got %d dispatches, want 5", len(batches))
	}
	if batches[1][0] != "; scan path for layer 0" {
		t.Errorf("second dispatch = %q, want scan path for layer 0", batches[1][0])
	}
	if batches[3][0] != "; scan path for layer 1" {
		t.Errorf("fourth dispatch = %q, want scan path for layer 1", batches[3][0])
	}
	if diff := cmp.Diff([]string{"G0 Z0.100 F500", "G1 X0 Y0", "G1 X10 Y5"}, batches[2]); diff != "" {
		t.Errorf("printed layer 1 mismatch (-want +got):\n%s", diff)
	}

	// Every scan window was opened and closed.
	begins, ends := src.Windows()
	if begins != 2 || ends != 2 {
		t.Errorf("acquisition windows = %d begins, %d ends, want 2/2", begins, ends)
	}

	results := r.Results()
	if len(results) != 2 {
		t.Fatalf("got %d scan results", len(results))
	}
	if results[0].LayerIndex != 0 || results[1].LayerIndex != 1 {
		t.Errorf("result layers = %d, %d", results[0].LayerIndex, results[1].LayerIndex)
	}
}

func TestRunSingleLayerSkipsScan(t *testing.T) {
	muteLogs(t)

	layers := gcode.NewLayerSet([]gcode.Layer{{"G0 Z0.2", "G1 X0 Y0"}})
	tr := &transport.Mock{}
	src := scanner.NewMockSource(steadyFrames(0.5, 3))

	r, err := NewRunner(Options{Layers: layers, Transport: tr, Source: src, Config: fastConfig()})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if begins, _ := src.Windows(); begins != 0 {
		t.Errorf("last layer must not be scanned, got %d windows", begins)
	}
	if len(tr.Batches()) != 1 {
		t.Errorf("got %d dispatches, want 1", len(tr.Batches()))
	}
	if len(r.Deviations()) != 0 {
		t.Errorf("deviation table should be empty")
	}
}

func TestRunScanFailureKeepsOriginalLayer(t *testing.T) {
	muteLogs(t)

	layers := threeLayers()
	tr := &transport.Mock{}
	// A source that never yields frames: every scan fails.
	src := scanner.NewMockSource(nil)

	r, err := NewRunner(Options{Layers: layers, Transport: tr, Source: src, Config: fastConfig()})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The run completes, nothing is corrected.
	layer1, _ := layers.Layer(1)
	if layer1[0] != "G0 Z0.4 F500" {
		t.Errorf("layer 1 modified despite failed scan: %q", layer1[0])
	}
	if len(r.Deviations()) != 0 {
		t.Errorf("deviation table = %v, want empty", r.Deviations())
	}
	// All three layers still printed.
	if len(tr.Batches()) != 5 {
		t.Errorf("got %d dispatches, want 5 (scan paths still dispatched)", len(tr.Batches()))
	}
}

func TestRunTransportFailureAborts(t *testing.T) {
	muteLogs(t)

	layers := threeLayers()
	tr := &transport.Mock{Err: errors.New("controller offline")}
	src := scanner.NewMockSource(nil)

	r, err := NewRunner(Options{Layers: layers, Transport: tr, Source: src, Config: fastConfig()})
	if err != nil {
		t.Fatal(err)
	}
	err = r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "controller offline") {
		t.Errorf("Run error = %v, want transport failure", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	muteLogs(t)

	layers := threeLayers()
	r, err := NewRunner(Options{
		Layers:    layers,
		Transport: &transport.Mock{},
		Source:    scanner.NewMockSource(nil),
		Config:    fastConfig(),
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestNewRunnerValidation(t *testing.T) {
	layers := threeLayers()
	tr := &transport.Mock{}
	src := scanner.NewMockSource(nil)

	if _, err := NewRunner(Options{Transport: tr, Source: src}); err == nil {
		t.Error("expected error for missing layers")
	}
	if _, err := NewRunner(Options{Layers: layers, Source: src}); err == nil {
		t.Error("expected error for missing transport")
	}
	if _, err := NewRunner(Options{Layers: layers, Transport: tr}); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestStatusSnapshot(t *testing.T) {
	muteLogs(t)

	layers := threeLayers()
	r, err := NewRunner(Options{
		Layers:    layers,
		Transport: &transport.Mock{},
		Source:    scanner.NewMockSource(steadyFrames(0.5, 3)),
		Config:    fastConfig(),
		RunID:     "run-test",
	})
	if err != nil {
		t.Fatal(err)
	}

	s := r.Status()
	if s.State != StateIdle || s.TotalLayers != 3 || s.RunID != "run-test" {
		t.Errorf("initial snapshot = %+v", s)
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	s = r.Status()
	if s.State != StateDone || s.ScannedLayers != 2 {
		t.Errorf("final snapshot = %+v", s)
	}
}

func TestStopWindowScalesWithCommandCount(t *testing.T) {
	r, err := NewRunner(Options{
		Layers:    threeLayers(),
		Transport: &transport.Mock{},
		Source:    scanner.NewMockSource(nil),
		Config: &config.ProcessConfig{
			StopWindowMin:        ptrStr("5s"),
			StopWindowPerCommand: ptrStr("500ms"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Below the floor the minimum window wins.
	if got := r.stopWindow(4); got != 5*time.Second {
		t.Errorf("stopWindow(4) = %v, want 5s", got)
	}
	// Above it the per-command estimate wins.
	if got := r.stopWindow(20); got != 10*time.Second {
		t.Errorf("stopWindow(20) = %v, want 10s", got)
	}
}
