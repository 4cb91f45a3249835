package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyProcessConfig()

	if got := cfg.GetScanMargin(); got != 2.0 {
		t.Errorf("GetScanMargin() = %f, want 2.0", got)
	}
	if got := cfg.GetZSafetyOffset(); got != 5.0 {
		t.Errorf("GetZSafetyOffset() = %f, want 5.0", got)
	}
	if got := cfg.GetOutlierThreshold(); got != 2.0 {
		t.Errorf("GetOutlierThreshold() = %f, want 2.0", got)
	}
	if got := cfg.GetCorrectionResolution(); got != 0.01 {
		t.Errorf("GetCorrectionResolution() = %f, want 0.01", got)
	}
	if got := cfg.GetZFloor(); got != 0.05 {
		t.Errorf("GetZFloor() = %f, want 0.05", got)
	}
	if got := cfg.GetStopWindowMin(); got != 5*time.Second {
		t.Errorf("GetStopWindowMin() = %v, want 5s", got)
	}
	if got := cfg.GetStopWindowPerCommand(); got != 500*time.Millisecond {
		t.Errorf("GetStopWindowPerCommand() = %v, want 500ms", got)
	}
	if got := cfg.GetPollIdle(); got != 10*time.Millisecond {
		t.Errorf("GetPollIdle() = %v, want 10ms", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "process.json")
	body := `{"scan_margin": 3.5, "stop_window_min": "2s"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadProcessConfig(path)
	if err != nil {
		t.Fatalf("LoadProcessConfig failed: %v", err)
	}

	if got := cfg.GetScanMargin(); got != 3.5 {
		t.Errorf("GetScanMargin() = %f, want 3.5", got)
	}
	if got := cfg.GetStopWindowMin(); got != 2*time.Second {
		t.Errorf("GetStopWindowMin() = %v, want 2s", got)
	}
	// Unset fields keep their defaults.
	if got := cfg.GetScanFeed(); got != 500 {
		t.Errorf("GetScanFeed() = %f, want 500", got)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		body string
	}{
		{"negative margin", `{"scan_margin": -1}`},
		{"zero threshold", `{"outlier_threshold": 0}`},
		{"inverted band", `{"plausible_min": 50, "plausible_max": 10}`},
		{"bad duration", `{"scan_settle": "fast"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.json")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadProcessConfig(path); err == nil {
				t.Errorf("expected error for %s", tc.body)
			}
		})
	}
}

func TestLoadConfigRequiresJSONExtension(t *testing.T) {
	if _, err := LoadProcessConfig("process.yaml"); err == nil {
		t.Error("expected error for non-JSON extension")
	}
}
