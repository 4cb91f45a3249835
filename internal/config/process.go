package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ProcessConfig represents the tunable parameters of the adaptive layer
// correction process. All fields are optional pointers so a partial JSON file
// only overrides what it names; the Get* accessors supply defaults for the
// rest.
type ProcessConfig struct {
	// Scan path params
	ScanMargin    *float64 `json:"scan_margin,omitempty"`     // bbox expansion (mm)
	ZSafetyOffset *float64 `json:"z_safety_offset,omitempty"` // lift above layer for travel (mm)
	ScanClearance *float64 `json:"scan_clearance,omitempty"`  // profiler standoff above layer (mm)
	TravelFeed    *float64 `json:"travel_feed,omitempty"`     // rapid feed (mm/min)
	ScanFeed      *float64 `json:"scan_feed,omitempty"`       // feed while tracing edges (mm/min)

	// Geometry fallbacks
	DefaultLayerHeight *float64 `json:"default_layer_height,omitempty"` // per-layer Z increment when no Z found (mm)

	// Height filtering params
	PlausibleMin     *float64 `json:"plausible_min,omitempty"`     // reject readings at or below (mm)
	PlausibleMax     *float64 `json:"plausible_max,omitempty"`     // reject readings at or above (mm)
	OutlierThreshold *float64 `json:"outlier_threshold,omitempty"` // std-dev multiple for end-of-window filter

	// Correction params
	CorrectionResolution *float64 `json:"correction_resolution,omitempty"` // |deviation| below this is ignored (mm)
	ZFloor               *float64 `json:"z_floor,omitempty"`               // minimum corrected Z (mm)

	// Timing params (duration strings like "500ms")
	StopWindowMin        *string `json:"stop_window_min,omitempty"`         // minimum acquisition window
	StopWindowPerCommand *string `json:"stop_window_per_command,omitempty"` // window growth per scan command
	ScanSettle           *string `json:"scan_settle,omitempty"`             // delay between acquisition start and scan dispatch
	InterLayerSettle     *string `json:"inter_layer_settle,omitempty"`      // pause between layers
	PollIdle             *string `json:"poll_idle,omitempty"`               // acquisition poll interval with no frame pending
	PollAfterSample      *string `json:"poll_after_sample,omitempty"`       // pause after consuming a frame
}

// EmptyProcessConfig returns a ProcessConfig with all fields unset.
func EmptyProcessConfig() *ProcessConfig {
	return &ProcessConfig{}
}

// LoadProcessConfig loads a ProcessConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadProcessConfig(path string) (*ProcessConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyProcessConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *ProcessConfig) Validate() error {
	if c.ScanMargin != nil && *c.ScanMargin < 0 {
		return fmt.Errorf("scan_margin must be non-negative, got %f", *c.ScanMargin)
	}
	if c.OutlierThreshold != nil && *c.OutlierThreshold <= 0 {
		return fmt.Errorf("outlier_threshold must be positive, got %f", *c.OutlierThreshold)
	}
	if c.PlausibleMin != nil && c.PlausibleMax != nil && *c.PlausibleMin >= *c.PlausibleMax {
		return fmt.Errorf("plausible_min %f must be below plausible_max %f", *c.PlausibleMin, *c.PlausibleMax)
	}
	if c.ZFloor != nil && *c.ZFloor < 0 {
		return fmt.Errorf("z_floor must be non-negative, got %f", *c.ZFloor)
	}

	for name, field := range map[string]*string{
		"stop_window_min":         c.StopWindowMin,
		"stop_window_per_command": c.StopWindowPerCommand,
		"scan_settle":             c.ScanSettle,
		"inter_layer_settle":      c.InterLayerSettle,
		"poll_idle":               c.PollIdle,
		"poll_after_sample":       c.PollAfterSample,
	} {
		if field != nil && *field != "" {
			if _, err := time.ParseDuration(*field); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *field, err)
			}
		}
	}

	return nil
}

func (c *ProcessConfig) duration(field *string, def time.Duration) time.Duration {
	if field == nil || *field == "" {
		return def
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return def
	}
	return d
}

// GetScanMargin returns the scan_margin value or the default.
func (c *ProcessConfig) GetScanMargin() float64 {
	if c.ScanMargin == nil {
		return 2.0
	}
	return *c.ScanMargin
}

// GetZSafetyOffset returns the z_safety_offset value or the default.
func (c *ProcessConfig) GetZSafetyOffset() float64 {
	if c.ZSafetyOffset == nil {
		return 5.0
	}
	return *c.ZSafetyOffset
}

// GetScanClearance returns the scan_clearance value or the default.
func (c *ProcessConfig) GetScanClearance() float64 {
	if c.ScanClearance == nil {
		return 2.0
	}
	return *c.ScanClearance
}

// GetTravelFeed returns the travel_feed value or the default.
func (c *ProcessConfig) GetTravelFeed() float64 {
	if c.TravelFeed == nil {
		return 1000
	}
	return *c.TravelFeed
}

// GetScanFeed returns the scan_feed value or the default.
func (c *ProcessConfig) GetScanFeed() float64 {
	if c.ScanFeed == nil {
		return 500
	}
	return *c.ScanFeed
}

// GetDefaultLayerHeight returns the default_layer_height value or the default.
func (c *ProcessConfig) GetDefaultLayerHeight() float64 {
	if c.DefaultLayerHeight == nil {
		return 0.2
	}
	return *c.DefaultLayerHeight
}

// GetPlausibleMin returns the plausible_min value or the default.
func (c *ProcessConfig) GetPlausibleMin() float64 {
	if c.PlausibleMin == nil {
		return 0.1
	}
	return *c.PlausibleMin
}

// GetPlausibleMax returns the plausible_max value or the default.
func (c *ProcessConfig) GetPlausibleMax() float64 {
	if c.PlausibleMax == nil {
		return 100.0
	}
	return *c.PlausibleMax
}

// GetOutlierThreshold returns the outlier_threshold value or the default.
func (c *ProcessConfig) GetOutlierThreshold() float64 {
	if c.OutlierThreshold == nil {
		return 2.0
	}
	return *c.OutlierThreshold
}

// GetCorrectionResolution returns the correction_resolution value or the default.
func (c *ProcessConfig) GetCorrectionResolution() float64 {
	if c.CorrectionResolution == nil {
		return 0.01
	}
	return *c.CorrectionResolution
}

// GetZFloor returns the z_floor value or the default.
func (c *ProcessConfig) GetZFloor() float64 {
	if c.ZFloor == nil {
		return 0.05
	}
	return *c.ZFloor
}

// GetStopWindowMin returns the minimum acquisition window duration.
func (c *ProcessConfig) GetStopWindowMin() time.Duration {
	return c.duration(c.StopWindowMin, 5*time.Second)
}

// GetStopWindowPerCommand returns the per-command acquisition window growth.
func (c *ProcessConfig) GetStopWindowPerCommand() time.Duration {
	return c.duration(c.StopWindowPerCommand, 500*time.Millisecond)
}

// GetScanSettle returns the delay between acquisition start and scan dispatch.
func (c *ProcessConfig) GetScanSettle() time.Duration {
	return c.duration(c.ScanSettle, 500*time.Millisecond)
}

// GetInterLayerSettle returns the pause between layers.
func (c *ProcessConfig) GetInterLayerSettle() time.Duration {
	return c.duration(c.InterLayerSettle, 500*time.Millisecond)
}

// GetPollIdle returns the acquisition poll interval when no frame is pending.
func (c *ProcessConfig) GetPollIdle() time.Duration {
	return c.duration(c.PollIdle, 10*time.Millisecond)
}

// GetPollAfterSample returns the pause after consuming a frame.
func (c *ProcessConfig) GetPollAfterSample() time.Duration {
	return c.duration(c.PollAfterSample, 100*time.Millisecond)
}
