// Package scanpath derives profiler sweep trajectories from layer geometry.
package scanpath

import (
	"fmt"
	"strconv"

	"github.com/arcment-data/arcweld/internal/config"
	"github.com/arcment-data/arcweld/internal/gcode"
	"github.com/arcment-data/arcweld/internal/monitoring"
)

// Default bounding box used when a layer carries no X/Y geometry at all,
// covering the whole build plate.
const (
	DefaultBoundsMin = 0.0
	DefaultBoundsMax = 200.0
)

// Generator produces rectangular sweep paths over a layer's planar bounding
// box at a profiler standoff height.
type Generator struct {
	Margin        float64 // bbox expansion on every edge (mm)
	SafetyOffset  float64 // lift above the layer for travel moves (mm)
	Clearance     float64 // standoff above the layer while scanning (mm)
	TravelFeed    float64 // rapid feed (mm/min)
	ScanFeed      float64 // feed while tracing the rectangle (mm/min)
	DefaultHeight float64 // per-layer Z increment when the layer has no Z (mm)
}

// FromConfig builds a Generator from process configuration.
func FromConfig(cfg *config.ProcessConfig) Generator {
	return Generator{
		Margin:        cfg.GetScanMargin(),
		SafetyOffset:  cfg.GetZSafetyOffset(),
		Clearance:     cfg.GetScanClearance(),
		TravelFeed:    cfg.GetTravelFeed(),
		ScanFeed:      cfg.GetScanFeed(),
		DefaultHeight: cfg.GetDefaultLayerHeight(),
	}
}

// coord formats a coordinate value for emission.
func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Generate builds the scan path for the given layer. Missing geometry falls
// back to documented defaults (full-plate bounding box, index-derived layer
// height) with a diagnostic rather than failing.
func (g Generator) Generate(layer gcode.Layer, index int) gcode.Layer {
	b := gcode.ExtractBounds(layer)

	if !b.HasXY {
		monitoring.Warnf("layer %d: no X/Y geometry found, using default bounding box %g-%g",
			index, DefaultBoundsMin, DefaultBoundsMax)
		b.MinX, b.MaxX = DefaultBoundsMin, DefaultBoundsMax
		b.MinY, b.MaxY = DefaultBoundsMin, DefaultBoundsMax
	}
	if !b.HasZ {
		b.Z = g.DefaultHeight * float64(index+1)
		monitoring.Warnf("layer %d: no Z height found, using default %.3f", index, b.Z)
	}

	minX := b.MinX - g.Margin
	maxX := b.MaxX + g.Margin
	minY := b.MinY - g.Margin
	maxY := b.MaxY + g.Margin
	safeZ := b.Z + g.SafetyOffset
	scanZ := b.Z + g.Clearance

	return gcode.Layer{
		fmt.Sprintf("; scan path for layer %d", index),
		fmt.Sprintf("G0 F%g Z%s", g.TravelFeed, coord(safeZ)),
		fmt.Sprintf("G0 X%s Y%s", coord(minX), coord(minY)),
		fmt.Sprintf("G0 Z%s", coord(scanZ)),
		fmt.Sprintf("G1 X%s Y%s F%g", coord(maxX), coord(minY), g.ScanFeed),
		fmt.Sprintf("G1 X%s Y%s", coord(maxX), coord(maxY)),
		fmt.Sprintf("G1 X%s Y%s", coord(minX), coord(maxY)),
		fmt.Sprintf("G1 X%s Y%s", coord(minX), coord(minY)),
		fmt.Sprintf("G0 Z%s", coord(safeZ)),
	}
}
