// Package heights turns a stream of profiler frames into a per-layer height
// deviation estimate. Each frame is reduced to one average height after
// band-pass filtering its readings; the window history is then cleaned with a
// standard-deviation outlier filter before the summary statistics are taken.
package heights

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/arcment-data/arcweld/internal/monitoring"
	"github.com/arcment-data/arcweld/internal/scanner"
)

// ErrNoData is reported when an acquisition window produced no usable height
// readings. Callers must treat it as "no correction data", never as a zero
// deviation.
var ErrNoData = errors.New("no valid height data collected")

// minHistoryForFilter is the smallest history length with enough statistical
// power for the outlier stage; at or below it the history is used as-is.
const minHistoryForFilter = 3

// ScanResult summarizes one scanned layer. Created once per successful
// window and never mutated afterwards.
type ScanResult struct {
	LayerIndex     int     `json:"layer_index"`
	ExpectedZ      float64 `json:"expected_z"`
	MaxHeight      float64 `json:"max_height"`
	MinHeight      float64 `json:"min_height"`
	AvgHeight      float64 `json:"avg_height"`
	RawPoints      int     `json:"num_raw_points"`
	FilteredPoints int     `json:"num_points"`
	// Deviation is AvgHeight - ExpectedZ: positive means the surface sits
	// higher than commanded.
	Deviation float64 `json:"deviation"`
}

// Aggregator accumulates per-frame average heights for the duration of one
// acquisition window. It is owned by the acquisition goroutine while the
// window is open and handed over by join before Result is read.
type Aggregator struct {
	// PlausibleMin and PlausibleMax bound the open interval of physically
	// plausible height readings; values outside are discarded per frame.
	PlausibleMin float64
	PlausibleMax float64
	// Threshold is the standard-deviation multiple for the end-of-window
	// outlier filter.
	Threshold float64

	history []float64
}

// New creates an aggregator with an empty history.
func New(plausibleMin, plausibleMax, threshold float64) *Aggregator {
	return &Aggregator{
		PlausibleMin: plausibleMin,
		PlausibleMax: plausibleMax,
		Threshold:    threshold,
	}
}

// Reset clears the window history.
func (a *Aggregator) Reset() {
	a.history = a.history[:0]
}

// Add reduces one frame to its average plausible height and appends it to
// the history. A frame with no plausible readings contributes nothing and
// reports ok=false.
func (a *Aggregator) Add(s scanner.Sample) (avg float64, ok bool) {
	valid := make([]float64, 0, len(s.Z))
	for _, z := range s.Z {
		if z > a.PlausibleMin && z < a.PlausibleMax {
			valid = append(valid, z)
		}
	}
	if len(valid) == 0 {
		return 0, false
	}
	avg = stat.Mean(valid, nil)
	a.history = append(a.history, avg)
	return avg, true
}

// Count returns the number of frames that contributed to the history.
func (a *Aggregator) Count() int {
	return len(a.history)
}

// Result runs the outlier filter over the accumulated history and produces
// the scan summary for the given layer. It fails with ErrNoData when the
// window collected nothing usable.
func (a *Aggregator) Result(layerIndex int, expectedZ float64) (ScanResult, error) {
	raw := len(a.history)
	if raw == 0 {
		return ScanResult{}, ErrNoData
	}

	filtered := a.history
	if raw > minHistoryForFilter {
		filtered = filterOutliers(a.history, a.Threshold)
		if removed := raw - len(filtered); removed > 0 {
			monitoring.Logf("filtered %d outlier points from scan data", removed)
		}
	}
	if len(filtered) == 0 {
		return ScanResult{}, ErrNoData
	}

	avg := stat.Mean(filtered, nil)
	res := ScanResult{
		LayerIndex:     layerIndex,
		ExpectedZ:      expectedZ,
		MaxHeight:      floats.Max(filtered),
		MinHeight:      floats.Min(filtered),
		AvgHeight:      avg,
		RawPoints:      raw,
		FilteredPoints: len(filtered),
		Deviation:      avg - expectedZ,
	}
	return res, nil
}

// filterOutliers keeps the values strictly within threshold population
// standard deviations of the mean. Zero spread keeps everything.
func filterOutliers(data []float64, threshold float64) []float64 {
	mean := stat.Mean(data, nil)
	sigma := stat.PopStdDev(data, nil)
	if sigma == 0 {
		return data
	}

	kept := make([]float64, 0, len(data))
	for _, v := range data {
		d := v - mean
		if d < 0 {
			d = -d
		}
		if d < threshold*sigma {
			kept = append(kept, v)
		}
	}
	return kept
}
