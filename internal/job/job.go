// Package job drives the adaptive print loop: print a layer, scan it while
// streaming profiler frames, fold the measured deviation into the next
// layer's toolpath, advance. Failures degrade to printing the original,
// unmodified layer; only transport failure or context cancellation aborts a
// run.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcment-data/arcweld/internal/config"
	"github.com/arcment-data/arcweld/internal/db"
	"github.com/arcment-data/arcweld/internal/gcode"
	"github.com/arcment-data/arcweld/internal/heights"
	"github.com/arcment-data/arcweld/internal/monitoring"
	"github.com/arcment-data/arcweld/internal/scanner"
	"github.com/arcment-data/arcweld/internal/scanpath"
	"github.com/arcment-data/arcweld/internal/transport"
)

// State identifies the phase of the per-layer control loop.
type State string

const (
	StateIdle       State = "idle"
	StatePrinting   State = "printing"
	StateScanning   State = "scanning"
	StateCorrecting State = "correcting"
	StateAdvancing  State = "advancing"
	StateDone       State = "done"
)

// Options configures a Runner.
type Options struct {
	Layers    *gcode.LayerSet
	Transport transport.Transport
	Source    scanner.Source
	Config    *config.ProcessConfig

	// Store is optional; when set, scan results are persisted under RunID.
	Store *db.DB
	RunID string
}

// Runner executes one print run. All layer-loop state is owned by the Run
// goroutine; the mutex only guards the snapshot read by Status and the
// result accessors.
type Runner struct {
	layers *gcode.LayerSet
	tr     transport.Transport
	src    scanner.Source
	cfg    *config.ProcessConfig
	gen    scanpath.Generator
	corr   gcode.Corrector
	store  *db.DB
	runID  string

	mu           sync.Mutex
	state        State
	currentLayer int
	correctIndex int
	lastScanOK   bool
	deviations   map[int]float64
	results      map[int]heights.ScanResult
}

// NewRunner builds a runner for the given layer set.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Layers == nil || opts.Layers.Len() == 0 {
		return nil, fmt.Errorf("no layers to print")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("scanner source is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyProcessConfig()
	}

	return &Runner{
		layers: opts.Layers,
		tr:     opts.Transport,
		src:    opts.Source,
		cfg:    cfg,
		gen:    scanpath.FromConfig(cfg),
		corr: gcode.Corrector{
			Resolution: cfg.GetCorrectionResolution(),
			Floor:      cfg.GetZFloor(),
		},
		store:      opts.Store,
		runID:      opts.RunID,
		state:      StateIdle,
		deviations: make(map[int]float64),
		results:    make(map[int]heights.ScanResult),
	}, nil
}

// Run executes the whole print job and returns on completion, transport
// failure, or context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	monitoring.Logf("starting print job: %d layers", r.layers.Len())
	r.setState(StatePrinting)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch r.State() {
		case StatePrinting:
			next, err := r.printCurrent(ctx)
			if err != nil {
				return err
			}
			r.setState(next)

		case StateScanning:
			ok, err := r.scanCurrent(ctx)
			if err != nil {
				return err
			}
			r.mu.Lock()
			r.lastScanOK = ok
			r.mu.Unlock()
			r.setState(StateCorrecting)

		case StateCorrecting:
			r.correctNext()
			r.setState(StateAdvancing)

		case StateAdvancing:
			next, err := r.advance(ctx)
			if err != nil {
				return err
			}
			r.setState(next)

		case StateDone:
			monitoring.Logf("print job complete: %d layers, %d scanned", r.layers.Len(), len(r.results))
			return nil

		default:
			return fmt.Errorf("unexpected state %q", r.State())
		}
	}
}

// printCurrent dispatches the current layer. The last layer finishes the
// run; every other layer is scanned next.
func (r *Runner) printCurrent(ctx context.Context) (State, error) {
	idx := r.current()
	layer, err := r.layers.Layer(idx)
	if err != nil {
		return StateDone, err
	}

	monitoring.Logf("printing layer %d/%d (%d commands)", idx, r.layers.Len()-1, len(layer))
	if err := r.tr.Dispatch(ctx, layer); err != nil {
		return StateDone, fmt.Errorf("printing layer %d: %w", idx, err)
	}

	if idx == r.layers.Len()-1 {
		return StateDone, nil
	}
	return StateScanning, nil
}

// scanCurrent runs one acquisition window over the just-printed layer:
// the acquisition goroutine streams frames into the aggregator, the scan
// path is dispatched after a settle delay, and a stop timer sized from the
// path's command count ends the window. Both goroutines are joined before
// the aggregator is read, so the height history never sees concurrent
// access.
func (r *Runner) scanCurrent(ctx context.Context) (bool, error) {
	idx := r.current()
	layer, err := r.layers.Layer(idx)
	if err != nil {
		monitoring.Warnf("scan skipped: %v", err)
		return false, nil
	}

	path := r.gen.Generate(layer, idx)
	if len(path) == 0 {
		monitoring.Warnf("layer %d: could not generate scan commands", idx)
		return false, nil
	}

	agg := heights.New(
		r.cfg.GetPlausibleMin(),
		r.cfg.GetPlausibleMax(),
		r.cfg.GetOutlierThreshold(),
	)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.acquire(ctx, agg, stop)
	}()

	// Let the acquisition pipeline come up before any scan motion starts.
	if !sleepCtx(ctx, r.cfg.GetScanSettle()) {
		close(stop)
		wg.Wait()
		return false, ctx.Err()
	}

	monitoring.Logf("layer %d: executing scan path (%d commands)", idx, len(path))
	if err := r.tr.Dispatch(ctx, path); err != nil {
		close(stop)
		wg.Wait()
		return false, fmt.Errorf("dispatching scan path for layer %d: %w", idx, err)
	}

	// The stop window is a heuristic sized from the path's command count,
	// counted from dispatch completion. See ProcessConfig to retune it for
	// slower controllers.
	window := r.stopWindow(len(path))
	monitoring.Logf("layer %d: acquisition stops in %v", idx, window)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sleepCtx(ctx, window)
		close(stop)
	}()

	wg.Wait()

	expectedZ, found := gcode.FirstZ(layer)
	if !found {
		monitoring.Warnf("layer %d: no Z height found, comparing against 0", idx)
	}

	res, err := agg.Result(idx, expectedZ)
	if err != nil {
		monitoring.Warnf("layer %d: scan failed: %v", idx, err)
		return false, nil
	}

	monitoring.Logf("layer %d scan: avg_height=%.3fmm expected=%.3fmm deviation=%.3fmm (%d/%d points)",
		idx, res.AvgHeight, res.ExpectedZ, res.Deviation, res.FilteredPoints, res.RawPoints)

	r.mu.Lock()
	r.deviations[idx] = res.Deviation
	r.results[idx] = res
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.RecordScanResult(r.runID, res); err != nil {
			monitoring.Warnf("failed to persist scan result for layer %d: %v", idx, err)
		}
	}
	return true, nil
}

// acquire polls the profiler source until the stop signal, feeding frames to
// the aggregator. The stop flag is observed between iterations; in-flight
// frame processing always completes.
func (r *Runner) acquire(ctx context.Context, agg *heights.Aggregator, stop <-chan struct{}) {
	if err := r.src.Begin(); err != nil {
		monitoring.Warnf("failed to start acquisition: %v", err)
		return
	}
	defer func() {
		if err := r.src.End(); err != nil {
			monitoring.Warnf("failed to stop acquisition: %v", err)
		}
	}()

	pollIdle := r.cfg.GetPollIdle()
	pollAfter := r.cfg.GetPollAfterSample()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if sample, ok := r.src.Poll(); ok {
			if avg, ok := agg.Add(sample); ok {
				monitoring.Logf("profile height: %.3fmm", avg)
			}
			if !sleepCtx(ctx, pollAfter) {
				return
			}
		} else if !sleepCtx(ctx, pollIdle) {
			return
		}
	}
}

// correctNext advances the correction index and rewrites the next layer when
// a deviation was recorded. The index advances even when the scan failed so
// bookkeeping stays in sync with the printed-layer index.
func (r *Runner) correctNext() {
	r.mu.Lock()
	scanned := r.correctIndex
	r.correctIndex++
	next := r.correctIndex
	scanOK := r.lastScanOK
	dev, haveDev := r.deviations[scanned]
	r.mu.Unlock()

	if next >= r.layers.Len() {
		monitoring.Logf("no more layers to correct")
		return
	}
	if !scanOK {
		monitoring.Logf("layer %d: no scan data, using original toolpath", next)
		return
	}
	if !haveDev {
		monitoring.Logf("no deviation recorded for layer %d", scanned)
		return
	}

	layer, err := r.layers.Layer(next)
	if err != nil {
		monitoring.Warnf("correction skipped: %v", err)
		return
	}

	corrected, adjusted := r.corr.Apply(layer, dev)
	if adjusted == 0 {
		monitoring.Logf("layer %d: deviation %.3fmm below correction resolution", next, dev)
		return
	}
	if err := r.layers.Replace(next, corrected); err != nil {
		monitoring.Warnf("failed to replace layer %d: %v", next, err)
		return
	}
	monitoring.Logf("layer %d: %d Z adjustments applied (deviation %.3fmm)", next, adjusted, dev)
}

// advance moves to the next layer after the inter-layer settle pause.
func (r *Runner) advance(ctx context.Context) (State, error) {
	r.mu.Lock()
	r.currentLayer++
	done := r.currentLayer == r.layers.Len()
	r.mu.Unlock()

	if done {
		return StateDone, nil
	}
	if !sleepCtx(ctx, r.cfg.GetInterLayerSettle()) {
		return StateDone, ctx.Err()
	}
	return StatePrinting, nil
}

// stopWindow estimates how long the scan path takes to execute.
func (r *Runner) stopWindow(commands int) time.Duration {
	window := time.Duration(commands) * r.cfg.GetStopWindowPerCommand()
	if min := r.cfg.GetStopWindowMin(); window < min {
		window = min
	}
	return window
}

// sleepCtx sleeps for d unless the context ends first; it reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLayer
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// State returns the current phase of the control loop.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot is a point-in-time view of run progress for the status API.
type Snapshot struct {
	RunID         string `json:"run_id,omitempty"`
	State         State  `json:"state"`
	CurrentLayer  int    `json:"current_layer"`
	TotalLayers   int    `json:"total_layers"`
	ScannedLayers int    `json:"scanned_layers"`
}

// Status returns a snapshot of run progress.
func (r *Runner) Status() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		RunID:         r.runID,
		State:         r.state,
		CurrentLayer:  r.currentLayer,
		TotalLayers:   r.layers.Len(),
		ScannedLayers: len(r.results),
	}
}

// Deviations returns a copy of the deviation table keyed by layer index.
func (r *Runner) Deviations() map[int]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]float64, len(r.deviations))
	for k, v := range r.deviations {
		out[k] = v
	}
	return out
}

// Results returns the scan results recorded so far, ordered by layer index.
func (r *Runner) Results() []heights.ScanResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]heights.ScanResult, 0, len(r.results))
	for i := 0; i < r.layers.Len(); i++ {
		if res, ok := r.results[i]; ok {
			out = append(out, res)
		}
	}
	return out
}
