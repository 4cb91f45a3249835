// Package transport dispatches motion-command batches to the controller. The
// engine only depends on the Transport interface; the serial implementation
// speaks line-oriented G-code with ok-acknowledgements.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrDispatchFailed wraps controller-side rejections of a command batch.
var ErrDispatchFailed = fmt.Errorf("failed to dispatch command batch")

// Transport sends a batch of command lines to the motion controller and
// blocks until the controller has accepted them.
type Transport interface {
	Dispatch(ctx context.Context, lines []string) error
}

// Mock records dispatched batches for tests and dev mode. It can simulate
// per-batch latency and injected failures.
type Mock struct {
	mu      sync.Mutex
	batches [][]string

	// Delay is slept on every Dispatch to simulate controller motion time.
	Delay time.Duration
	// Err, when set, is returned by every Dispatch after recording.
	Err error
}

// Dispatch records a copy of the batch.
func (m *Mock) Dispatch(ctx context.Context, lines []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := make([]string, len(lines))
	copy(batch, lines)

	m.mu.Lock()
	m.batches = append(m.batches, batch)
	err := m.Err
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Batches returns the dispatched batches in order.
func (m *Mock) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.batches))
	copy(out, m.batches)
	return out
}

// SetErr changes the injected failure for subsequent dispatches.
func (m *Mock) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
