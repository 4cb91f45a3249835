// Package scanner defines the profile-frame source consumed by the height
// pipeline and a scripted implementation for tests and dev mode. The real
// network-attached profiler lives in the network subpackage.
package scanner

import (
	"sync"
	"time"
)

// Sample is one profiler frame: parallel arrays of lateral positions and
// height readings plus the acquisition timestamp.
type Sample struct {
	X         []float64
	Z         []float64
	Timestamp time.Time
}

// Source is a stream of profile frames. Begin and End bracket one
// acquisition window; Poll never blocks and reports false when no frame is
// pending.
type Source interface {
	Begin() error
	End() error
	Poll() (Sample, bool)
}

// MockSource replays a scripted frame sequence. Begin rewinds to the start of
// the script so a single source can serve every scan window of a run.
type MockSource struct {
	mu      sync.Mutex
	frames  []Sample
	next    int
	started bool
	begins  int
	ends    int
}

// NewMockSource creates a source that yields the given frames in order, one
// per Poll.
func NewMockSource(frames []Sample) *MockSource {
	return &MockSource{frames: frames}
}

func (m *MockSource) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.next = 0
	m.begins++
	return nil
}

func (m *MockSource) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	m.ends++
	return nil
}

func (m *MockSource) Poll() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.next >= len(m.frames) {
		return Sample{}, false
	}
	s := m.frames[m.next]
	m.next++
	return s, true
}

// Windows reports how many Begin/End acquisition windows completed.
func (m *MockSource) Windows() (begins, ends int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begins, m.ends
}
