package scanner

import (
	"testing"
	"time"
)

func TestMockSourcePollSequence(t *testing.T) {
	frames := []Sample{
		{Z: []float64{0.5}, Timestamp: time.Unix(0, 1)},
		{Z: []float64{0.6}, Timestamp: time.Unix(0, 2)},
	}
	src := NewMockSource(frames)

	// Poll before Begin yields nothing.
	if _, ok := src.Poll(); ok {
		t.Error("Poll before Begin should report no frame")
	}

	if err := src.Begin(); err != nil {
		t.Fatal(err)
	}
	for i := range frames {
		s, ok := src.Poll()
		if !ok {
			t.Fatalf("Poll %d returned no frame", i)
		}
		if s.Z[0] != frames[i].Z[0] {
			t.Errorf("frame %d Z = %f, want %f", i, s.Z[0], frames[i].Z[0])
		}
	}
	if _, ok := src.Poll(); ok {
		t.Error("exhausted script should report no frame")
	}
	if err := src.End(); err != nil {
		t.Fatal(err)
	}

	// A new window replays the script from the start.
	if err := src.Begin(); err != nil {
		t.Fatal(err)
	}
	s, ok := src.Poll()
	if !ok || s.Z[0] != 0.5 {
		t.Errorf("after rewind, first frame Z = %f, ok=%v", s.Z[0], ok)
	}

	begins, ends := src.Windows()
	if begins != 2 || ends != 1 {
		t.Errorf("windows = %d begins, %d ends", begins, ends)
	}
}
