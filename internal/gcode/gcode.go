// Package gcode holds the command-line data model for the adaptive layer
// engine: tokenized motion lines, fixed-length layer sets, and the geometry
// extraction helpers shared by the scan path generator and the height
// pipeline.
package gcode

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Layer is an ordered sequence of motion-command lines. A layer is never
// mutated in place; a corrected version replaces the whole layer in its
// LayerSet.
type Layer []string

// LayerSet is an ordered collection of layers whose length is fixed at load
// time. The only permitted mutation is whole-layer replacement by index.
type LayerSet struct {
	mu     sync.RWMutex
	layers []Layer
}

// NewLayerSet wraps the parsed layers of a toolpath file.
func NewLayerSet(layers []Layer) *LayerSet {
	return &LayerSet{layers: layers}
}

// Len returns the number of layers. It never changes after construction.
func (s *LayerSet) Len() int {
	return len(s.layers)
}

// Layer returns the layer at index i.
func (s *LayerSet) Layer(i int) (Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.layers) {
		return nil, fmt.Errorf("layer index %d out of range (0..%d)", i, len(s.layers)-1)
	}
	return s.layers[i], nil
}

// Replace swaps in a new version of layer i.
func (s *LayerSet) Replace(i int, layer Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.layers) {
		return fmt.Errorf("layer index %d out of range (0..%d)", i, len(s.layers)-1)
	}
	s.layers[i] = layer
	return nil
}

// Line is the tokenized form of one command line: the whitespace-separated
// words of the code portion, kept verbatim, plus any trailing comment. A line
// can be re-emitted with a single field changed without disturbing the rest.
type Line struct {
	Words   []string
	Comment string // from ';' to end of line, empty when absent
}

// ParseLine tokenizes a raw command line.
func ParseLine(raw string) Line {
	code := raw
	comment := ""
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		code = raw[:i]
		comment = raw[i:]
	}
	return Line{Words: strings.Fields(code), Comment: comment}
}

// String re-emits the line. Word spacing is normalized to single spaces;
// callers that did not modify a line should keep its original text instead.
func (l Line) String() string {
	code := strings.Join(l.Words, " ")
	if l.Comment == "" {
		return code
	}
	if code == "" {
		return l.Comment
	}
	return code + " " + l.Comment
}

// IsMotion reports whether the line is a G0 or G1 motion command.
func (l Line) IsMotion() bool {
	if len(l.Words) == 0 {
		return false
	}
	return l.Words[0] == "G0" || l.Words[0] == "G1"
}

// Value returns the numeric value of the first word carrying the given axis
// letter, e.g. Value('Z') on "G1 X10 Z0.400" yields 0.4.
func (l Line) Value(letter byte) (float64, bool) {
	for _, w := range l.Words {
		if len(w) > 1 && w[0] == letter {
			v, err := strconv.ParseFloat(w[1:], 64)
			if err != nil {
				continue
			}
			return v, true
		}
	}
	return 0, false
}

// Bounds is the planar bounding box of a layer plus its nominal height.
// HasXY and HasZ report whether the values were actually found on motion
// lines or are still zero.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
	Z          float64
	HasXY      bool
	HasZ       bool
}

// ExtractBounds walks the motion lines of a layer tracking min/max X and Y
// and the first Z value encountered. HasXY is set only when both axes were
// seen; callers apply their own defaults otherwise.
func ExtractBounds(layer Layer) Bounds {
	var b Bounds
	var seenX, seenY bool
	for _, raw := range layer {
		line := ParseLine(raw)
		if !line.IsMotion() {
			continue
		}
		if x, ok := line.Value('X'); ok {
			if !seenX {
				b.MinX, b.MaxX = x, x
				seenX = true
			} else {
				b.MinX = min(b.MinX, x)
				b.MaxX = max(b.MaxX, x)
			}
		}
		if y, ok := line.Value('Y'); ok {
			if !seenY {
				b.MinY, b.MaxY = y, y
				seenY = true
			} else {
				b.MinY = min(b.MinY, y)
				b.MaxY = max(b.MaxY, y)
			}
		}
		if z, ok := line.Value('Z'); ok && !b.HasZ {
			b.Z = z
			b.HasZ = true
		}
	}
	b.HasXY = seenX && seenY
	return b
}

// FirstZ returns the first Z value found on a motion line of the layer.
func FirstZ(layer Layer) (float64, bool) {
	for _, raw := range layer {
		line := ParseLine(raw)
		if !line.IsMotion() {
			continue
		}
		if z, ok := line.Value('Z'); ok {
			return z, true
		}
	}
	return 0, false
}
