package gcode

import "strconv"

// zPrecision is the number of decimals used when re-emitting an adjusted Z
// value.
const zPrecision = 3

// Corrector rewrites the vertical-axis targets of a not-yet-printed layer to
// compensate a measured height deviation. Apply is a pure transform: the same
// layer and deviation always produce the same output.
type Corrector struct {
	// Resolution is the smallest deviation magnitude worth correcting;
	// below it the layer is returned unmodified.
	Resolution float64
	// Floor is the minimum Z value ever emitted, keeping corrected targets
	// physical.
	Floor float64
}

// Apply subtracts deviation from every Z target on the layer's motion lines
// (a surface that measured too high lowers the next layer) and returns the
// rewritten layer plus the number of lines adjusted. Lines whose Z value
// cannot be parsed pass through unchanged.
func (c Corrector) Apply(layer Layer, deviation float64) (Layer, int) {
	if deviation < c.Resolution && deviation > -c.Resolution {
		return layer, 0
	}

	modified := make(Layer, 0, len(layer))
	adjusted := 0
	for _, raw := range layer {
		line := ParseLine(raw)
		if !line.IsMotion() {
			modified = append(modified, raw)
			continue
		}

		rewritten := false
		for i, w := range line.Words {
			if len(w) <= 1 || w[0] != 'Z' {
				continue
			}
			z, err := strconv.ParseFloat(w[1:], 64)
			if err != nil {
				break
			}
			next := z - deviation
			if next < c.Floor {
				next = c.Floor
			}
			line.Words[i] = "Z" + strconv.FormatFloat(next, 'f', zPrecision, 64)
			rewritten = true
			break
		}

		if rewritten {
			modified = append(modified, line.String())
			adjusted++
		} else {
			modified = append(modified, raw)
		}
	}
	return modified, adjusted
}
