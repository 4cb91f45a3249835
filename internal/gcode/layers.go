package gcode

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// layerMarker is the slicer comment that opens a new layer, e.g. ";LAYER:12".
const layerMarker = ";LAYER"

// ParseLayers splits a line-oriented toolpath file into layers on slicer
// layer markers. Lines before the first marker form the first layer; a file
// without markers parses as a single layer. Blank lines are dropped, comment
// and command lines are kept verbatim.
func ParseLayers(r io.Reader) ([]Layer, error) {
	var layers []Layer
	var current Layer

	flush := func() {
		if len(current) > 0 {
			layers = append(layers, current)
			current = nil
		}
	}

	scan := bufio.NewScanner(r)
	for scan.Scan() {
		line := strings.TrimRight(scan.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(line)), layerMarker) {
			flush()
		}
		current = append(current, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read toolpath: %w", err)
	}
	flush()

	if len(layers) == 0 {
		return nil, fmt.Errorf("toolpath contains no command lines")
	}
	return layers, nil
}
