// Package network receives profiler frames over UDP and exposes them as a
// scanner.Source.
package network

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/arcment-data/arcweld/internal/scanner"
)

// Frame wire format (little endian):
//
//	offset 0:  magic "OXP1"
//	offset 4:  uint64 timestamp, unix nanoseconds
//	offset 12: uint32 point count N
//	offset 16: N float32 lateral positions
//	offset 16+4N: N float32 height readings
const (
	frameMagic     = "OXP1"
	frameHeaderLen = 16
)

// MaxFramePoints bounds the per-frame point count; profilers in this class
// emit at most 2048 points per profile.
const MaxFramePoints = 4096

// DecodeFrame parses one UDP payload into a profile sample.
func DecodeFrame(payload []byte) (scanner.Sample, error) {
	if len(payload) < frameHeaderLen {
		return scanner.Sample{}, fmt.Errorf("frame too short: %d bytes", len(payload))
	}
	if string(payload[:4]) != frameMagic {
		return scanner.Sample{}, fmt.Errorf("bad frame magic %q", payload[:4])
	}

	ts := binary.LittleEndian.Uint64(payload[4:12])
	count := binary.LittleEndian.Uint32(payload[12:16])
	if count > MaxFramePoints {
		return scanner.Sample{}, fmt.Errorf("frame point count %d exceeds limit %d", count, MaxFramePoints)
	}

	want := frameHeaderLen + int(count)*8
	if len(payload) < want {
		return scanner.Sample{}, fmt.Errorf("frame truncated: %d bytes, want %d for %d points",
			len(payload), want, count)
	}

	s := scanner.Sample{
		X:         make([]float64, count),
		Z:         make([]float64, count),
		Timestamp: time.Unix(0, int64(ts)),
	}
	xs := payload[frameHeaderLen:]
	zs := payload[frameHeaderLen+int(count)*4:]
	for i := 0; i < int(count); i++ {
		s.X[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(xs[i*4:])))
		s.Z[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(zs[i*4:])))
	}
	return s, nil
}

// EncodeFrame serializes a sample into the UDP wire format. Used by the
// replay tooling and by tests.
func EncodeFrame(s scanner.Sample) ([]byte, error) {
	if len(s.X) != len(s.Z) {
		return nil, fmt.Errorf("mismatched arrays: %d x values, %d z values", len(s.X), len(s.Z))
	}
	if len(s.X) > MaxFramePoints {
		return nil, fmt.Errorf("frame point count %d exceeds limit %d", len(s.X), MaxFramePoints)
	}

	buf := make([]byte, frameHeaderLen+len(s.X)*8)
	copy(buf, frameMagic)
	binary.LittleEndian.PutUint64(buf[4:], uint64(s.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(s.X)))
	xs := buf[frameHeaderLen:]
	zs := buf[frameHeaderLen+len(s.X)*4:]
	for i := range s.X {
		binary.LittleEndian.PutUint32(xs[i*4:], math.Float32bits(float32(s.X[i])))
		binary.LittleEndian.PutUint32(zs[i*4:], math.Float32bits(float32(s.Z[i])))
	}
	return buf, nil
}
