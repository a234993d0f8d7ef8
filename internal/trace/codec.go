package trace

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sbinet/npyio"
)

// ErrEmptyBuffer is returned when a stored sample buffer has no bytes.
var ErrEmptyBuffer = errors.New("empty sample buffer")

// DecodeSamples parses a NumPy .npy payload holding a one-dimensional float64
// array. float32 payloads are widened.
func DecodeSamples(payload []byte) ([]float64, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyBuffer
	}
	var out []float64
	err := npyio.Read(bytes.NewReader(payload), &out)
	if err == nil {
		return out, nil
	}
	var narrow []float32
	if err32 := npyio.Read(bytes.NewReader(payload), &narrow); err32 != nil {
		return nil, fmt.Errorf("decode npy samples: %w", err)
	}
	out = make([]float64, len(narrow))
	for i, v := range narrow {
		out[i] = float64(v)
	}
	return out, nil
}

// EncodeSamples serializes samples as a float64 .npy payload.
func EncodeSamples(samples []float64) ([]byte, error) {
	if samples == nil {
		samples = []float64{}
	}
	buf := &bytes.Buffer{}
	if err := npyio.Write(buf, samples); err != nil {
		return nil, fmt.Errorf("encode npy samples: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses payload into a trace at the given sample rate.
func Decode(payload []byte, sampleRate float64) (Trace, error) {
	samples, err := DecodeSamples(payload)
	if err != nil {
		return Trace{}, err
	}
	return New(samples, sampleRate)
}
