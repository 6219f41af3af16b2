// Package perfmodel builds empirical latency/bandwidth models of the machine
// from timed micro-benchmarks: raw memory-copy bandwidth (stream), fixed
// per-dispatch overhead (launch latency), point-to-point round-trip messaging
// (ping-pong) and many-neighbor exchanges (halo-pong).
//
// Calibration is collective over a comm.Comm group and happens once per
// process; afterwards every lookup is a pure read, safe for concurrent use.
package perfmodel

import (
	"math"

	"github.com/pkg/errors"
)

// ErrNotCalibrated is returned when a table is queried before being built.
var ErrNotCalibrated = errors.New("performance model queried before calibration")

// Sample is one calibration point: the averaged elapsed time of a primitive
// at a given transfer size.
type Sample struct {
	SizeBytes int
	Seconds   float64
}

// Table stores one Sample per power-of-two bucket: bucket i holds the
// representative measurement at 2^i bytes. Built once, read-only afterwards.
type Table struct {
	samples []Sample
}

// Build populates buckets 0..maxLog2 by measuring the primitive at each
// bucket's representative size. progress, if non-nil, is called after each
// bucket.
func (t *Table) Build(maxLog2 int, measure func(sizeBytes int) (float64, error), progress func(bucket, total int)) error {
	if maxLog2 < 0 {
		return errors.Errorf("table: maxLog2 must be non-negative, got %d", maxLog2)
	}
	samples := make([]Sample, 0, maxLog2+1)
	for i := 0; i <= maxLog2; i++ {
		size := 1 << i
		secs, err := measure(size)
		if err != nil {
			return errors.Wrapf(err, "calibrating bucket %d (%d bytes)", i, size)
		}
		samples = append(samples, Sample{SizeBytes: size, Seconds: secs})
		if progress != nil {
			progress(i+1, maxLog2+1)
		}
	}
	t.samples = samples
	return nil
}

// SetSamples installs previously recorded calibration samples, bypassing
// measurement. Samples must be ordered by bucket, one per power of two
// starting at 1 byte.
func (t *Table) SetSamples(samples []Sample) {
	t.samples = samples
}

// Built reports whether the table has been calibrated.
func (t *Table) Built() bool { return len(t.samples) > 0 }

// Samples returns the calibration points. The returned slice must not be
// modified.
func (t *Table) Samples() []Sample { return t.samples }

// Lookup predicts the elapsed time for a transfer of sizeBytes by
// piecewise-linear interpolation between the two enclosing buckets on the
// (log2 size x time) plane. Sizes outside the calibrated range clamp to the
// boundary samples; a non-positive size is a zero-byte transfer and costs
// nothing. Querying an unbuilt table returns ErrNotCalibrated.
func (t *Table) Lookup(sizeBytes int) (float64, error) {
	if !t.Built() {
		return 0, ErrNotCalibrated
	}
	if sizeBytes <= 0 {
		return 0, nil
	}
	f := math.Log2(float64(sizeBytes))
	last := len(t.samples) - 1
	if f <= 0 {
		return t.samples[0].Seconds, nil
	}
	if f >= float64(last) {
		return t.samples[last].Seconds, nil
	}
	lo := int(math.Floor(f))
	frac := f - float64(lo)
	return t.samples[lo].Seconds*(1-frac) + t.samples[lo+1].Seconds*frac, nil
}
