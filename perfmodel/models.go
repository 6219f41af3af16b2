package perfmodel

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/spmvbench/spmvbench/comm"
	"github.com/spmvbench/spmvbench/sparse"
)

// Models aggregates the calibrated lookup tables for one process group:
// stream-vector bandwidth, its latency-corrected variant, point-to-point
// ping-pong, halo exchange, and the scalar launch-latency estimate.
//
// Make-table calls are collective and must complete on every rank before the
// first lookup; after that, all lookups are pure reads and safe for
// concurrent callers.
type Models struct {
	comm comm.Comm

	launchLatency    float64
	launchCalibrated bool

	stream          Table
	streamCorrected Table
	pingpong        Table
	halopong        Table

	// Progress, if set, is invoked during table builds, once per bucket.
	Progress func(label string, bucket, total int)
}

// New returns an uncalibrated model bound to c.
func New(c comm.Comm) *Models {
	return &Models{comm: c}
}

// NewFromSamples builds a model from previously recorded calibration data,
// bypassing measurement. Tables whose sample slice is empty stay unbuilt.
// Intended for tests and for replaying persisted calibrations.
func NewFromSamples(launchLatency float64, stream, pingpong, halopong []Sample) *Models {
	m := &Models{launchLatency: launchLatency, launchCalibrated: true}
	m.stream.SetSamples(stream)
	m.streamCorrected.SetSamples(correctedSamples(stream, launchLatency))
	m.pingpong.SetSamples(pingpong)
	m.halopong.SetSamples(halopong)
	return m
}

func (m *Models) progress(label string) func(bucket, total int) {
	if m.Progress == nil {
		return nil
	}
	return func(bucket, total int) { m.Progress(label, bucket, total) }
}

// correctedSamples subtracts the fixed dispatch overhead from raw stream
// samples, clamping at zero, so the remaining time is per-byte dominated.
// Callers of the corrected lookups add the latency back explicitly, once per
// dispatch rather than once per array.
func correctedSamples(stream []Sample, latency float64) []Sample {
	if len(stream) == 0 {
		return nil
	}
	out := make([]Sample, len(stream))
	for i, s := range stream {
		out[i] = Sample{SizeBytes: s.SizeBytes, Seconds: max(s.Seconds-latency, 0)}
	}
	return out
}

// StreamVectorMakeTable calibrates the launch latency and the stream tables
// with buckets up to 2^maxLog2 bytes, nrepeat trials per bucket.
func (m *Models) StreamVectorMakeTable(nrepeat, maxLog2 int) error {
	engine, err := NewEngine(m.comm, nrepeat)
	if err != nil {
		return err
	}
	// Launch latency first: the corrected table is derived from it.
	lat, err := engine.LaunchOverhead()
	if err != nil {
		return errors.Wrap(err, "calibrating launch latency")
	}
	m.launchLatency = lat
	m.launchCalibrated = true

	if err := m.stream.Build(maxLog2, engine.StreamCopy, m.progress("stream")); err != nil {
		return errors.Wrap(err, "building stream table")
	}
	m.streamCorrected.SetSamples(correctedSamples(m.stream.Samples(), lat))
	return nil
}

// PingpongMakeTable calibrates the point-to-point table with message sizes up
// to 2^maxLog2 bytes. Collective over the whole group.
func (m *Models) PingpongMakeTable(nrepeat, maxLog2 int) error {
	engine, err := NewEngine(m.comm, nrepeat)
	if err != nil {
		return err
	}
	return errors.Wrap(m.pingpong.Build(maxLog2, engine.PingPong, m.progress("pingpong")),
		"building pingpong table")
}

// HalopongMakeTable calibrates the neighbor-exchange table following plan's
// communication pattern, message sizes up to 2^maxLog2 bytes. Collective;
// ranks whose plan is nil still participate in the barriers and reductions.
func (m *Models) HalopongMakeTable(nrepeat, maxLog2 int, plan *sparse.ImportPlan) error {
	engine, err := NewEngine(m.comm, nrepeat)
	if err != nil {
		return err
	}
	measure := func(sizeBytes int) (float64, error) {
		return engine.HaloExchange(plan, sizeBytes)
	}
	return errors.Wrap(m.halopong.Build(maxLog2, measure, m.progress("halopong")),
		"building halopong table")
}

// LaunchLatencyLookup returns the calibrated fixed per-dispatch overhead.
func (m *Models) LaunchLatencyLookup() (float64, error) {
	if !m.launchCalibrated {
		return 0, ErrNotCalibrated
	}
	return m.launchLatency, nil
}

// StreamVectorLookup predicts the raw copy time for sizeBytes.
func (m *Models) StreamVectorLookup(sizeBytes int) (float64, error) {
	return m.stream.Lookup(sizeBytes)
}

// LatencyCorrectedStreamVectorLookup predicts the per-byte-dominated copy
// time for sizeBytes, with the dispatch overhead already subtracted.
func (m *Models) LatencyCorrectedStreamVectorLookup(sizeBytes int) (float64, error) {
	return m.streamCorrected.Lookup(sizeBytes)
}

// PingpongLookup predicts the pairwise exchange time for a message of
// sizeBytes.
func (m *Models) PingpongLookup(sizeBytes int) (float64, error) {
	return m.pingpong.Lookup(sizeBytes)
}

// HalopongLookup predicts the neighbor-exchange time for per-peer messages of
// sizeBytes.
func (m *Models) HalopongLookup(sizeBytes int) (float64, error) {
	return m.halopong.Lookup(sizeBytes)
}

// HalopongBuilt reports whether the halo table was calibrated; matrices
// without an import plan skip it.
func (m *Models) HalopongBuilt() bool { return m.halopong.Built() }

// WriteTables dumps every calibrated table to w, one line per bucket. This is
// the verbose-model report.
func (m *Models) WriteTables(w io.Writer) {
	if m.launchCalibrated {
		fmt.Fprintf(w, "launch latency: %.3e s\n", m.launchLatency)
	}
	for _, entry := range []struct {
		name  string
		table *Table
	}{
		{"stream", &m.stream},
		{"latency-corrected stream", &m.streamCorrected},
		{"pingpong", &m.pingpong},
		{"halopong", &m.halopong},
	} {
		if !entry.table.Built() {
			continue
		}
		fmt.Fprintf(w, "%s table:\n", entry.name)
		for i, s := range entry.table.Samples() {
			fmt.Fprintf(w, "  bucket %2d  %12d B  %.3e s\n", i, s.SizeBytes, s.Seconds)
		}
	}
}
