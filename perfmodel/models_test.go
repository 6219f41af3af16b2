package perfmodel

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spmvbench/spmvbench/comm/local"
	"github.com/spmvbench/spmvbench/sparse"
)

func TestEngineConfigErrors(t *testing.T) {
	c := local.NewGroup(1)[0]
	_, err := NewEngine(c, 0)
	assert.Error(t, err)
	_, err = NewEngine(c, -5)
	assert.Error(t, err)
}

func TestStreamCopyAndLaunchOverhead(t *testing.T) {
	c := local.NewGroup(1)[0]
	engine, err := NewEngine(c, 20)
	require.NoError(t, err)

	secs, err := engine.StreamCopy(1 << 16)
	require.NoError(t, err)
	assert.Greater(t, secs, 0.0)

	// Zero-byte transfer is legal and cheap.
	zero, err := engine.StreamCopy(0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, zero, 0.0)

	lat, err := engine.LaunchOverhead()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lat, 0.0)

	_, err = engine.StreamCopy(-1)
	assert.Error(t, err)
}

func TestCalibrateSingleRank(t *testing.T) {
	c := local.NewGroup(1)[0]
	m := New(c)

	_, err := m.LaunchLatencyLookup()
	require.ErrorIs(t, err, ErrNotCalibrated)

	require.NoError(t, m.StreamVectorMakeTable(10, 12))
	require.NoError(t, m.PingpongMakeTable(10, 8))

	lat, err := m.LaunchLatencyLookup()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lat, 0.0)

	raw, err := m.StreamVectorLookup(1 << 10)
	require.NoError(t, err)
	corrected, err := m.LatencyCorrectedStreamVectorLookup(1 << 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, raw, corrected, "correction subtracts a latency floor")

	_, err = m.PingpongLookup(256)
	require.NoError(t, err)

	// Halo table not built: lookups must say so.
	_, err = m.HalopongLookup(256)
	require.ErrorIs(t, err, ErrNotCalibrated)
	assert.False(t, m.HalopongBuilt())
}

func TestCalibrateGroup(t *testing.T) {
	const n = 4
	group := local.NewGroup(n)
	var wg sync.WaitGroup
	for _, e := range group {
		wg.Add(1)
		go func(e *local.Endpoint) {
			defer wg.Done()
			a, err := sparse.Tridiagonal[float64](e, 64)
			require.NoError(t, err)

			m := New(e)
			require.NoError(t, m.StreamVectorMakeTable(5, 8))
			require.NoError(t, m.PingpongMakeTable(5, 6))
			require.NoError(t, m.HalopongMakeTable(5, 6, a.Plan))

			assert.True(t, m.HalopongBuilt())
			secs, err := m.HalopongLookup(64)
			require.NoError(t, err)
			assert.Greater(t, secs, 0.0)
		}(e)
	}
	wg.Wait()
}

func TestNewFromSamples(t *testing.T) {
	stream := []Sample{{1, 2e-6}, {2, 3e-6}, {4, 5e-6}}
	m := NewFromSamples(1e-6, stream, nil, nil)

	lat, err := m.LaunchLatencyLookup()
	require.NoError(t, err)
	assert.Equal(t, 1e-6, lat)

	raw, err := m.StreamVectorLookup(2)
	require.NoError(t, err)
	assert.Equal(t, 3e-6, raw)

	corrected, err := m.LatencyCorrectedStreamVectorLookup(2)
	require.NoError(t, err)
	assert.InDelta(t, 2e-6, corrected, 1e-18)

	_, err = m.PingpongLookup(1)
	assert.ErrorIs(t, err, ErrNotCalibrated)
}

func TestWriteTables(t *testing.T) {
	m := NewFromSamples(1e-6, []Sample{{1, 2e-6}, {2, 3e-6}}, nil, nil)
	var sb strings.Builder
	m.WriteTables(&sb)
	out := sb.String()
	assert.Contains(t, out, "launch latency")
	assert.Contains(t, out, "stream table")
	assert.NotContains(t, out, "pingpong table")
}
