package perfmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearMeasure fakes a bandwidth-bound primitive: 1ns per byte plus a 1us
// floor, noise-free.
func linearMeasure(sizeBytes int) (float64, error) {
	return 1e-6 + float64(sizeBytes)*1e-9, nil
}

func TestLookupBeforeBuild(t *testing.T) {
	var table Table
	_, err := table.Lookup(1024)
	require.ErrorIs(t, err, ErrNotCalibrated)
	assert.False(t, table.Built())
}

func TestBuildAndBucketBoundaries(t *testing.T) {
	var table Table
	require.NoError(t, table.Build(10, linearMeasure, nil))
	require.True(t, table.Built())
	require.Len(t, table.Samples(), 11)

	// An exact bucket size must return the calibrated sample, no
	// interpolation error.
	for i, s := range table.Samples() {
		got, err := table.Lookup(s.SizeBytes)
		require.NoError(t, err)
		assert.Equal(t, s.Seconds, got, "bucket %d", i)
	}
}

func TestLookupInterpolates(t *testing.T) {
	var table Table
	require.NoError(t, table.Build(10, linearMeasure, nil))

	// 3 bytes sits between buckets 1 (2B) and 2 (4B) on the log2 axis.
	got, err := table.Lookup(3)
	require.NoError(t, err)
	lo, _ := table.Lookup(2)
	hi, _ := table.Lookup(4)
	assert.Greater(t, got, lo)
	assert.Less(t, got, hi)
}

func TestLookupMonotone(t *testing.T) {
	var table Table
	require.NoError(t, table.Build(12, linearMeasure, nil))
	prev := -1.0
	for size := 1; size <= 1<<12; size *= 3 {
		got, err := table.Lookup(size)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev, "size %d", size)
		prev = got
	}
}

func TestLookupClamps(t *testing.T) {
	var table Table
	require.NoError(t, table.Build(4, linearMeasure, nil))

	smallest, _ := table.Lookup(1)
	largest, _ := table.Lookup(16)

	below, err := table.Lookup(1) // already at the floor
	require.NoError(t, err)
	assert.Equal(t, smallest, below)

	above, err := table.Lookup(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, largest, above)

	zero, err := table.Lookup(0)
	require.NoError(t, err)
	assert.Zero(t, zero)
}

func TestBuildRejectsNegativeMaxLog2(t *testing.T) {
	var table Table
	assert.Error(t, table.Build(-1, linearMeasure, nil))
}

func TestBuildProgressCallback(t *testing.T) {
	var table Table
	var calls int
	require.NoError(t, table.Build(5, linearMeasure, func(bucket, total int) {
		calls++
		assert.Equal(t, 6, total)
	}))
	assert.Equal(t, 6, calls)
}
