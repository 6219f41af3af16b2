package costmodel

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spmvbench/spmvbench/comm/local"
	"github.com/spmvbench/spmvbench/perfmodel"
	"github.com/spmvbench/spmvbench/sparse"
)

// syntheticSamples builds noise-free calibration tables: base seconds plus
// perByte seconds per byte, buckets up to 2^maxLog2.
func syntheticSamples(base, perByte float64, maxLog2 int) []perfmodel.Sample {
	samples := make([]perfmodel.Sample, 0, maxLog2+1)
	for i := 0; i <= maxLog2; i++ {
		size := 1 << i
		samples = append(samples, perfmodel.Sample{SizeBytes: size, Seconds: base + perByte*float64(size)})
	}
	return samples
}

func testModels() *perfmodel.Models {
	const latency = 1e-6
	return perfmodel.NewFromSamples(latency,
		syntheticSamples(latency, 1e-9, 30),
		syntheticSamples(5e-6, 2e-9, 30),
		syntheticSamples(8e-6, 2e-9, 30),
	)
}

func TestEstimateLocalMatrix(t *testing.T) {
	c := local.NewGroup(1)[0]
	m := testModels()
	a, err := sparse.Tridiagonal[float64](c, 100)
	require.NoError(t, err)
	require.Nil(t, a.Plan)

	b, err := Estimate(c, m, a)
	require.NoError(t, err)

	assert.False(t, b.HasPlan)
	assert.Zero(t, b.PackInPlace)
	assert.Zero(t, b.PackOutOfPlace)
	assert.Zero(t, b.CommPing)
	assert.Zero(t, b.CommHalo)

	assert.Greater(t, b.LocalComposite, 0.0)
	assert.Greater(t, b.LocalAllAtOnce, 0.0)
	assert.Greater(t, b.LocalComposite, b.LaunchLatency)

	nnz := a.Local.NNZ()
	assert.Equal(t, int64(101*sparse.RowPtrSize), b.RowPtr.Bytes)
	assert.Equal(t, int64(nnz*sparse.ColIndSize), b.ColInd.Bytes)
	assert.Equal(t, int64(nnz*8), b.Values.Bytes)
	assert.Equal(t, int64(100*8), b.X.Bytes)
	assert.Equal(t, int64(100*8), b.Y.Bytes)
	assert.Equal(t, b.RowPtr.Bytes+b.ColInd.Bytes+b.Values.Bytes+b.X.Bytes+b.Y.Bytes, b.All.Bytes)

	for _, cost := range []ArrayCost{b.RowPtr, b.ColInd, b.Values, b.X, b.Y, b.All} {
		assert.Greater(t, cost.Seconds, 0.0)
		assert.Greater(t, cost.GBPerSec, 0.0)
		assert.False(t, math.IsNaN(cost.GBPerSec))
	}
}

func TestEstimateEmptyPartition(t *testing.T) {
	c := local.NewGroup(1)[0]
	m := testModels()
	a := &sparse.Matrix[float64]{Comm: c}
	a.Local = sparse.CSR[float64]{NumRows: 0, NumCols: 0, RowPtr: []int64{0}}

	b, err := Estimate(c, m, a)
	require.NoError(t, err)

	assert.Zero(t, b.LocalComposite)
	assert.Zero(t, b.LocalAllAtOnce)
	assert.Zero(t, b.PackInPlace)
	assert.Zero(t, b.PackOutOfPlace)
	assert.Zero(t, b.CommPing)
	assert.Zero(t, b.CommHalo)
	for _, cost := range []ArrayCost{b.RowPtr, b.ColInd, b.Values, b.X, b.Y, b.All} {
		assert.Zero(t, cost.Bytes)
		assert.Zero(t, cost.Seconds)
		assert.Zero(t, cost.GBPerSec)
		assert.False(t, math.IsNaN(cost.GBPerSec))
	}
}

func TestEstimateRequiresCalibration(t *testing.T) {
	c := local.NewGroup(1)[0]
	m := perfmodel.New(c)
	a, err := sparse.Tridiagonal[float64](c, 10)
	require.NoError(t, err)

	_, err = Estimate(c, m, a)
	assert.ErrorIs(t, err, perfmodel.ErrNotCalibrated)
}

func TestEstimateDistributed(t *testing.T) {
	const n = 4
	group := local.NewGroup(n)
	var wg sync.WaitGroup
	for _, e := range group {
		wg.Add(1)
		go func(e *local.Endpoint) {
			defer wg.Done()
			a, err := sparse.Tridiagonal[float64](e, 1000)
			require.NoError(t, err)
			require.NotNil(t, a.Plan)

			m := testModels()
			b, err := Estimate(e, m, a)
			require.NoError(t, err)

			assert.True(t, b.HasPlan)
			// Sames pack two scalar moves; interior ranks also export and
			// receive, so both staging variants carry cost.
			assert.Greater(t, b.PackOutOfPlace, b.PackInPlace)
			assert.Greater(t, b.PackInPlace, 0.0)
			assert.Greater(t, b.CommPing, 0.0)
			assert.Greater(t, b.CommHalo, 0.0)

			// Group-averaged local costs agree across ranks.
			first := e.AllReduceMaxFloat64(b.LocalComposite)
			assert.InDelta(t, first, b.LocalComposite, 1e-15)
		}(e)
	}
	wg.Wait()
}

func TestEstimateScalarWidth(t *testing.T) {
	m := testModels()

	c := local.NewGroup(1)[0]
	a32, err := sparse.Tridiagonal[float32](c, 100)
	require.NoError(t, err)
	b32, err := Estimate(c, m, a32)
	require.NoError(t, err)

	nnz := a32.Local.NNZ()
	assert.Equal(t, int64(nnz*4), b32.Values.Bytes)
	assert.Equal(t, int64(100*4), b32.X.Bytes)
	assert.Equal(t, int64(101*sparse.RowPtrSize), b32.RowPtr.Bytes)

	// The remote terms must follow the 4-byte element size too.
	const n = 4
	group := local.NewGroup(n)
	var wg sync.WaitGroup
	for _, e := range group {
		wg.Add(1)
		go func(e *local.Endpoint) {
			defer wg.Done()
			a, err := sparse.Tridiagonal[float32](e, 1000)
			require.NoError(t, err)
			b, err := Estimate(e, testModels(), a)
			require.NoError(t, err)
			assert.True(t, b.HasPlan)
			assert.Greater(t, b.PackInPlace, 0.0)
			assert.Greater(t, b.CommPing, 0.0)
		}(e)
	}
	wg.Wait()
}

func TestCalibrationBuckets(t *testing.T) {
	c := local.NewGroup(1)[0]
	a, err := sparse.Tridiagonal[float64](c, 100)
	require.NoError(t, err)

	// 101*8 rowptr + 298*(4+8) indices and values + 100*8 x + 100*8 y
	// = 5984 bytes, so the stream table needs ceil(log2) = 13 plus headroom.
	streamLog2, msgLog2 := CalibrationBuckets(c, a)
	assert.Equal(t, 14, streamLog2)
	assert.Equal(t, 1, msgLog2, "no plan, no messages")

	const n = 4
	group := local.NewGroup(n)
	var wg sync.WaitGroup
	for _, e := range group {
		wg.Add(1)
		go func(e *local.Endpoint) {
			defer wg.Done()
			a, err := sparse.Tridiagonal[float64](e, 1000)
			require.NoError(t, err)

			streamLog2, msgLog2 := CalibrationBuckets(e, a)
			// One scalar per neighbor message: 8 bytes, plus headroom.
			assert.Equal(t, 4, msgLog2)

			// Max-reduced, so every rank sizes its tables identically.
			assert.Equal(t, e.AllReduceMaxInt(streamLog2), streamLog2)
			assert.Equal(t, e.AllReduceMaxInt(msgLog2), msgLog2)
		}(e)
	}
	wg.Wait()
}

func TestCeilLog2(t *testing.T) {
	assert.Equal(t, 0, ceilLog2(0))
	assert.Equal(t, 0, ceilLog2(1))
	assert.Equal(t, 1, ceilLog2(2))
	assert.Equal(t, 2, ceilLog2(3))
	assert.Equal(t, 3, ceilLog2(8))
	assert.Equal(t, 4, ceilLog2(9))
	assert.Equal(t, 13, ceilLog2(5984))
}

func TestScenariosOrderAndComposition(t *testing.T) {
	b := &Breakdown{
		LocalComposite: 10,
		LocalAllAtOnce: 7,
		PackInPlace:    1,
		PackOutOfPlace: 2,
		CommPing:       3,
		CommHalo:       4,
	}
	scenarios := b.Scenarios()
	require.Len(t, scenarios, 10)

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"Comp", "Comp+ping+inplace", "Comp+ping+ooplace", "Comp+halo+inplace", "Comp+halo+ooplace",
		"All", "All+ping+inplace", "All+ping+ooplace", "All+halo+inplace", "All+halo+ooplace",
	}, names)

	assert.Equal(t, 10.0, scenarios[0].Seconds)
	assert.Equal(t, 14.0, scenarios[1].Seconds) // Comp + ping + in-place
	assert.Equal(t, 15.0, scenarios[2].Seconds)
	assert.Equal(t, 15.0, scenarios[3].Seconds)
	assert.Equal(t, 16.0, scenarios[4].Seconds)
	assert.Equal(t, 7.0, scenarios[5].Seconds)
	assert.Equal(t, 11.0, scenarios[6].Seconds)
}
