package sparse

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/spmvbench/spmvbench/comm"
)

// View is a non-owning window over vector storage.
//
// Backends receive the same underlying x and y buffers through Views and may
// read or overwrite them during a trial, but must not retain them past the
// call or assume exclusive ownership: the harness deliberately aliases one x
// and one y across every backend so all of them see realistic memory-bandwidth
// conditions. Anything that needs a stable copy (norm baselines, correctness
// snapshots) must clone before the next Apply.
type View[T Scalar] []T

// Fill sets every entry to v.
func (v View[T]) Fill(val T) {
	for i := range v {
		v[i] = val
	}
}

// FillNaN poisons every entry, so stale reads of y surface as NaNs in the
// correctness check.
func (v View[T]) FillNaN() {
	nan := T(math.NaN())
	for i := range v {
		v[i] = nan
	}
}

// Clone returns an owned copy of the view's contents.
func (v View[T]) Clone() View[T] {
	out := make(View[T], len(v))
	copy(out, v)
	return out
}

// Norm2 returns the global 2-norm of a distributed vector: the local sum of
// squares is reduced over the group.
func Norm2(c comm.Comm, v View[float64]) float64 {
	local := floats.Dot(v, v)
	return math.Sqrt(c.AllReduceSumFloat64(local))
}

// Norm2Diff returns the global 2-norm of a-b without modifying either view.
func Norm2Diff(c comm.Comm, a, b View[float64]) float64 {
	d := floats.Distance(a, b, 2)
	return math.Sqrt(c.AllReduceSumFloat64(d * d))
}
