// Package sparse provides the distributed sparse-matrix and vector
// collaborators consumed by the performance model and the backend harness:
// a compressed-sparse-row local matrix, a distributed matrix with an import
// (halo exchange) plan, borrowed vector views, and a synthetic tridiagonal
// problem generator used by tests and the CLI.
package sparse

import (
	"golang.org/x/exp/constraints"
)

// Scalar is the closed set of element types the matrix containers are
// instantiated with.
type Scalar interface {
	constraints.Float
}

// ElemSize returns the in-memory size of T in bytes.
func ElemSize[T Scalar]() int {
	var z T
	switch any(z).(type) {
	case float32:
		return 4
	default:
		return 8
	}
}

// Row offsets are 8 bytes and column indices 4 bytes regardless of the scalar
// type; the cost model depends on these widths.
const (
	RowPtrSize = 8
	ColIndSize = 4
)

// CSR is a local compressed-sparse-row matrix.
type CSR[T Scalar] struct {
	NumRows, NumCols int

	// RowPtr has NumRows+1 entries; row i owns Values[RowPtr[i]:RowPtr[i+1]].
	RowPtr []int64
	ColInd []int32
	Values []T
}

// NNZ returns the number of stored entries.
func (a *CSR[T]) NNZ() int { return len(a.Values) }

// Apply computes y = alpha*A*x + beta*y over the local rows.
//
// x must have at least NumCols entries and y at least NumRows. beta == 0
// overwrites y without reading it, so y may hold NaNs between trials.
func (a *CSR[T]) Apply(alpha T, x View[T], beta T, y View[T]) {
	for i := 0; i < a.NumRows; i++ {
		var sum T
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			sum += a.Values[k] * x[a.ColInd[k]]
		}
		if beta == 0 {
			y[i] = alpha * sum
		} else {
			y[i] = alpha*sum + beta*y[i]
		}
	}
}

// ApplyRows is Apply restricted to rows [lo, hi); the parallel backend uses it
// to split row blocks across workers.
func (a *CSR[T]) ApplyRows(lo, hi int, alpha T, x View[T], beta T, y View[T]) {
	for i := lo; i < hi; i++ {
		var sum T
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			sum += a.Values[k] * x[a.ColInd[k]]
		}
		if beta == 0 {
			y[i] = alpha * sum
		} else {
			y[i] = alpha*sum + beta*y[i]
		}
	}
}
