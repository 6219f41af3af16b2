// Package parallel implements an SpMV backend that splits the local row
// range into blocks and runs them on a bounded worker pool. Output rows are
// disjoint per block, so workers never race on y.
package parallel

import (
	"sync"

	"github.com/spmvbench/spmvbench/backends"
)

// BackendName is the registry name of this backend.
const BackendName = "parallel"

// rowsPerBlock is the granularity of work handed to the pool; small enough
// to balance uneven rows, large enough to amortize scheduling.
const rowsPerBlock = 2048

func init() {
	backends.Register(BackendName, New)
}

// New constructs a parallel backend for p.
func New(p backends.Problem) (backends.Backend, error) {
	return &Backend{p: p, pool: newPool()}, nil
}

// Backend implements backends.Backend.
type Backend struct {
	p    backends.Problem
	pool *pool
}

var _ backends.Backend = (*Backend)(nil)

// Name returns the registry name.
func (b *Backend) Name() string { return BackendName }

// Description is a longer description for pretty-printing.
func (b *Backend) Description() string {
	return "row-blocked CSR kernel on a worker pool"
}

// SetMaxParallelism bounds the number of concurrent row blocks. Only call
// before the first Apply.
func (b *Backend) SetMaxParallelism(n int) {
	b.pool.setMaxParallelism(n)
}

// Apply computes y = alpha*A*x + beta*y, one row block per pool task.
func (b *Backend) Apply(alpha, beta float64) error {
	if err := b.p.A.Import(b.p.X); err != nil {
		return err
	}
	local := &b.p.A.Local
	var wg sync.WaitGroup
	for lo := 0; lo < local.NumRows; lo += rowsPerBlock {
		hi := min(lo+rowsPerBlock, local.NumRows)
		wg.Add(1)
		b.pool.waitToStart(func() {
			defer wg.Done()
			local.ApplyRows(lo, hi, alpha, b.p.X, beta, b.p.Y)
		})
	}
	wg.Wait()
	return nil
}

// Fence is a no-op: Apply already joins its workers.
func (b *Backend) Fence() {}

// Finalize releases nothing: the backend only borrows the problem's views.
func (b *Backend) Finalize() {}
