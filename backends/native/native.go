// Package native implements the reference SpMV backend: the halo import
// followed by a serial CSR row loop. Slow but dependable; the harness uses
// it to compute correctness baselines.
package native

import (
	"github.com/spmvbench/spmvbench/backends"
)

// BackendName is the registry name of this backend.
const BackendName = "native"

func init() {
	backends.Register(BackendName, New)
}

// New constructs a native backend for p.
func New(p backends.Problem) (backends.Backend, error) {
	return &Backend{p: p}, nil
}

// Backend implements backends.Backend.
type Backend struct {
	p backends.Problem
}

var _ backends.Backend = (*Backend)(nil)

// Name returns the registry name.
func (b *Backend) Name() string { return BackendName }

// Description is a longer description for pretty-printing.
func (b *Backend) Description() string {
	return "serial CSR kernel with halo import"
}

// Apply computes y = alpha*A*x + beta*y.
func (b *Backend) Apply(alpha, beta float64) error {
	if err := b.p.A.Import(b.p.X); err != nil {
		return err
	}
	b.p.A.Local.Apply(alpha, b.p.X, beta, b.p.Y)
	return nil
}

// Fence is a no-op: the kernel is synchronous.
func (b *Backend) Fence() {}

// Finalize releases nothing: the backend only borrows the problem's views.
func (b *Backend) Finalize() {}
