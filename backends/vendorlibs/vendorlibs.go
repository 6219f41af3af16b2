// Package vendorlibs registers the vendor sparse-library backend slots.
//
// A pure-Go build has neither MKL nor cuSPARSE linked in, so both slots
// register as unavailable: they stay visible in the registry and requesting
// one yields backends.ErrNotAvailable with the reason, instead of an unknown
// name error. A cgo-enabled build would register real constructors here.
package vendorlibs

import (
	"github.com/spmvbench/spmvbench/backends"
)

func init() {
	backends.RegisterUnavailable("mkl", "MKL sparse library not linked into this build")
	backends.RegisterUnavailable("cusparse", "cuSPARSE requires a CUDA device build")
}
