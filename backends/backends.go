// Package backends defines the uniform contract every interchangeable SpMV
// implementation is dispatched through, and the name->constructor registry
// the harness builds its experiment list from.
//
// A backend is constructed once per problem from the shared matrix and
// vector views, then applied many times as y = alpha*A*x + beta*y. Backends
// alias the problem's buffers rather than owning copies; see sparse.View for
// the sharing contract.
//
// Availability is a runtime property: a backend that cannot run in this
// build or configuration registers as unavailable and New returns
// ErrNotAvailable, so the driver can log and disable it instead of failing
// the build. Asking for a name that was never registered is a configuration
// error and panics with a diagnostic.
package backends

import (
	"sort"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/spmvbench/spmvbench/comm"
	"github.com/spmvbench/spmvbench/sparse"
)

// Problem bundles the shared operands of one benchmarking run. Every backend
// built from the same Problem aliases the same x and y storage.
type Problem struct {
	Comm comm.Comm
	A    *sparse.Matrix[float64]
	X    sparse.View[float64]
	Y    sparse.View[float64]
}

// Backend is one SpMV implementation.
type Backend interface {
	// Name returns the short registry name, e.g. "native".
	Name() string

	// Description is a longer description for pretty-printing.
	Description() string

	// Apply computes y = alpha*A*x + beta*y over the problem's shared
	// views, including the halo import when the matrix is distributed.
	Apply(alpha, beta float64) error

	// Fence blocks until all asynchronous work issued by Apply has
	// completed. Synchronous backends return immediately.
	Fence()

	// Finalize releases backend-owned resources.
	Finalize()
}

// Constructor builds a backend for a problem.
type Constructor func(p Problem) (Backend, error)

// ErrNotAvailable is returned by New for backends registered as unavailable
// in this build or configuration.
var ErrNotAvailable = errors.New("backend not available")

type registration struct {
	constructor Constructor
	reason      string // non-empty when unavailable
}

var registered = make(map[string]registration)

// Register adds an available backend under name. Call from the backend
// package's init.
func Register(name string, constructor Constructor) {
	registered[name] = registration{constructor: constructor}
}

// RegisterUnavailable records that a backend exists but cannot run here,
// with the reason reported to anyone requesting it. This replaces build-time
// selection: vendor-library slots stay visible in the registry either way.
func RegisterUnavailable(name, reason string) {
	if reason == "" {
		reason = "not built in"
	}
	registered[name] = registration{reason: reason}
}

// Names returns all registered backend names, available or not, sorted.
func Names() []string {
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available reports whether name is registered and can be constructed.
func Available(name string) bool {
	r, found := registered[name]
	return found && r.constructor != nil
}

// UnavailableReason returns why name cannot run, or "" if it can or is
// unknown.
func UnavailableReason(name string) string {
	return registered[name].reason
}

// New constructs the named backend for p.
//
// An unknown name is a configuration error and panics; a known but
// unavailable backend returns ErrNotAvailable wrapped with the reason.
func New(name string, p Problem) (Backend, error) {
	r, found := registered[name]
	if !found {
		exceptions.Panicf("unknown backend %q; registered backends: %v", name, Names())
	}
	if r.constructor == nil {
		return nil, errors.Wrap(ErrNotAvailable, r.reason)
	}
	return r.constructor(p)
}
