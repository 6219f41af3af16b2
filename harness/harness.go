package harness

import (
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/spmvbench/spmvbench/backends"
	"github.com/spmvbench/spmvbench/comm"
	"github.com/spmvbench/spmvbench/sparse"
)

// Config tunes a harness run.
type Config struct {
	// CheckNorms compares every trial's output against the reference
	// baseline and records a Divergence when the relative error exceeds
	// Tolerance.
	CheckNorms bool

	// Tolerance is the relative 2-norm error allowed before a trial is
	// flagged as divergent. Zero selects DefaultTolerance.
	Tolerance float64

	// Seed seeds the trial-order shuffle on rank 0. Zero seeds from the
	// clock, which is what benchmark runs want; tests pass a fixed seed.
	Seed int64
}

// DefaultTolerance is the relative error bound used when Config.Tolerance is
// unset. Loose enough for reduction-order differences between kernels,
// tight enough to catch a wrong answer.
const DefaultTolerance = 1e-10

// Divergence records one trial whose output disagreed with the baseline.
type Divergence struct {
	Backend      string
	Trial        int
	ErrNorm      float64 // ||y - baseline||_2 across the group
	BaselineNorm float64
}

// Harness owns a shared problem and a set of constructed backends, and runs
// them in randomized order for a number of trials. All ranks of the group
// must drive their harness through the same sequence of calls.
type Harness struct {
	c      comm.Comm
	prob   backends.Problem
	timers *TimerRegistry
	cfg    Config

	names    []string
	backends []backends.Backend

	baseline     sparse.View[float64]
	baselineName string
	baselineNorm float64

	rng         *rand.Rand
	divergences []Divergence
}

// New returns a harness over prob recording into timers. timers must not be
// nil: the registry is deliberately an explicit dependency, not a global.
func New(prob backends.Problem, timers *TimerRegistry, cfg Config) *Harness {
	if timers == nil {
		panic("harness: nil TimerRegistry")
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Harness{
		c:      prob.Comm,
		prob:   prob,
		timers: timers,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Add constructs the named backend for the harness problem and enrolls it in
// the trial rotation. Unknown names panic inside backends.New; unavailable
// backends return backends.ErrNotAvailable. Every configuration error
// surfaces here, before any trial starts.
func (h *Harness) Add(name string) error {
	b, err := backends.New(name, h.prob)
	if err != nil {
		return err
	}
	h.names = append(h.names, name)
	h.backends = append(h.backends, b)
	return nil
}

// Names returns the enrolled backend names in enrollment order.
func (h *Harness) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// ComputeBaseline runs the named reference backend once and snapshots its
// output as the correctness baseline for later trials. The reference must
// already be enrolled. y is poisoned afterwards so the first trial cannot
// silently reuse the baseline values.
func (h *Harness) ComputeBaseline(reference string) error {
	idx := -1
	for i, name := range h.names {
		if name == reference {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Errorf("reference backend %q is not enrolled", reference)
	}
	b := h.backends[idx]
	h.c.Barrier()
	if err := b.Apply(1, 0); err != nil {
		return errors.WithMessagef(err, "reference backend %q failed", reference)
	}
	b.Fence()
	h.c.Barrier()
	h.baseline = h.prob.Y.Clone()
	h.baselineName = reference
	h.baselineNorm = sparse.Norm2(h.c, h.baseline)
	h.prob.Y.FillNaN()
	return nil
}

// RunTrials runs numTrials rounds over the enrolled backends. Each round
// visits every backend exactly once, in an order shuffled on rank 0 and
// broadcast to the group, so every rank executes the same sequence but no
// backend systematically enjoys a warm cache. A failing Apply is recorded
// against the backend's timer and logged; it never aborts the run.
func (h *Harness) RunTrials(numTrials int) error {
	if numTrials <= 0 {
		return errors.Errorf("numTrials must be positive, got %d", numTrials)
	}
	if len(h.backends) == 0 {
		return errors.New("no backends enrolled")
	}
	if h.cfg.CheckNorms && h.baseline == nil {
		return errors.New("CheckNorms is set but ComputeBaseline was not called")
	}
	order := make([]byte, len(h.backends))
	for trial := 0; trial < numTrials; trial++ {
		h.shuffleOrder(order)
		for _, idx := range order {
			h.runOne(trial, int(idx))
		}
	}
	return nil
}

// shuffleOrder fills order with a permutation of the backend indices, chosen
// on rank 0 and broadcast so every rank agrees.
func (h *Harness) shuffleOrder(order []byte) {
	if h.c.Rank() == 0 {
		for i := range order {
			order[i] = byte(i)
		}
		h.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	h.c.Broadcast(0, order)
}

// runOne executes one timed trial of backend idx: barrier in, apply, fence,
// barrier out, so no two backends' work ever overlaps across the group.
func (h *Harness) runOne(trial, idx int) {
	name := h.names[idx]
	b := h.backends[idx]

	h.c.Barrier()
	start := time.Now()
	err := b.Apply(1, 0)
	b.Fence()
	elapsed := time.Since(start)
	h.c.Barrier()

	if err != nil {
		h.timers.RecordFailure(name)
		klog.Warningf("backend %s failed on trial %d: %v", name, trial, err)
		return
	}
	h.timers.Record(name, elapsed)

	if h.cfg.CheckNorms && name != h.baselineName {
		h.checkAgainstBaseline(trial, name)
	}
	// Poison y between trials so a backend that writes nothing is caught by
	// the norm check instead of inheriting the previous answer.
	h.prob.Y.FillNaN()
}

func (h *Harness) checkAgainstBaseline(trial int, name string) {
	errNorm := sparse.Norm2Diff(h.c, h.prob.Y, h.baseline)
	scale := math.Max(h.baselineNorm, 1)
	if errNorm > h.cfg.Tolerance*scale || math.IsNaN(errNorm) {
		h.divergences = append(h.divergences, Divergence{
			Backend:      name,
			Trial:        trial,
			ErrNorm:      errNorm,
			BaselineNorm: h.baselineNorm,
		})
		if h.c.Rank() == 0 {
			klog.Warningf("backend %s diverged from %s on trial %d: ||diff|| = %g (baseline %g)",
				name, h.baselineName, trial, errNorm, h.baselineNorm)
		}
	}
}

// Divergences returns the trials flagged by the norm check, in occurrence
// order. Every rank sees the same list: the norms are group reductions.
func (h *Harness) Divergences() []Divergence {
	out := make([]Divergence, len(h.divergences))
	copy(out, h.divergences)
	return out
}

// Finalize releases every enrolled backend.
func (h *Harness) Finalize() {
	for _, b := range h.backends {
		b.Finalize()
	}
}
