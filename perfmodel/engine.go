package perfmodel

import (
	"time"

	"github.com/pkg/errors"

	"github.com/spmvbench/spmvbench/comm"
	"github.com/spmvbench/spmvbench/sparse"
)

// Engine runs the timed calibration loops. Each primitive is executed nrepeat
// times back-to-back between two group barriers, so concurrent asynchronous
// work on other ranks cannot leak into the timed region, and returns the
// arithmetic mean per call. Collective primitives additionally reduce the
// per-rank averages with a max over the group: the model should reflect the
// slowest participant, which is who everyone ends up waiting for.
type Engine struct {
	comm    comm.Comm
	nrepeat int
}

// NewEngine binds an engine to a communicator. nrepeat <= 0 is a
// configuration error.
func NewEngine(c comm.Comm, nrepeat int) (*Engine, error) {
	if nrepeat <= 0 {
		return nil, errors.Errorf("engine: nrepeat must be positive, got %d", nrepeat)
	}
	return &Engine{comm: c, nrepeat: nrepeat}, nil
}

// NRepeat returns the configured number of repetitions per measurement.
func (e *Engine) NRepeat() int { return e.nrepeat }

// StreamCopy measures a raw memory copy of sizeBytes and returns the mean
// seconds per copy. Size 0 degenerates to timing the copy dispatch alone.
func (e *Engine) StreamCopy(sizeBytes int) (float64, error) {
	if sizeBytes < 0 {
		return 0, errors.Errorf("engine: negative stream size %d", sizeBytes)
	}
	words := (sizeBytes + 7) / 8
	src := make([]float64, words)
	dst := make([]float64, words)
	for i := range src {
		src[i] = float64(i)
	}

	e.comm.Barrier()
	start := time.Now()
	for r := 0; r < e.nrepeat; r++ {
		copy(dst, src)
	}
	elapsed := time.Since(start).Seconds()
	e.comm.Barrier()
	return elapsed / float64(e.nrepeat), nil
}

// launchSink defeats dead-code elimination of the no-op dispatch below.
var launchSink int64

//go:noinline
func launchNoop(arg int64) {
	launchSink += arg
}

// LaunchOverhead measures the fixed per-call cost of dispatching work,
// independent of transfer size. It is the latency floor subtracted by the
// latency-corrected stream table and added back per step by the cost
// estimator.
func (e *Engine) LaunchOverhead() (float64, error) {
	dispatch := launchNoop // indirect call, mirrors a kernel-launch path
	e.comm.Barrier()
	start := time.Now()
	for r := 0; r < e.nrepeat; r++ {
		dispatch(1)
	}
	elapsed := time.Since(start).Seconds()
	e.comm.Barrier()
	return elapsed / float64(e.nrepeat), nil
}

// PingPong measures a pairwise message exchange of sizeBytes. Ranks pair up
// as (r, r^1); with an odd group size the unpaired rank contributes zero.
// The result is the max over the group of the mean per-exchange time.
func (e *Engine) PingPong(sizeBytes int) (float64, error) {
	if sizeBytes < 0 {
		return 0, errors.Errorf("engine: negative message size %d", sizeBytes)
	}
	rank, size := e.comm.Rank(), e.comm.Size()
	peer := rank ^ 1

	var mean float64
	if size == 1 || peer < size {
		if size == 1 {
			peer = rank // self-exchange: still exercises pack+copy
		}
		send := make([]byte, sizeBytes)
		recv := make([]byte, sizeBytes)
		e.comm.Barrier()
		start := time.Now()
		for r := 0; r < e.nrepeat; r++ {
			e.comm.SendRecv(peer, send, recv)
		}
		mean = time.Since(start).Seconds() / float64(e.nrepeat)
		e.comm.Barrier()
	} else {
		// Unpaired rank: stay in lockstep with the group barriers.
		e.comm.Barrier()
		e.comm.Barrier()
	}
	return e.comm.AllReduceMaxFloat64(mean), nil
}

// HaloExchange measures one full neighbor exchange with messages of
// sizeBytes per peer, following the communication pattern of plan. Ranks
// without a plan (no off-rank columns) contribute zero. The result is the
// max over the group of the mean per-exchange time.
func (e *Engine) HaloExchange(plan *sparse.ImportPlan, sizeBytes int) (float64, error) {
	if sizeBytes < 0 {
		return 0, errors.Errorf("engine: negative message size %d", sizeBytes)
	}
	var mean float64
	if plan != nil && len(plan.SendPeers) > 0 {
		send := make([]byte, sizeBytes)
		recv := make([]byte, sizeBytes)
		e.comm.Barrier()
		start := time.Now()
		for r := 0; r < e.nrepeat; r++ {
			for _, peer := range plan.SendPeers {
				e.comm.SendRecv(peer, send, recv)
			}
		}
		mean = time.Since(start).Seconds() / float64(e.nrepeat)
		e.comm.Barrier()
	} else {
		e.comm.Barrier()
		e.comm.Barrier()
	}
	return e.comm.AllReduceMaxFloat64(mean), nil
}
