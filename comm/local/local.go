// Package local implements comm.Comm for a group of ranks living in one OS
// process, each rank driven by its own goroutine.
//
// Collectives are built on a reusable generation barrier; point-to-point
// exchanges go through per-pair buffered channel mailboxes. The group is
// exactly as synchronous as an MPI communicator: a collective entered by only
// a subset of ranks blocks forever, which is intentional (the benchmark
// harness depends on barrier semantics to keep trials from overlapping).
package local

import (
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/spmvbench/spmvbench/comm"
)

type group struct {
	size int

	mu         sync.Mutex
	cond       *sync.Cond
	arrived    int
	generation int

	// Scratch slots for collectives, one per rank. Written before the entry
	// barrier of a collective, read between entry and exit barriers.
	floatSlots []float64
	intSlots   []int
	bcastBuf   []byte

	// mail[from][to] carries one in-flight message per ordered pair.
	mail [][]chan []byte
}

// Endpoint is one rank's view of a local group. It implements comm.Comm.
type Endpoint struct {
	g    *group
	rank int
}

var _ comm.Comm = (*Endpoint)(nil)

// NewGroup creates a process group with n ranks and returns the n connected
// endpoints. Each endpoint must be used from a single goroutine.
func NewGroup(n int) []*Endpoint {
	if n <= 0 {
		exceptions.Panicf("local.NewGroup: group size must be positive, got %d", n)
	}
	g := &group{
		size:       n,
		floatSlots: make([]float64, n),
		intSlots:   make([]int, n),
		mail:       make([][]chan []byte, n),
	}
	g.cond = sync.NewCond(&g.mu)
	for from := range g.mail {
		g.mail[from] = make([]chan []byte, n)
		for to := range g.mail[from] {
			g.mail[from][to] = make(chan []byte, 1)
		}
	}
	endpoints := make([]*Endpoint, n)
	for rank := range endpoints {
		endpoints[rank] = &Endpoint{g: g, rank: rank}
	}
	return endpoints
}

// Rank returns this endpoint's rank.
func (e *Endpoint) Rank() int { return e.rank }

// Size returns the number of ranks in the group.
func (e *Endpoint) Size() int { return e.g.size }

// Barrier blocks until all ranks of the group have entered.
func (e *Endpoint) Barrier() {
	g := e.g
	if g.size == 1 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	gen := g.generation
	g.arrived++
	if g.arrived == g.size {
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
		return
	}
	for gen == g.generation {
		g.cond.Wait()
	}
}

// Broadcast copies buf from root to every rank's buf.
func (e *Endpoint) Broadcast(root int, buf []byte) {
	g := e.g
	if root < 0 || root >= g.size {
		exceptions.Panicf("local.Broadcast: root %d out of range [0, %d)", root, g.size)
	}
	if g.size == 1 {
		return
	}
	if e.rank == root {
		g.bcastBuf = buf
	}
	e.Barrier()
	if e.rank != root {
		copy(buf, g.bcastBuf)
	}
	e.Barrier()
}

// AllReduceMaxInt returns the maximum of v across all ranks.
func (e *Endpoint) AllReduceMaxInt(v int) int {
	g := e.g
	if g.size == 1 {
		return v
	}
	g.intSlots[e.rank] = v
	e.Barrier()
	result := g.intSlots[0]
	for _, s := range g.intSlots[1:] {
		result = max(result, s)
	}
	e.Barrier()
	return result
}

// AllReduceMaxFloat64 returns the maximum of v across all ranks.
func (e *Endpoint) AllReduceMaxFloat64(v float64) float64 {
	g := e.g
	if g.size == 1 {
		return v
	}
	g.floatSlots[e.rank] = v
	e.Barrier()
	result := g.floatSlots[0]
	for _, s := range g.floatSlots[1:] {
		result = max(result, s)
	}
	e.Barrier()
	return result
}

// AllReduceSumFloat64 returns the sum of v across all ranks.
func (e *Endpoint) AllReduceSumFloat64(v float64) float64 {
	g := e.g
	if g.size == 1 {
		return v
	}
	g.floatSlots[e.rank] = v
	e.Barrier()
	var result float64
	for _, s := range g.floatSlots {
		result += s
	}
	e.Barrier()
	return result
}

// SendRecv exchanges messages with peer. Both sides must call it with the
// same buffer lengths; posting happens before receiving so a matched pair of
// calls cannot deadlock.
func (e *Endpoint) SendRecv(peer int, send, recv []byte) {
	g := e.g
	if peer < 0 || peer >= g.size {
		exceptions.Panicf("local.SendRecv: peer %d out of range [0, %d)", peer, g.size)
	}
	if peer == e.rank {
		copy(recv, send)
		return
	}
	g.mail[e.rank][peer] <- slices.Clone(send)
	msg := <-g.mail[peer][e.rank]
	copy(recv, msg)
}
