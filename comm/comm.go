// Package comm defines the process-group abstraction the benchmarking and
// performance-modeling layers run on top of.
//
// A Comm is one endpoint of a fixed-size group of cooperating processes.
// The interface mirrors the small subset of collective and point-to-point
// operations the matvec driver actually needs: barriers, broadcasts, max/sum
// reductions and a blocking pairwise exchange. Implementations decide what a
// "process" is; comm/local runs every rank as a goroutine inside one OS
// process, which is what the tests and the CLI use.
package comm

// Comm is one rank's endpoint into a process group of fixed size.
//
// All collective calls (Barrier, Broadcast, AllReduce*) must be entered by
// every rank of the group; entering them from a subset of ranks deadlocks,
// same as their MPI counterparts.
type Comm interface {
	// Rank returns this endpoint's rank, in [0, Size).
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Barrier blocks until every rank of the group has entered the barrier.
	Barrier()

	// Broadcast copies buf from the root rank to every other rank's buf.
	// All buffers must have the same length.
	Broadcast(root int, buf []byte)

	// AllReduceMaxInt returns the maximum of v across all ranks.
	AllReduceMaxInt(v int) int

	// AllReduceMaxFloat64 returns the maximum of v across all ranks.
	AllReduceMaxFloat64(v float64) float64

	// AllReduceSumFloat64 returns the sum of v across all ranks.
	AllReduceSumFloat64(v float64) float64

	// SendRecv exchanges messages with peer: send is delivered to peer and
	// recv is filled with peer's message. Both sides must call SendRecv with
	// matching buffer lengths. peer == Rank() copies send into recv locally.
	SendRecv(peer int, send, recv []byte)
}
