package sparse

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/spmvbench/spmvbench/comm"
)

// ImportPlan describes how the input-vector entries of a distributed matvec
// map onto the owning ranks. Local column indices fall into four disjoint
// categories relative to the domain decomposition:
//
//   - same: entries whose local position is identical on both sides and that
//     only need copying when staging out-of-place;
//   - permute: locally owned entries that change position;
//   - export: entries this rank packs and sends to neighbors;
//   - remote: entries received from neighbors and unpacked into the tail of
//     the local column space.
//
// Export and remote IDs are grouped by peer, in SendPeers / RecvPeers order,
// with SendLengths / RecvLengths scalars per peer. Plans are symmetric:
// SendPeers and RecvPeers name the same neighbors in the same order (a peer
// with nothing to send in one direction still appears, with length zero).
type ImportPlan struct {
	NumSame int

	PermuteFrom, PermuteTo []int32

	// ExportIDs are local x positions packed for sending, grouped by peer.
	ExportIDs []int32
	// RemoteIDs are local x positions filled from received messages,
	// grouped by peer.
	RemoteIDs []int32

	SendPeers   []int
	SendLengths []int
	RecvPeers   []int
	RecvLengths []int
}

// NumPermute returns the number of permuted entries.
func (p *ImportPlan) NumPermute() int { return len(p.PermuteFrom) }

// NumExport returns the number of entries sent to neighbors.
func (p *ImportPlan) NumExport() int { return len(p.ExportIDs) }

// NumRemote returns the number of entries received from neighbors.
func (p *ImportPlan) NumRemote() int { return len(p.RemoteIDs) }

// MaxMessageScalars returns the largest per-peer message length, in scalars,
// over both directions. Used to size the halo-exchange calibration table.
func (p *ImportPlan) MaxMessageScalars() int {
	m := 0
	for _, l := range p.SendLengths {
		m = max(m, l)
	}
	for _, l := range p.RecvLengths {
		m = max(m, l)
	}
	return m
}

// Matrix is a distributed sparse matrix: a local CSR block plus the import
// plan that fetches off-rank input-vector entries. Plan is nil when the
// matrix has no off-rank columns (single rank, or an already-local problem);
// every communication-dependent operation then degenerates to a no-op.
type Matrix[T Scalar] struct {
	Comm  comm.Comm
	Local CSR[T]

	GlobalRows int64
	// RowOffset is the global index of local row 0.
	RowOffset int64

	Plan *ImportPlan
}

// Import fills the remote slots of x with the values owned by neighboring
// ranks, per the plan. Collective: every rank with a plan must call it.
// A nil plan returns immediately.
func (a *Matrix[T]) Import(x View[T]) error {
	p := a.Plan
	if p == nil {
		return nil
	}
	if len(p.SendPeers) != len(p.SendLengths) || len(p.RecvPeers) != len(p.RecvLengths) {
		return errors.Errorf("import plan peer/length lists disagree: %d sends/%d lengths, %d recvs/%d lengths",
			len(p.SendPeers), len(p.SendLengths), len(p.RecvPeers), len(p.RecvLengths))
	}

	// Apply permutes first: locally owned entries that change position.
	for i, from := range p.PermuteFrom {
		x[p.PermuteTo[i]] = x[from]
	}

	// One exchange per peer. Sends are posted before receives inside
	// SendRecv, so walking peers in plan order cannot deadlock as long as
	// neighboring plans are symmetric.
	sendOff, recvOff := 0, 0
	for i, peer := range p.SendPeers {
		ns, nr := p.SendLengths[i], p.RecvLengths[i]
		sendBuf := make([]byte, ns*scalarWireSize)
		for j := 0; j < ns; j++ {
			putScalar(sendBuf[j*scalarWireSize:], x[p.ExportIDs[sendOff+j]])
		}
		recvBuf := make([]byte, nr*scalarWireSize)
		a.Comm.SendRecv(peer, sendBuf, recvBuf)
		for j := 0; j < nr; j++ {
			x[p.RemoteIDs[recvOff+j]] = getScalar[T](recvBuf[j*scalarWireSize:])
		}
		sendOff += ns
		recvOff += nr
	}
	return nil
}

// Scalars cross the wire as float64 bits; lossless for both instantiations.
const scalarWireSize = 8

func putScalar[T Scalar](b []byte, v T) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(float64(v)))
}

func getScalar[T Scalar](b []byte) T {
	return T(math.Float64frombits(binary.LittleEndian.Uint64(b)))
}
