// Package costmodel predicts the minimum wall-clock time of a distributed
// sparse matrix-vector multiply from calibrated machine models and matrix
// metadata, without performing any communication.
//
// The estimate decomposes into a local part (streaming the CSR arrays and the
// vectors through memory) and a remote part (packing/unpacking the import
// plan's categories plus the neighbor messaging itself), combined into ten
// named scenarios that bracket how an implementation might stage its halo
// exchange.
package costmodel

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/spmvbench/spmvbench/comm"
	"github.com/spmvbench/spmvbench/perfmodel"
	"github.com/spmvbench/spmvbench/sparse"
)

// GB converts bytes to gigabytes for bandwidth reporting.
const GB = 1024.0 * 1024.0 * 1024.0

// ArrayCost is the predicted streaming cost of one CSR/vector array.
type ArrayCost struct {
	Bytes    int64
	Seconds  float64
	GBPerSec float64
}

// Breakdown is the full cost decomposition for one matrix. All times are
// seconds, averaged over the process group.
type Breakdown struct {
	RowPtr, ColInd, Values, X, Y ArrayCost

	// All is the single-block variant: every byte of the operands streamed
	// once, with no per-array dispatch.
	All ArrayCost

	LaunchLatency float64

	// LocalComposite = launch latency + sum of per-array predictions.
	LocalComposite float64
	// LocalAllAtOnce = raw prediction for the combined byte total.
	LocalAllAtOnce float64

	PackInPlace    float64
	PackOutOfPlace float64

	CommPing float64
	CommHalo float64

	// HasPlan records whether the matrix had an import plan; without one the
	// pack and communication fields are structurally zero.
	HasPlan bool
}

// Scenario is one named total-time estimate.
type Scenario struct {
	Name    string
	Seconds float64
}

// Scenarios returns the ten scenario totals in deterministic report order:
// {composite, all-at-once} x {local only, ping/halo x in-place/out-of-place}.
func (b *Breakdown) Scenarios() []Scenario {
	pingIn := b.CommPing + b.PackInPlace
	pingOut := b.CommPing + b.PackOutOfPlace
	haloIn := b.CommHalo + b.PackInPlace
	haloOut := b.CommHalo + b.PackOutOfPlace
	comp := b.LocalComposite
	all := b.LocalAllAtOnce
	return []Scenario{
		{"Comp", comp},
		{"Comp+ping+inplace", comp + pingIn},
		{"Comp+ping+ooplace", comp + pingOut},
		{"Comp+halo+inplace", comp + haloIn},
		{"Comp+halo+ooplace", comp + haloOut},
		{"All", all},
		{"All+ping+inplace", all + pingIn},
		{"All+ping+ooplace", all + pingOut},
		{"All+halo+inplace", all + haloIn},
		{"All+halo+ooplace", all + haloOut},
	}
}

// Estimate computes the cost breakdown for a. Collective: every rank of the
// matrix's group must call it with its local block, since per-array costs are
// averaged over the group. The models must be calibrated first (stream and,
// when a has an import plan, pingpong and halopong).
func Estimate[T sparse.Scalar](c comm.Comm, m *perfmodel.Models, a *sparse.Matrix[T]) (*Breakdown, error) {
	rows := a.Local.NumRows
	cols := a.Local.NumCols
	nnz := a.Local.NNZ()
	szT := sparse.ElemSize[T]()

	latency, err := m.LaunchLatencyLookup()
	if err != nil {
		return nil, err
	}
	latency = groupAverage(c, latency)

	// An empty partition streams nothing and dispatches nothing.
	empty := rows == 0 && nnz == 0

	b := &Breakdown{LaunchLatency: latency}

	// Per-array byte footprints. One read per row for the row pointer, one
	// read per entry for indices and values, x read per entry (assumed
	// cached), one write per row for y.
	type arraySpec struct {
		cost      *ArrayCost
		bytes     int64
		corrected bool
	}
	var rowPtrBytes int64
	if rows > 0 {
		rowPtrBytes = int64(rows+1) * sparse.RowPtrSize
	}
	arrays := []arraySpec{
		{&b.RowPtr, rowPtrBytes, true},
		{&b.ColInd, int64(nnz) * sparse.ColIndSize, true},
		{&b.Values, int64(nnz) * int64(szT), true},
		{&b.X, int64(cols) * int64(szT), true},
		{&b.Y, int64(rows) * int64(szT), true},
	}
	var totalBytes int64
	for _, spec := range arrays {
		totalBytes += spec.bytes
	}
	arrays = append(arrays, arraySpec{&b.All, totalBytes, false})

	for _, spec := range arrays {
		secs, err := predict(m, spec.bytes, spec.corrected)
		if err != nil {
			return nil, err
		}
		secs = groupAverage(c, secs)
		spec.cost.Bytes = spec.bytes
		spec.cost.Seconds = secs
		if secs > 0 {
			spec.cost.GBPerSec = float64(spec.bytes) / GB / secs
		}
	}

	if !empty {
		b.LocalComposite = latency
		for _, spec := range arrays[:len(arrays)-1] {
			b.LocalComposite += spec.cost.Seconds
		}
		b.LocalAllAtOnce = b.All.Seconds
	}

	if a.Plan == nil {
		return b, nil
	}
	b.HasPlan = true
	if err := estimateRemote(m, a.Plan, szT, latency, b); err != nil {
		return nil, err
	}
	return b, nil
}

// estimateRemote fills the pack/unpack and communication fields from the
// import plan's four categories and per-peer message lengths.
//
// Read/write weights per category follow what an Epetra-style pack loop
// touches: sames copy scalar to scalar; permutes read two index arrays and
// move a scalar; exports read one index array, a scalar and write the
// staging buffer; remotes mirror exports on the unpack side. Sames and
// remotes only cost when staging out-of-place.
func estimateRemote(m *perfmodel.Models, p *sparse.ImportPlan, szT int, latency float64, b *Breakdown) error {
	category := func(indexReads, scalarMoves, count int) (float64, error) {
		if count == 0 {
			return 0, nil
		}
		var total float64
		for i := 0; i < indexReads; i++ {
			secs, err := m.LatencyCorrectedStreamVectorLookup(count * sparse.ColIndSize)
			if err != nil {
				return 0, err
			}
			total += secs
		}
		for i := 0; i < scalarMoves; i++ {
			secs, err := m.LatencyCorrectedStreamVectorLookup(count * szT)
			if err != nil {
				return 0, err
			}
			total += secs
		}
		return total + latency, nil
	}

	sameTime, err := category(0, 2, p.NumSame)
	if err != nil {
		return errors.Wrap(err, "same pack cost")
	}
	permuteTime, err := category(2, 2, p.NumPermute())
	if err != nil {
		return errors.Wrap(err, "permute pack cost")
	}
	exportTime, err := category(1, 2, p.NumExport())
	if err != nil {
		return errors.Wrap(err, "export pack cost")
	}
	remoteTime, err := category(1, 2, p.NumRemote())
	if err != nil {
		return errors.Wrap(err, "remote unpack cost")
	}

	b.PackOutOfPlace = sameTime + permuteTime + exportTime + remoteTime
	b.PackInPlace = permuteTime + exportTime

	// Message costs. Send and receive sides are each summed over peers and
	// the communication estimate takes the larger of the two; a matvec can
	// overlap them but cannot finish before the slower side.
	var sendTime, recvTime float64
	var totalSendBytes, totalRecvBytes int64
	for _, l := range p.SendLengths {
		secs, err := m.PingpongLookup(l * szT)
		if err != nil {
			return errors.Wrap(err, "send pingpong cost")
		}
		sendTime += secs
		totalSendBytes += int64(l * szT)
	}
	// Receive totals accumulate the receive-side lengths. With symmetric
	// plans the two sides coincide, but asymmetric peers must not be costed
	// off the send lengths.
	for _, l := range p.RecvLengths {
		secs, err := m.PingpongLookup(l * szT)
		if err != nil {
			return errors.Wrap(err, "recv pingpong cost")
		}
		recvTime += secs
		totalRecvBytes += int64(l * szT)
	}
	b.CommPing = max(sendTime, recvTime)

	var avgMsgBytes float64
	if len(p.SendLengths) > 0 {
		avgMsgBytes += float64(totalSendBytes) / (2 * float64(len(p.SendLengths)))
	}
	if len(p.RecvLengths) > 0 {
		avgMsgBytes += float64(totalRecvBytes) / (2 * float64(len(p.RecvLengths)))
	}
	haloSecs, err := m.HalopongLookup(int(avgMsgBytes))
	if err != nil {
		return errors.Wrap(err, "halo exchange cost")
	}
	b.CommHalo = haloSecs
	return nil
}

// CalibrationBuckets returns the lookup-table sizes, as log2 of the largest
// bucket, needed to cover matrix a without clamping: the stream table must
// reach the combined byte footprint of the operand arrays, the message
// tables the largest per-peer message. One bucket of headroom is added so
// the top lookups interpolate instead of sitting on the boundary.
// Collective: both sizes are max-reduced over the group, so every rank
// builds identical tables.
func CalibrationBuckets[T sparse.Scalar](c comm.Comm, a *sparse.Matrix[T]) (streamMaxLog2, messageMaxLog2 int) {
	rows := int64(a.Local.NumRows)
	cols := int64(a.Local.NumCols)
	nnz := int64(a.Local.NNZ())
	szT := int64(sparse.ElemSize[T]())

	var totalBytes int64
	if rows > 0 {
		totalBytes += (rows + 1) * sparse.RowPtrSize
	}
	totalBytes += nnz*(sparse.ColIndSize+szT) + cols*szT + rows*szT
	streamMaxLog2 = c.AllReduceMaxInt(ceilLog2(totalBytes) + 1)

	var msgBytes int64
	if a.Plan != nil {
		msgBytes = int64(a.Plan.MaxMessageScalars()) * szT
	}
	messageMaxLog2 = c.AllReduceMaxInt(ceilLog2(msgBytes) + 1)
	return streamMaxLog2, messageMaxLog2
}

// ceilLog2 returns ceil(log2(n)), 0 for n <= 1.
func ceilLog2(n int64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(uint64(n - 1))
}

// predict queries the stream model, latency-corrected or raw. Zero bytes
// cost zero.
func predict(m *perfmodel.Models, bytes int64, corrected bool) (float64, error) {
	if bytes == 0 {
		return 0, nil
	}
	if corrected {
		return m.LatencyCorrectedStreamVectorLookup(int(bytes))
	}
	return m.StreamVectorLookup(int(bytes))
}

// groupAverage averages a per-rank value over the process group.
func groupAverage(c comm.Comm, v float64) float64 {
	if c.Size() == 1 {
		return v
	}
	return c.AllReduceSumFloat64(v) / float64(c.Size())
}
