package sparse

import (
	"github.com/pkg/errors"

	"github.com/spmvbench/spmvbench/comm"
)

// Tridiagonal builds the 1D Laplace stencil (-1, 2, -1) on globalRows rows,
// split into contiguous row blocks across the ranks of c. Every rank must
// call it with the same globalRows.
//
// The local column space holds the owned entries first, followed by one
// remote slot per interior boundary (left neighbor's last row, then right
// neighbor's first row). On a single rank the plan is nil.
func Tridiagonal[T Scalar](c comm.Comm, globalRows int64) (*Matrix[T], error) {
	if globalRows <= 0 {
		return nil, errors.Errorf("tridiagonal: globalRows must be positive, got %d", globalRows)
	}
	rank, size := int64(c.Rank()), int64(c.Size())
	if globalRows < size {
		return nil, errors.Errorf("tridiagonal: %d rows cannot be split over %d ranks", globalRows, size)
	}

	lo := rank * globalRows / size
	hi := (rank + 1) * globalRows / size
	m := int(hi - lo)

	hasLeft := lo > 0
	hasRight := hi < globalRows

	// Remote slots follow the owned block: left neighbor first.
	n := m
	leftSlot, rightSlot := -1, -1
	if hasLeft {
		leftSlot = n
		n++
	}
	if hasRight {
		rightSlot = n
		n++
	}

	a := &Matrix[T]{
		Comm:       c,
		GlobalRows: globalRows,
		RowOffset:  lo,
	}
	a.Local = CSR[T]{NumRows: m, NumCols: n}
	a.Local.RowPtr = make([]int64, m+1)
	for i := 0; i < m; i++ {
		g := lo + int64(i)
		if g > 0 {
			col := i - 1
			if i == 0 {
				col = leftSlot
			}
			a.Local.ColInd = append(a.Local.ColInd, int32(col))
			a.Local.Values = append(a.Local.Values, -1)
		}
		a.Local.ColInd = append(a.Local.ColInd, int32(i))
		a.Local.Values = append(a.Local.Values, 2)
		if g < globalRows-1 {
			col := i + 1
			if i == m-1 {
				col = rightSlot
			}
			a.Local.ColInd = append(a.Local.ColInd, int32(col))
			a.Local.Values = append(a.Local.Values, -1)
		}
		a.Local.RowPtr[i+1] = int64(len(a.Local.ColInd))
	}

	if !hasLeft && !hasRight {
		return a, nil
	}

	p := &ImportPlan{NumSame: m}
	if hasLeft {
		p.SendPeers = append(p.SendPeers, int(rank-1))
		p.SendLengths = append(p.SendLengths, 1)
		p.ExportIDs = append(p.ExportIDs, 0)
		p.RecvPeers = append(p.RecvPeers, int(rank-1))
		p.RecvLengths = append(p.RecvLengths, 1)
		p.RemoteIDs = append(p.RemoteIDs, int32(leftSlot))
	}
	if hasRight {
		p.SendPeers = append(p.SendPeers, int(rank+1))
		p.SendLengths = append(p.SendLengths, 1)
		p.ExportIDs = append(p.ExportIDs, int32(m-1))
		p.RecvPeers = append(p.RecvPeers, int(rank+1))
		p.RecvLengths = append(p.RecvLengths, 1)
		p.RemoteIDs = append(p.RemoteIDs, int32(rightSlot))
	}
	a.Plan = p
	return a, nil
}
