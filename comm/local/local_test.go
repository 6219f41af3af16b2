package local

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runGroup spawns one goroutine per rank and waits for all of them.
func runGroup(t *testing.T, n int, fn func(e *Endpoint)) {
	t.Helper()
	endpoints := NewGroup(n)
	var wg sync.WaitGroup
	for _, e := range endpoints {
		wg.Add(1)
		go func(e *Endpoint) {
			defer wg.Done()
			fn(e)
		}(e)
	}
	wg.Wait()
}

func TestGroupShape(t *testing.T) {
	endpoints := NewGroup(4)
	require.Len(t, endpoints, 4)
	for rank, e := range endpoints {
		assert.Equal(t, rank, e.Rank())
		assert.Equal(t, 4, e.Size())
	}
}

func TestBarrierOrdering(t *testing.T) {
	const n = 8
	var mu sync.Mutex
	phase1 := 0
	runGroup(t, n, func(e *Endpoint) {
		mu.Lock()
		phase1++
		mu.Unlock()
		e.Barrier()
		// After the barrier every rank must have finished phase 1.
		mu.Lock()
		assert.Equal(t, n, phase1)
		mu.Unlock()
		e.Barrier()
	})
}

func TestAllReduce(t *testing.T) {
	const n = 5
	runGroup(t, n, func(e *Endpoint) {
		maxInt := e.AllReduceMaxInt(e.Rank() * 10)
		assert.Equal(t, (n-1)*10, maxInt)

		maxF := e.AllReduceMaxFloat64(float64(e.Rank()))
		assert.Equal(t, float64(n-1), maxF)

		sum := e.AllReduceSumFloat64(1.5)
		assert.InDelta(t, 1.5*n, sum, 1e-12)
	})
}

func TestBroadcast(t *testing.T) {
	const n = 4
	runGroup(t, n, func(e *Endpoint) {
		buf := make([]byte, 3)
		if e.Rank() == 2 {
			copy(buf, []byte{7, 8, 9})
		}
		e.Broadcast(2, buf)
		assert.Equal(t, []byte{7, 8, 9}, buf)
	})
}

func TestSendRecvPairs(t *testing.T) {
	const n = 4
	runGroup(t, n, func(e *Endpoint) {
		peer := e.Rank() ^ 1
		send := []byte{byte(e.Rank())}
		recv := make([]byte, 1)
		e.SendRecv(peer, send, recv)
		assert.Equal(t, byte(peer), recv[0])
	})
}

func TestSendRecvSelf(t *testing.T) {
	e := NewGroup(1)[0]
	send := []byte{1, 2, 3}
	recv := make([]byte, 3)
	e.SendRecv(0, send, recv)
	assert.Equal(t, send, recv)
}

func TestSingleRankCollectivesDoNotBlock(t *testing.T) {
	e := NewGroup(1)[0]
	e.Barrier()
	e.Broadcast(0, []byte{1})
	assert.Equal(t, 3, e.AllReduceMaxInt(3))
	assert.Equal(t, 2.0, e.AllReduceSumFloat64(2.0))
}
