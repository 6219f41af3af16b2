package parallel

import (
	"runtime"
	"sync"
)

// pool is a bounded worker pool for row-block tasks. maxParallelism is a
// soft target on the number of concurrently running tasks; 0 disables
// parallelism (tasks run inline) and -1 removes the bound.
type pool struct {
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // signaled whenever numRunning decreases
	numRunning     int
}

// newPool returns a pool with the default parallelism (runtime.NumCPU()).
func newPool() *pool {
	p := &pool{maxParallelism: runtime.NumCPU()}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

func (p *pool) setMaxParallelism(n int) {
	p.maxParallelism = n
}

// lockedIsFull returns whether all available workers are in use.
// Must be called with p.mu acquired.
func (p *pool) lockedIsFull() bool {
	if p.maxParallelism == 0 {
		return true
	} else if p.maxParallelism < 0 {
		return false
	}
	return p.numRunning >= p.maxParallelism
}

// waitToStart blocks until a worker is available, then runs task on it.
// With parallelism disabled the task runs inline.
func (p *pool) waitToStart(task func()) {
	if p.maxParallelism < 0 {
		go task()
		return
	} else if p.maxParallelism == 0 {
		task()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.numRunning++
	go func() {
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}
