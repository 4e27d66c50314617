// Package compute - provides a fixed size worker pool for blocking,
// data-parallel grid submissions.
//
// Every submission fans out a 1D or 2D grid of independent work items and
// blocks the caller until the whole grid has finished. Items must read only
// shared immutable input and write only to their own output region.
package compute

import (
	"runtime"
	"sync"
)

// task is one contiguous run of grid items executed by a single worker.
type task struct {
	start, end int
	fn         func(i int)
	wg         *sync.WaitGroup
	panics     *panicSlot
}

// panicSlot keeps the first panic raised by any item of a submission.
type panicSlot struct {
	once  sync.Once
	value any
}

func (p *panicSlot) set(v any) {
	p.once.Do(func() { p.value = v })
}

// Pool is a fixed set of worker goroutines.
//
// A nil *Pool is valid: every submission then runs inline on the calling
// goroutine, which is the single threaded fallback path.
type Pool struct {
	tasks   chan task
	threads int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts a pool with the given number of workers.
//
// Arguments:
// - threads: Number of workers. Values <= 0 use runtime.NumCPU().
//
// Returns:
// - The running pool. Call Close when done.
//
// @example
//
//	pool := compute.NewPool(0)
//	defer pool.Close()
//	pool.Compute1D(height, func(y int) {
//	    // Process row y
//	})
func NewPool(threads int) *Pool {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	p := &Pool{
		tasks:   make(chan task, threads*2),
		threads: threads,
	}
	p.wg.Add(threads)
	for i := 0; i < threads; i++ {
		go p.worker()
	}
	return p
}

// Threads returns the number of workers, or 1 for a nil pool.
func (p *Pool) Threads() int {
	if p == nil {
		return 1
	}
	return p.threads
}

// Close stops the workers. Submissions made after Close run inline.
func (p *Pool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Compute1D runs fn(i) for every i in [0, n) and returns once all calls have
// completed. A panic raised by any item is re-raised on the calling goroutine
// after the join. Work items must not submit to the same pool.
func (p *Pool) Compute1D(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if p == nil || n == 1 || p.threads == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	// Split into a few chunks per worker so uneven rows still balance.
	chunks := p.threads * 4
	if chunks > n {
		chunks = n
	}

	var wg sync.WaitGroup
	slot := &panicSlot{}
	wg.Add(chunks)
	for c := 0; c < chunks; c++ {
		start, end := Partition(n, chunks, c)
		p.tasks <- task{start: start, end: end, fn: fn, wg: &wg, panics: slot}
	}
	p.mu.RUnlock()
	wg.Wait()

	if slot.value != nil {
		panic(slot.value)
	}
}

// Compute2D runs fn(i, j) for every i in [0, rows) and j in [0, cols). It is
// the batch x output channel grid used by the tensor kernels.
func (p *Pool) Compute2D(rows, cols int, fn func(i, j int)) {
	if rows <= 0 || cols <= 0 {
		return
	}
	p.Compute1D(rows*cols, func(k int) {
		fn(k/cols, k%cols)
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		run(t)
	}
}

func run(t task) {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			t.panics.set(r)
		}
	}()
	for i := t.start; i < t.end; i++ {
		t.fn(i)
	}
}

// Partition splits [0, total) into parts contiguous ranges and returns the
// bounds of range i. Ranges are disjoint, cover [0, total) exactly, and differ
// in length by at most one.
func Partition(total, parts, i int) (start, end int) {
	if parts <= 0 || total <= 0 {
		return 0, 0
	}
	size := total / parts
	rem := total % parts
	start = i*size + min(i, rem)
	end = start + size
	if i < rem {
		end++
	}
	return start, end
}
