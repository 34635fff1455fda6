// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package streamer

import (
	"runtime"
	"sync"
)

// fanOutPool is a bounded goroutine pool for per-destination sends.
// Each task is a func() that delivers one message to one destination.
// The pool owns its goroutines and stops them cleanly via Close().
type fanOutPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newFanOutPool(workers int) *fanOutPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &fanOutPool{
		// Buffer one task per worker so submitters rarely block.
		tasks: make(chan func(), workers),
	}
	p.wg.Add(workers)
	for range workers {
		go p.run()
	}
	return p
}

func (p *fanOutPool) run() {
	defer p.wg.Done()
	for fn := range p.tasks {
		fn()
	}
}

// Submit enqueues a send task and reports whether it was accepted. It
// blocks only when all workers are busy and the task buffer is full,
// which provides back-pressure to the receive path without dropping
// messages. Submit returns false after Close.
func (p *fanOutPool) Submit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.tasks <- fn
	return true
}

// Close drains queued tasks and waits for all workers to finish.
func (p *fanOutPool) Close() {
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
