package transactions

import (
	"sync"
	"time"
)

// busyTracker counts requests that were queued but not yet processed.
type busyTracker struct {
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

func newBusyTracker() *busyTracker {
	idle := make(chan struct{})
	close(idle)

	return &busyTracker{mu: sync.Mutex{}, pending: 0, idle: idle}
}

func (b *busyTracker) add() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == 0 {
		b.idle = make(chan struct{})
	}

	b.pending++
}

func (b *busyTracker) done() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == 0 {
		return
	}

	b.pending--
	if b.pending == 0 {
		close(b.idle)
	}
}

func (b *busyTracker) busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.pending > 0
}

// wait blocks until no request is pending or timeout elapses. It reports
// whether the queue went idle.
func (b *busyTracker) wait(timeout time.Duration) bool {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}
