// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"sync"

	"github.com/Thermoquad/nowbridge/pkg/hydration"
)

// DefaultQueueSize is the indicator backlog of an EffectQueue
const DefaultQueueSize = 32

// EffectQueue runs indicator calls in order on its own goroutine, so the
// link reader never waits on IR bursts or display loop teardown. It
// implements hydration.Indicators.
type EffectQueue struct {
	next hydration.Indicators

	mu     sync.Mutex
	closed bool
	jobs   chan func(hydration.Indicators)
	done   chan struct{}
}

// NewEffectQueue starts a queue in front of next
func NewEffectQueue(next hydration.Indicators, size int) *EffectQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &EffectQueue{
		next: next,
		jobs: make(chan func(hydration.Indicators), size),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *EffectQueue) run() {
	defer close(q.done)
	for f := range q.jobs {
		f(q.next)
	}
}

// push queues f. A full queue blocks the caller; a closed one drops f.
func (q *EffectQueue) push(f func(hydration.Indicators)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.jobs <- f
}

// Alert queues next.Alert(level)
func (q *EffectQueue) Alert(level int) {
	q.push(func(i hydration.Indicators) { i.Alert(level) })
}

// Celebrate queues next.Celebrate(ml)
func (q *EffectQueue) Celebrate(ml float32) {
	q.push(func(i hydration.Indicators) { i.Celebrate(ml) })
}

// Missing queues next.Missing(on)
func (q *EffectQueue) Missing(on bool) {
	q.push(func(i hydration.Indicators) { i.Missing(on) })
}

// Sync waits until everything queued before it has run
func (q *EffectQueue) Sync() {
	ran := make(chan struct{})
	q.push(func(hydration.Indicators) { close(ran) })
	select {
	case <-ran:
	case <-q.done:
	}
}

// Close runs the remaining backlog and stops the worker. Later calls are
// dropped.
func (q *EffectQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}
