// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"sync"
	"time"
)

// Line is one raw line received from the gateway
type Line struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
	Kind string    `json:"kind"`
}

// lineRing keeps the most recent lines for diagnostics
type lineRing struct {
	mu    sync.Mutex
	buf   []Line
	next  int
	count int
}

func newLineRing(size int) *lineRing {
	if size < 1 {
		size = 1
	}
	return &lineRing{buf: make([]Line, size)}
}

func (r *lineRing) add(l Line) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = l
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// last returns up to n lines, oldest first. n <= 0 returns everything held.
func (r *lineRing) last(n int) []Line {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Line, n)
	start := (r.next - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
