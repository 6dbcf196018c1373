// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/nowbridge/pkg/hydration"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
	"github.com/Thermoquad/nowbridge/pkg/presence"
)

// slowIndicators blocks every call until release is closed
type slowIndicators struct {
	release chan struct{}
	mu      sync.Mutex
	calls   []string
}

func (s *slowIndicators) add(c string) {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *slowIndicators) Alert(level int)      { s.add(fmt.Sprintf("alert %d", level)) }
func (s *slowIndicators) Celebrate(ml float32) { s.add(fmt.Sprintf("celebrate %.1f", ml)) }
func (s *slowIndicators) Missing(on bool)      { s.add(fmt.Sprintf("missing %v", on)) }

func (s *slowIndicators) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func TestEffectQueueDoesNotBlockCaller(t *testing.T) {
	slow := &slowIndicators{release: make(chan struct{})}
	q := NewEffectQueue(slow, 4)
	defer q.Close()

	returned := make(chan struct{})
	go func() {
		q.Alert(2)
		q.Celebrate(70)
		q.Missing(true)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("caller waited on the indicators")
	}

	close(slow.release)
	q.Sync()
	assert.Equal(t, []string{"alert 2", "celebrate 70.0", "missing true"}, slow.recorded())
}

func TestEffectQueueClose(t *testing.T) {
	slow := &slowIndicators{release: make(chan struct{})}
	close(slow.release)
	q := NewEffectQueue(slow, 0)

	q.Alert(1)
	q.Close()
	q.Alert(2)
	q.Sync()
	q.Close()
	assert.Equal(t, []string{"alert 1"}, slow.recorded())
}

// Weight reports return to the reader while the celebration is still
// running behind the queue.
func TestMachineThroughEffectQueue(t *testing.T) {
	r := newRig(t)
	slow := &slowIndicators{release: make(chan struct{})}
	q := NewEffectQueue(slow, 0)
	defer q.Close()
	m := hydration.New(hydration.DefaultConfig(), r.clk, presence.Static(true), q)
	scale := NewHydration(r.reg, r.sender, m, nil, r.clk)

	done := make(chan struct{})
	go func() {
		scale.HandlePacket(hydrationPacket(nowlink.HydrationReportWeight, 500), scaleAddr)
		scale.HandlePacket(hydrationPacket(nowlink.HydrationReportWeight, 400), scaleAddr)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("packet handling waited on the indicators")
	}
	require.Equal(t, float32(100), m.State().DailyTotal)

	close(slow.release)
	q.Sync()
	assert.Equal(t, []string{"alert 0", "celebrate 100.0"}, slow.recorded())
}
