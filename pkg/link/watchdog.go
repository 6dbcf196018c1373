// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/clock"
)

// Default watchdog timing
const (
	DefaultWatchdogTimeout  = 60 * time.Second
	DefaultWatchdogInterval = time.Second
)

// Resetter is the link the watchdog supervises
type Resetter interface {
	Connected() bool
	ResetGateway() error
}

// Watchdog resets the gateway when no recognized line arrives within the
// timeout. Pet is safe to call from any goroutine.
type Watchdog struct {
	target   Resetter
	clock    clock.Clock
	timeout  time.Duration
	interval time.Duration

	lastPet atomic.Int64 // unix nanoseconds
	trips   atomic.Uint64

	// OnTrip, if set, is called after each reset attempt
	OnTrip func(err error)
}

// NewWatchdog creates an armed watchdog for target
func NewWatchdog(target Resetter, timeout, interval time.Duration, clk clock.Clock) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	if interval <= 0 {
		interval = DefaultWatchdogInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	w := &Watchdog{target: target, clock: clk, timeout: timeout, interval: interval}
	w.Rearm()
	return w
}

// Pet records liveness. The timestamp only moves forward.
func (w *Watchdog) Pet() {
	now := w.clock.Now().UnixNano()
	for {
		old := w.lastPet.Load()
		if now <= old {
			return
		}
		if w.lastPet.CompareAndSwap(old, now) {
			return
		}
	}
}

// Rearm restarts the timeout window from now
func (w *Watchdog) Rearm() {
	w.lastPet.Store(w.clock.Now().UnixNano())
}

// LastPet returns the time of the most recent pet or re-arm
func (w *Watchdog) LastPet() time.Time {
	return time.Unix(0, w.lastPet.Load())
}

// Trips returns how many resets the watchdog has attempted
func (w *Watchdog) Trips() uint64 {
	return w.trips.Load()
}

// Timeout returns the configured silence threshold
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Check evaluates the timeout once and reports whether a reset was issued
func (w *Watchdog) Check() bool {
	silent := w.clock.Since(w.LastPet())
	if silent <= w.timeout {
		return false
	}

	// Re-arm before resetting so a slow reboot does not trip again
	w.Rearm()

	if !w.target.Connected() {
		log.Warn().Dur("silent", silent).Msg("watchdog expired while disconnected, skipping reset")
		return false
	}

	w.trips.Add(1)
	log.Error().Dur("silent", silent).Uint64("trips", w.trips.Load()).Msg("watchdog: gateway silent, resetting")
	err := w.target.ResetGateway()
	if err != nil {
		log.Error().Err(err).Msg("watchdog: gateway reset failed")
	}
	if w.OnTrip != nil {
		w.OnTrip(err)
	}
	return true
}

// Run checks the timeout every interval until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	log.Debug().Dur("timeout", w.timeout).Msg("watchdog started")
	defer log.Debug().Msg("watchdog stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			w.Check()
		}
	}
}
