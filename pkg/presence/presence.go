// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package presence supplies the "is the user home" signal consumed by the
// hydration logic and the presence replies sent to the hydration monitor.
package presence

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Provider reports whether the user is currently home
type Provider interface {
	IsHome() bool
}

// Static always reports the same answer
type Static bool

// IsHome returns the fixed answer
func (s Static) IsHome() bool { return bool(s) }

// Func adapts a function to Provider
type Func func() bool

// IsHome calls f
func (f Func) IsHome() bool { return f() }

// Toggle is a Provider set by an external prober or a manual override
type Toggle struct {
	home atomic.Bool
}

// NewToggle creates a Toggle with an initial state
func NewToggle(home bool) *Toggle {
	t := &Toggle{}
	t.home.Store(home)
	return t
}

// IsHome returns the last value set
func (t *Toggle) IsHome() bool {
	return t.home.Load()
}

// Set updates presence and reports whether it changed
func (t *Toggle) Set(home bool) bool {
	old := t.home.Swap(home)
	if old != home {
		log.Info().Bool("home", home).Msg("presence changed")
	}
	return old != home
}
