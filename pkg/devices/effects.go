// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

// EffectOptions tunes the cross-device animations
type EffectOptions struct {
	Celebration  time.Duration // how long the drink celebration stays up
	LoopRainbow  time.Duration // rainbow phase of the alert loop
	LoopText     time.Duration // text phase of the alert loop
	MissingText  string
	ReminderText string
}

// DefaultEffectOptions returns the stock animation timing
func DefaultEffectOptions() EffectOptions {
	return EffectOptions{
		Celebration:  3 * time.Second,
		LoopRainbow:  time.Second,
		LoopText:     4 * time.Second,
		MissingText:  "no bottle",
		ReminderText: "drink water",
	}
}

// Effects turns hydration state changes into LED, IR, display and scale
// indicator commands. It implements hydration.Indicators.
type Effects struct {
	reg   *Registry
	clock clock.Clock
	opts  EffectOptions

	mu       sync.Mutex
	missing  bool // the missing-bottle indicators own the LED, lamp and display
	revert   clock.Timer
	loopStop chan struct{}
	loopDone chan struct{}
}

// NewEffects creates the effect driver. Handlers are looked up by role on
// every use, so roles without a handler are skipped.
func NewEffects(reg *Registry, clk clock.Clock, opts EffectOptions) *Effects {
	if clk == nil {
		clk = clock.Real{}
	}
	def := DefaultEffectOptions()
	if opts.Celebration <= 0 {
		opts.Celebration = def.Celebration
	}
	if opts.LoopRainbow <= 0 {
		opts.LoopRainbow = def.LoopRainbow
	}
	if opts.LoopText <= 0 {
		opts.LoopText = def.LoopText
	}
	if opts.MissingText == "" {
		opts.MissingText = def.MissingText
	}
	if opts.ReminderText == "" {
		opts.ReminderText = def.ReminderText
	}
	return &Effects{reg: reg, clock: clk, opts: opts}
}

func (e *Effects) led() *LED {
	h, _ := e.reg.Handler(RoleLED)
	l, _ := h.(*LED)
	return l
}

func (e *Effects) ir() *IR {
	h, _ := e.reg.Handler(RoleIR)
	ir, _ := h.(*IR)
	return ir
}

func (e *Effects) display() *Display {
	h, _ := e.reg.Handler(RoleDisplay)
	d, _ := h.(*Display)
	return d
}

func (e *Effects) scale() *Hydration {
	h, _ := e.reg.Handler(RoleHydration)
	s, _ := h.(*Hydration)
	return s
}

func warn(err error, what string) {
	if err != nil {
		log.Warn().Err(err).Msg(what)
	}
}

// MissingActive reports whether the missing-bottle indicators are shown
func (e *Effects) MissingActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.missing
}

// Alert shows the indicators of an alert level. Level 1 is visual only,
// level 2 adds the buzzer, IR flash and the display loop. Level 0 clears.
// While the bottle is missing only the scale's own indicators change.
func (e *Effects) Alert(level int) {
	missing := e.MissingActive()

	if level <= 0 {
		if !missing {
			e.stopLoop()
		}
		if s := e.scale(); s != nil {
			warn(s.SetBuzzer(false), "failed to silence scale buzzer")
			warn(s.SetRGB(nowlink.ColorOK), "failed to reset scale color")
		}
		if missing {
			log.Debug().Msg("alert cleared, missing-bottle indicators kept")
			return
		}
		e.restoreDefaults()
		return
	}

	if s := e.scale(); s != nil {
		warn(s.SetRGB(nowlink.ColorAlert), "failed to set scale alert color")
		if level >= 2 {
			warn(s.SetBuzzer(true), "failed to start scale buzzer")
		}
	}
	if missing {
		log.Debug().Int("alert_level", level).Msg("bottle missing, alert shown on the scale only")
		return
	}
	if l := e.led(); l != nil {
		warn(l.AlertPulse(), "failed to start LED alert pulse")
	}
	if level >= 2 {
		if ir := e.ir(); ir != nil {
			warn(ir.SendNEC(nowlink.NECAlertFlash), "failed to send IR alert flash")
		}
		e.startLoop(e.opts.ReminderText)
	}
	log.Info().Int("alert_level", level).Msg("alert indicators on")
}

// Celebrate shows the drunk amount with green LED and lamp, then restores
// the defaults. A new celebration replaces a pending restore. Nothing is
// shown while the bottle is missing.
func (e *Effects) Celebrate(ml float32) {
	e.mu.Lock()
	if e.missing {
		e.mu.Unlock()
		log.Info().Float32("ml", ml).Msg("bottle missing, drink not celebrated")
		return
	}
	if e.revert != nil {
		e.revert.Stop()
		e.revert = nil
	}
	e.mu.Unlock()

	text := fmt.Sprintf("%.1f ml", ml)
	if d := e.display(); d != nil {
		warn(d.Text(text, e.opts.Celebration), "failed to show drink amount")
	}
	if l := e.led(); l != nil {
		warn(l.Green(), "failed to set LED green")
	}
	if ir := e.ir(); ir != nil {
		warn(ir.SendNEC(nowlink.NECGreen), "failed to send IR green")
	}
	log.Info().Str("text", text).Dur("duration", e.opts.Celebration).Msg("drink celebration")

	e.mu.Lock()
	var t clock.Timer
	t = e.clock.AfterFunc(e.opts.Celebration, func() {
		e.mu.Lock()
		if e.revert == t {
			e.revert = nil
		}
		missing := e.missing
		e.mu.Unlock()
		if !missing {
			e.restoreDefaults()
		}
	})
	e.revert = t
	e.mu.Unlock()
}

// Missing starts or stops the bottle-missing alert. Starting it cancels a
// pending celebration restore.
func (e *Effects) Missing(on bool) {
	e.mu.Lock()
	e.missing = on
	if on && e.revert != nil {
		e.revert.Stop()
		e.revert = nil
	}
	e.mu.Unlock()

	if !on {
		e.stopLoop()
		e.restoreDefaults()
		return
	}

	if ir := e.ir(); ir != nil {
		warn(ir.SendNEC(nowlink.NECAlertFlash), "failed to send IR alert flash")
	}
	if l := e.led(); l != nil {
		warn(l.AlertPulse(), "failed to start LED alert pulse")
	}
	e.startLoop(e.opts.MissingText)
}

// restoreDefaults puts the LED strip and lamp back to their idle state
func (e *Effects) restoreDefaults() {
	if l := e.led(); l != nil {
		warn(l.Default(), "failed to restore LED default")
	}
	if ir := e.ir(); ir != nil {
		warn(ir.SendNEC(nowlink.NECDefault), "failed to restore IR default")
	}
}

// Looping reports whether the display alert loop is running
func (e *Effects) Looping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loopStop != nil
}

// startLoop alternates a rainbow and text on the display until stopped.
// A running loop is replaced.
func (e *Effects) startLoop(text string) {
	e.stopLoop()

	d := e.display()
	if d == nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	e.mu.Lock()
	e.loopStop, e.loopDone = stop, done
	e.mu.Unlock()

	go func() {
		defer close(done)
		log.Info().Str("text", text).Msg("display alert loop started")
		defer log.Info().Msg("display alert loop ended")

		for {
			warn(d.Rainbow(e.opts.LoopRainbow), "alert loop rainbow failed")
			select {
			case <-stop:
				return
			case <-e.clock.After(e.opts.LoopRainbow):
			}

			warn(d.Text(text, e.opts.LoopText), "alert loop text failed")
			select {
			case <-stop:
				return
			case <-e.clock.After(e.opts.LoopText):
			}
		}
	}()
}

// stopLoop stops the display loop and waits for it to exit
func (e *Effects) stopLoop() {
	e.mu.Lock()
	stop, done := e.loopStop, e.loopDone
	e.loopStop, e.loopDone = nil, nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Close stops running animations and pending restores
func (e *Effects) Close() {
	e.stopLoop()
	e.mu.Lock()
	if e.revert != nil {
		e.revert.Stop()
		e.revert = nil
	}
	e.mu.Unlock()
}
