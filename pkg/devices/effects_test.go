// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

const (
	ledDefault   = "AA:BB:CC:DD:EE:02 021305250000"
	ledAlert     = "AA:BB:CC:DD:EE:02 021301260000"
	ledGreen     = "AA:BB:CC:DD:EE:02 021200000040"
	irDefault    = "AA:BB:CC:DD:EE:03 03310FF0F700"
	irGreen      = "AA:BB:CC:DD:EE:03 03315FA0F700"
	irAlert      = "AA:BB:CC:DD:EE:03 03312FD0F700"
	loopRainbow  = "AA:BB:CC:DD:EE:04 03500000803F"
	loopNoBottle = "AA:BB:CC:DD:EE:04 03600000804009" + "6E6F20626F74746C65"
)

func count(frames []string, frame string) int {
	n := 0
	for _, f := range frames {
		if f == frame {
			n++
		}
	}
	return n
}

func TestCelebrationReverts(t *testing.T) {
	r := newRig(t)

	r.effects.Celebrate(70)
	assert.Equal(t, []string{
		"AA:BB:CC:DD:EE:04 0360000040400737302E30206D6C",
		ledGreen,
		irGreen, irGreen, irGreen,
	}, r.sender.take())

	r.clk.Advance(2 * time.Second)
	assert.Empty(t, r.sender.take())

	r.clk.Advance(time.Second)
	assert.Equal(t, []string{ledDefault, irDefault, irDefault, irDefault}, r.sender.take())
}

func TestCelebrationReplacesPendingRevert(t *testing.T) {
	r := newRig(t)

	r.effects.Celebrate(70)
	r.clk.Advance(2 * time.Second)
	r.effects.Celebrate(55.5)
	r.sender.take()

	r.clk.Advance(2 * time.Second)
	assert.Zero(t, count(r.sender.take(), ledDefault), "first revert was cancelled")

	r.clk.Advance(time.Second)
	assert.Equal(t, 1, count(r.sender.take(), ledDefault))
	assert.Zero(t, r.clk.PendingTimers())
}

func TestMissingLoop(t *testing.T) {
	r := newRig(t)

	r.effects.Missing(true)
	require.True(t, r.effects.Looping())

	var seen []string
	require.Eventually(t, func() bool {
		seen = append(seen, r.sender.take()...)
		if !slices.Contains(seen, loopRainbow) {
			return false
		}
		r.clk.Advance(time.Second)
		return slices.Contains(seen, loopNoBottle)
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{irAlert, irAlert, irAlert, ledAlert}, seen[:4])

	r.effects.Missing(false)
	assert.False(t, r.effects.Looping())
	frames := r.sender.take()
	require.GreaterOrEqual(t, len(frames), 4)
	assert.Equal(t, []string{ledDefault, irDefault, irDefault, irDefault}, frames[len(frames)-4:])
}

func TestAlertLevels(t *testing.T) {
	r := newRig(t)

	r.effects.Alert(1)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:01 01120000803F", ledAlert}, r.sender.take())
	assert.False(t, r.effects.Looping())

	r.effects.Alert(2)
	assert.True(t, r.effects.Looping())
	frames := r.sender.take()
	require.GreaterOrEqual(t, len(frames), 6)
	assert.Equal(t, []string{
		"AA:BB:CC:DD:EE:01 01120000803F",
		"AA:BB:CC:DD:EE:01 01110000803F",
		ledAlert,
		irAlert, irAlert, irAlert,
	}, frames[:6])

	r.effects.Alert(0)
	assert.False(t, r.effects.Looping())
	frames = r.sender.take()
	require.GreaterOrEqual(t, len(frames), 6)
	assert.Equal(t, []string{
		"AA:BB:CC:DD:EE:01 011100000000",
		"AA:BB:CC:DD:EE:01 011200000040",
		ledDefault,
		irDefault, irDefault, irDefault,
	}, frames[len(frames)-6:])
}

func TestEffectsWithoutHandlers(t *testing.T) {
	e := NewEffects(NewRegistry(nil), clock.NewMock(noon), EffectOptions{})
	defer e.Close()

	e.Alert(2)
	e.Celebrate(100)
	e.Missing(true)
	assert.False(t, e.Looping(), "no display, no loop")
	e.Missing(false)
	e.Alert(0)
}

func TestEffectOptionsDefaults(t *testing.T) {
	e := NewEffects(NewRegistry(map[string]nowlink.Address{}), nil, EffectOptions{Celebration: 5 * time.Second})
	assert.Equal(t, 5*time.Second, e.opts.Celebration)
	assert.Equal(t, DefaultEffectOptions().LoopText, e.opts.LoopText)
	assert.Equal(t, "no bottle", e.opts.MissingText)
}

func TestAlertClearKeepsMissingIndicators(t *testing.T) {
	r := newRig(t)

	r.effects.Missing(true)
	r.sender.take()

	r.effects.Alert(0)
	assert.True(t, r.effects.Looping(), "no bottle loop keeps running")
	frames := r.sender.take()
	assert.Contains(t, frames, "AA:BB:CC:DD:EE:01 011100000000")
	assert.Contains(t, frames, "AA:BB:CC:DD:EE:01 011200000040")
	assert.Zero(t, count(frames, ledDefault))
	assert.Zero(t, count(frames, irDefault))

	r.effects.Alert(2)
	frames = r.sender.take()
	assert.Contains(t, frames, "AA:BB:CC:DD:EE:01 01110000803F")
	assert.Zero(t, count(frames, irAlert), "lamp already flashing for the missing bottle")
}

func TestCelebrationWhileMissing(t *testing.T) {
	r := newRig(t)

	r.effects.Missing(true)
	r.sender.take()

	r.effects.Celebrate(70)
	r.clk.Advance(3 * time.Second)
	frames := r.sender.take()
	assert.Zero(t, count(frames, ledGreen))
	assert.Zero(t, count(frames, ledDefault))
	assert.Zero(t, count(frames, irDefault))
	assert.True(t, r.effects.Looping())
}

func TestMissingCancelsCelebrationRevert(t *testing.T) {
	r := newRig(t)

	r.effects.Celebrate(70)
	r.effects.Missing(true)
	r.sender.take()

	r.clk.Advance(3 * time.Second)
	frames := r.sender.take()
	assert.Zero(t, count(frames, ledDefault))
	assert.Zero(t, count(frames, irDefault))
	assert.True(t, r.effects.MissingActive())

	r.effects.Missing(false)
	assert.False(t, r.effects.MissingActive())
	frames = r.sender.take()
	assert.Equal(t, []string{ledDefault, irDefault, irDefault, irDefault}, frames[len(frames)-4:])
}
