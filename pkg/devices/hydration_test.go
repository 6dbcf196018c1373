// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/hydration"
	"github.com/Thermoquad/nowbridge/pkg/link"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
	"github.com/Thermoquad/nowbridge/pkg/presence"
)

func hydrationPacket(cmd uint8, v float32) nowlink.Packet {
	return nowlink.Packet{Device: nowlink.DeviceHydration, Command: cmd, Kind: nowlink.KindFloat, Float: v}
}

func TestHydrationAnswersRequester(t *testing.T) {
	r := newRig(t)
	requester := nowlink.MustParseAddress("11:22:33:44:55:66")

	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationRequestTime, 0), requester)
	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationRequestPresence, 0), requester)
	r.home.Set(false)
	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationRequestPresence, 0), requester)

	assert.Equal(t, []string{
		"11:22:33:44:55:66 0131C0403C68",
		"11:22:33:44:55:66 01410000803F",
		"11:22:33:44:55:66 014100000000",
	}, r.sender.take())
}

func TestHydrationMirrorsLED(t *testing.T) {
	r := newRig(t)

	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationSetLED, 1), scaleAddr)
	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationSetLED, 0), scaleAddr)
	assert.Equal(t, []string{
		"AA:BB:CC:DD:EE:02 02100000803F",
		"AA:BB:CC:DD:EE:02 021000000000",
	}, r.sender.take())
}

func TestHydrationPacketsDriveMachine(t *testing.T) {
	r := newRig(t)

	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationReportWeight, 500), scaleAddr)
	assert.Equal(t, hydration.PhaseMonitoring, r.machine.State().Phase)

	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationAlertReminder, 0), scaleAddr)
	assert.Equal(t, 1, r.machine.State().AlertLevel)

	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationAlertStopped, 0), scaleAddr)
	assert.Zero(t, r.machine.State().AlertLevel)

	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationDrinkDetected, 120), scaleAddr)
	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationDailyTotal, 900), scaleAddr)
	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationDailyTotal, 300), scaleAddr)
	st := r.machine.State()
	assert.Equal(t, float32(120), st.LastDrinkML)
	assert.Equal(t, float32(900), st.DailyTotal)

	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationAlertMissing, 0), scaleAddr)
	assert.Equal(t, hydration.PhaseBottleMissing, r.machine.State().Phase)
	assert.True(t, r.effects.Looping())

	r.scale.HandlePacket(hydrationPacket(nowlink.HydrationAlertReplaced, 0), scaleAddr)
	assert.Equal(t, hydration.PhaseMonitoring, r.machine.State().Phase)
	assert.False(t, r.effects.Looping())
}

func TestHydrationUserInput(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"led", "on"}, "01100000803F"},
		{[]string{"led", "off"}, "011000000000"},
		{[]string{"buzzer", "on"}, "01110000803F"},
		{[]string{"rgb", "3"}, "011200004040"},
		{[]string{"weight"}, "012000000000"},
		{[]string{"tare"}, "012200000000"},
		{[]string{"total"}, "012300000000"},
	}

	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			r := newRig(t)
			require.NoError(t, r.scale.HandleUserInput(tt.args))
			assert.Equal(t, []string{"AA:BB:CC:DD:EE:01 " + tt.want}, r.sender.take())
		})
	}
}

func TestHydrationLocalCommands(t *testing.T) {
	r := newRig(t)
	r.machine.ReportWeight(500)

	require.NoError(t, r.scale.HandleUserInput([]string{"test", "alert"}))
	assert.Equal(t, 1, r.machine.State().AlertLevel)
	require.NoError(t, r.scale.HandleUserInput([]string{"test", "stop"}))
	assert.Zero(t, r.machine.State().AlertLevel)

	require.NoError(t, r.scale.HandleUserInput([]string{"snooze", "15"}))
	assert.Equal(t, noon.Add(15*time.Minute), r.machine.State().SnoozeUntil)
	require.NoError(t, r.scale.HandleUserInput([]string{"snooze"}))
	assert.Equal(t, noon.Add(DefaultSnooze), r.machine.State().SnoozeUntil)

	require.NoError(t, r.scale.HandleUserInput([]string{"stop"}))
	require.NoError(t, r.scale.HandleUserInput([]string{"status"}))
}

// A frame read from the gateway reaches the hydration handler and its LED
// mirror goes back out through the same link.
func TestGatewayFrameToLEDMirror(t *testing.T) {
	port := link.NewTestPort()
	mgr := link.NewManager(link.Options{
		Endpoint: "/dev/ttyTEST0",
		Open:     link.TestOpener(port),
		Clock:    clock.NewMock(noon),
	}, nil)

	reg := NewRegistry(map[string]nowlink.Address{
		RoleHydration: nowlink.MustParseAddress("AA:BB:CC:DD:EE:FF"),
		RoleLED:       stripAddr,
	})
	machine := hydration.New(hydration.DefaultConfig(), clock.NewMock(noon), presence.Static(true), nil)
	reg.Register(NewLED(reg, mgr))
	reg.Register(NewHydration(reg, mgr, machine, nil, nil))
	mgr.SetDispatcher(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	port.AddLines("RX:AA:BB:CC:DD:EE:FF:01100000803F")
	require.Eventually(t, func() bool {
		return len(port.WrittenLines()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "TX:AA:BB:CC:DD:EE:02:02100000803F", port.WrittenLines()[0])
}

func TestReminderSuppressed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *rig)
		phase hydration.Phase
	}{
		{"snoozed", func(r *rig) { r.machine.Snooze(time.Hour) }, hydration.PhaseSnoozed},
		{"away", func(r *rig) { r.home.Set(false) }, hydration.PhaseAway},
		{"away with goal met", func(r *rig) {
			r.home.Set(false)
			r.scale.HandlePacket(hydrationPacket(nowlink.HydrationDailyTotal, 2500), scaleAddr)
		}, hydration.PhaseAway},
		{"goal met", func(r *rig) {
			r.scale.HandlePacket(hydrationPacket(nowlink.HydrationDailyTotal, 2500), scaleAddr)
		}, hydration.PhaseMonitoring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.scale.HandlePacket(hydrationPacket(nowlink.HydrationReportWeight, 500), scaleAddr)
			tt.setup(r)
			r.sender.take()

			r.scale.HandlePacket(hydrationPacket(nowlink.HydrationAlertReminder, 0), scaleAddr)
			st := r.machine.State()
			assert.Zero(t, st.AlertLevel)
			assert.Equal(t, tt.phase, st.Phase)
			assert.Empty(t, r.sender.take())
		})
	}
}

func TestSnoozeAndStopKeepMissingIndicators(t *testing.T) {
	for _, args := range [][]string{{"snooze", "10"}, {"stop"}} {
		t.Run(args[0], func(t *testing.T) {
			r := newRig(t)
			r.scale.HandlePacket(hydrationPacket(nowlink.HydrationReportWeight, 500), scaleAddr)
			r.scale.HandlePacket(hydrationPacket(nowlink.HydrationAlertMissing, 0), scaleAddr)
			require.True(t, r.effects.Looping())
			r.sender.take()

			require.NoError(t, r.scale.HandleUserInput(args))
			st := r.machine.State()
			assert.Equal(t, hydration.PhaseBottleMissing, st.Phase)
			assert.True(t, st.BottleMissing)
			assert.True(t, r.effects.Looping())
			frames := r.sender.take()
			assert.Zero(t, count(frames, ledDefault))
			assert.Zero(t, count(frames, irDefault))
		})
	}
}
