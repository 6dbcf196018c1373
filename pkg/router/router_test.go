// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/nowbridge/pkg/devices"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

type frame struct {
	addr    nowlink.Address
	payload []byte
}

type recorder struct {
	packets []string
	raw     []frame
	err     error
}

func (r *recorder) SendPacket(addr nowlink.Address, p nowlink.Packet) error {
	h, err := nowlink.EncodeHex(p)
	if err != nil {
		return err
	}
	r.packets = append(r.packets, addr.String()+" "+h)
	return r.err
}

func (r *recorder) Send(addr nowlink.Address, payload []byte) error {
	r.raw = append(r.raw, frame{addr, payload})
	return r.err
}

func newRouter(t *testing.T) (*Router, *recorder) {
	t.Helper()
	rec := &recorder{}
	reg := devices.NewRegistry(map[string]nowlink.Address{
		devices.RoleLED:     nowlink.MustParseAddress("AA:BB:CC:DD:EE:02"),
		devices.RoleDisplay: nowlink.MustParseAddress("AA:BB:CC:DD:EE:04"),
	})
	reg.Register(devices.NewLED(reg, rec))
	reg.Register(devices.NewDisplay(reg, rec))
	return New(reg, rec), rec
}

func TestRouteToHandler(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"led_ble on", "AA:BB:CC:DD:EE:02 02100000803F"},
		{"LED off", "AA:BB:CC:DD:EE:02 021000000000"},
		{"  led   default ", "AA:BB:CC:DD:EE:02 021305250000"},
		{"ono rainbow 5", "AA:BB:CC:DD:EE:04 03500000A040"},
		{"display text hi 2", "AA:BB:CC:DD:EE:04 036000000040026869"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r, rec := newRouter(t)
			require.NoError(t, r.Route(tt.line))
			assert.Equal(t, []string{tt.want}, rec.packets)
			assert.Empty(t, rec.raw)
		})
	}
}

func TestRawPassthrough(t *testing.T) {
	r, rec := newRouter(t)

	require.NoError(t, r.Route("f0:24:f9:0c:de:54 0x012000000000"))
	require.Len(t, rec.raw, 1)
	assert.Equal(t, nowlink.MustParseAddress("F0:24:F9:0C:DE:54"), rec.raw[0].addr)
	assert.Equal(t, []byte{0x01, 0x20, 0, 0, 0, 0}, rec.raw[0].payload)
}

func TestRouteUsageErrors(t *testing.T) {
	r, rec := newRouter(t)

	for _, line := range []string{
		"",
		"   ",
		"fridge open",
		"F0:24:F9:0C:DE:54",
		"F0:24:F9:0C:DE:54 012",
		"F0:24:F9:0C:DE 0120",
		"F0:24:F9:0C:DE:54 0120 extra",
		"ir_remote send F7F00F", // role without a handler
		"led",
	} {
		assert.ErrorIs(t, r.Route(line), ErrUsage, line)
	}
	assert.Empty(t, rec.raw)
	assert.Empty(t, rec.packets)
}

func TestRouteSendErrorsPropagate(t *testing.T) {
	r, rec := newRouter(t)
	rec.err = errors.New("not connected")

	assert.EqualError(t, r.Route("led on"), "not connected")
	assert.EqualError(t, r.Route("AA:BB:CC:DD:EE:09 0110"), "not connected")
}

func TestUsageListsRoles(t *testing.T) {
	r, _ := newRouter(t)
	assert.Contains(t, r.Usage(), "roles: led_ble ono_display")
}

func TestResolve(t *testing.T) {
	assert.Equal(t, devices.RoleLED, Resolve("LED"))
	assert.Equal(t, devices.RoleIR, Resolve("ir"))
	assert.Equal(t, devices.RoleDisplay, Resolve("ono"))
	assert.Equal(t, devices.RoleHydration, Resolve("hydration"))
	assert.Equal(t, "fridge", Resolve("fridge"))
}
