// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/link"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

// Default IR burst: the one-way ESP-NOW hop to the transmitter drops frames
const (
	DefaultIRBurst = 3
	DefaultIRGap   = 80 * time.Millisecond
)

// Named NEC codes accepted by "ir send"
var necNames = map[string]uint32{
	"default": nowlink.NECDefault,
	"smooth":  nowlink.NECDefault,
	"green":   nowlink.NECGreen,
	"alert":   nowlink.NECAlertFlash,
}

// IR drives the infrared transmitter
type IR struct {
	base
	clock clock.Clock
	burst int
	gap   time.Duration
}

// NewIR creates the IR handler. Each NEC code is sent burst times, gap apart.
func NewIR(reg *Registry, s Sender, clk clock.Clock, burst int, gap time.Duration) *IR {
	if clk == nil {
		clk = clock.Real{}
	}
	if burst < 1 {
		burst = DefaultIRBurst
	}
	if gap < 0 {
		gap = DefaultIRGap
	}
	return &IR{base: base{role: RoleIR, reg: reg, sender: s}, clock: clk, burst: burst, gap: gap}
}

// DeviceType returns nowlink.DeviceIR
func (ir *IR) DeviceType() nowlink.DeviceType { return nowlink.DeviceIR }

// SendNEC transmits code as a burst. It succeeds if any frame of the burst
// was written and stops early when the link is down.
func (ir *IR) SendNEC(code uint32) error {
	p := nowlink.NewSendNEC(code)

	var sent int
	var lastErr error
	for i := 0; i < ir.burst; i++ {
		if i > 0 {
			ir.clock.Sleep(ir.gap)
		}
		err := ir.send(p)
		if err == nil {
			sent++
			continue
		}
		lastErr = err
		if errors.Is(err, link.ErrNotConnected) || errors.Is(err, ErrNoAddress) {
			break
		}
	}

	if sent == 0 {
		return lastErr
	}
	log.Debug().Str("code", strconv.FormatUint(uint64(code), 16)).Int("sent", sent).Msg("IR burst sent")
	return nil
}

// ParseNEC accepts a named code or a hex code with optional 0x prefix
func ParseNEC(s string) (uint32, error) {
	if code, ok := necNames[strings.ToLower(s)]; ok {
		return code, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	code, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, usagef("invalid NEC code %q", s)
	}
	return uint32(code), nil
}

// HandlePacket logs packets from the transmitter
func (ir *IR) HandlePacket(p nowlink.Packet, from nowlink.Address) {
	log.Info().Str("addr", from.String()).Str("cmd", p.Name()).Str("value", nowlink.FormatValue(p)).Msg("ir")
}

// HandleUserInput runs an IR subcommand
func (ir *IR) HandleUserInput(args []string) error {
	if len(args) < 2 || strings.ToLower(args[0]) != "send" {
		return usagef("ir send <hex|default|green|alert>")
	}
	code, err := ParseNEC(args[1])
	if err != nil {
		return err
	}
	return ir.SendNEC(code)
}
