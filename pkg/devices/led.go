// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

// Default speeds for the named LED modes
const (
	defaultRainbowSpeed = 5
	alertPulseSpeed     = 1
)

// LED drives the BLE LED strip bridge
type LED struct {
	base
}

// NewLED creates the LED strip handler
func NewLED(reg *Registry, s Sender) *LED {
	return &LED{base{role: RoleLED, reg: reg, sender: s}}
}

// DeviceType returns nowlink.DeviceLED
func (l *LED) DeviceType() nowlink.DeviceType { return nowlink.DeviceLED }

// On switches the strip on
func (l *LED) On() error { return l.send(nowlink.NewLEDPower(true)) }

// Off switches the strip off
func (l *LED) Off() error { return l.send(nowlink.NewLEDPower(false)) }

// Preset selects a color preset
func (l *LED) Preset(id int) error { return l.send(nowlink.NewLEDPreset(id)) }

// Mode selects an animation mode and speed
func (l *LED) Mode(mode, speed uint8) error { return l.send(nowlink.NewLEDMode(mode, speed)) }

// Default restores the idle rainbow animation
func (l *LED) Default() error { return l.Mode(nowlink.LEDModeRainbow, defaultRainbowSpeed) }

// AlertPulse shows the fast red pulse
func (l *LED) AlertPulse() error { return l.Mode(nowlink.LEDModeRedPulse, alertPulseSpeed) }

// Green shows the green preset
func (l *LED) Green() error { return l.Preset(nowlink.LEDPresetGreen) }

// Raw sends a hex payload unchanged
func (l *LED) Raw(hexPayload string) error {
	payload, err := nowlink.DecodeHex(hexPayload)
	if err != nil {
		return usagef("led raw: %v", err)
	}
	if len(payload) < nowlink.HeaderSize {
		return usagef("led raw: payload needs at least %d bytes", nowlink.HeaderSize)
	}
	return l.send(nowlink.NewRaw(payload))
}

// HandlePacket logs packets from the strip bridge, which only acknowledges
func (l *LED) HandlePacket(p nowlink.Packet, from nowlink.Address) {
	log.Info().Str("addr", from.String()).Str("cmd", p.Name()).Str("value", nowlink.FormatValue(p)).Msg("led")
}

const ledUsage = "led <on|off|rgb <id>|preset <id>|mode <mode> [speed]|default|alert|green|raw <hex>>"

// HandleUserInput runs an LED subcommand
func (l *LED) HandleUserInput(args []string) error {
	if len(args) == 0 {
		return usagef(ledUsage)
	}

	switch strings.ToLower(args[0]) {
	case "on":
		return l.On()
	case "off":
		return l.Off()
	case "rgb", "preset":
		if len(args) < 2 {
			return usagef("led %s <id>", args[0])
		}
		id, err := strconv.Atoi(args[1])
		if err != nil || id < 0 {
			return usagef("led %s: invalid id %q", args[0], args[1])
		}
		return l.Preset(id)
	case "mode":
		if len(args) < 2 {
			return usagef("led mode <mode> [speed]")
		}
		mode, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return usagef("led mode: invalid mode %q", args[1])
		}
		speed := uint64(defaultRainbowSpeed)
		if len(args) > 2 {
			if speed, err = strconv.ParseUint(args[2], 10, 8); err != nil {
				return usagef("led mode: invalid speed %q", args[2])
			}
		}
		return l.Mode(uint8(mode), uint8(speed))
	case "default":
		return l.Default()
	case "alert":
		return l.AlertPulse()
	case "green":
		return l.Green()
	case "raw":
		if len(args) < 2 {
			return usagef("led raw <hex>")
		}
		return l.Raw(args[1])
	}
	return usagef(ledUsage)
}
