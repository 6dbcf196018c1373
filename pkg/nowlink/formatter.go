// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

import (
	"fmt"
	"strings"
	"time"
)

// CommandName returns the human-readable name for a (type, command) pair
func CommandName(device DeviceType, command uint8) string {
	if info, ok := catalog[commandKey{device, command}]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN_%d_0x%02X", device, command)
}

// FormatDeviceType returns the human-readable name for a device type
func FormatDeviceType(device DeviceType) string {
	switch device {
	case DeviceHydration:
		return "HYDRATION"
	case DeviceLED:
		return "LED"
	case DeviceIR:
		return "IR/DISPLAY"
	default:
		return fmt.Sprintf("TYPE_%d", device)
	}
}

// FormatValue renders the packet's value according to its command
func FormatValue(p Packet) string {
	switch p.Kind {
	case KindFloat:
		switch {
		case p.Device == DeviceHydration && (p.Command == HydrationReportWeight):
			return fmt.Sprintf("%.2f g", p.Float)
		case p.Device == DeviceHydration && (p.Command == HydrationDrinkDetected || p.Command == HydrationDailyTotal):
			return fmt.Sprintf("%.1f ml", p.Float)
		case p.Device == DeviceHydration && p.Command == HydrationSetRGB:
			return formatColorID(int(p.Float))
		case p.Device == DeviceIR && p.Command == DisplayRainbow:
			return fmt.Sprintf("%.1fs", p.Float)
		}
		return fmt.Sprintf("%.2f", p.Float)

	case KindUint:
		switch {
		case p.Device == DeviceHydration && p.Command == HydrationReportTime:
			return time.Unix(int64(p.Uint), 0).UTC().Format(time.RFC3339)
		case p.Device == DeviceHydration && p.Command == HydrationReportPresence:
			if p.Uint == PresenceHome {
				return "home"
			}
			return "away"
		case p.Device == DeviceLED && p.Command == LEDSetMode:
			return fmt.Sprintf("mode=%d speed=%d", p.Uint>>8, p.Uint&0xFF)
		case p.Device == DeviceIR && p.Command == IRSendNEC:
			return fmt.Sprintf("0x%06X", p.Uint)
		}
		return fmt.Sprintf("%d", p.Uint)

	case KindColor:
		return fmt.Sprintf("#%02X%02X%02X for %.1fs", p.Color.R, p.Color.G, p.Color.B, p.Duration)

	case KindText:
		return fmt.Sprintf("%q for %.1fs", p.Text, p.Duration)
	}

	return strings.ToUpper(fmt.Sprintf("%x", p.Raw))
}

// FormatPacket formats a packet received from or sent to addr
func FormatPacket(addr Address, p Packet) string {
	return fmt.Sprintf("%s %s %s (0x%02X) %s", addr, FormatDeviceType(p.Device), p.Name(), p.Command, FormatValue(p))
}

func formatColorID(id int) string {
	switch id {
	case ColorOff:
		return "OFF"
	case ColorAlert:
		return "ALERT"
	case ColorOK:
		return "OK"
	case ColorRefill:
		return "REFILL"
	case ColorSleep:
		return "SLEEP"
	case ColorIdle:
		return "IDLE"
	default:
		return fmt.Sprintf("COLOR_%d", id)
	}
}
