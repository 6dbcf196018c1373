// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

// Command builder functions create Packet values ready for Encode.
// They pick the value representation the firmware expects for each command.

func newFloat(device DeviceType, command uint8, v float32) Packet {
	return Packet{Device: device, Command: command, Kind: KindFloat, Float: v}
}

func newUint(device DeviceType, command uint8, v uint32) Packet {
	return Packet{Device: device, Command: command, Kind: KindUint, Uint: v}
}

func boolFloat(on bool) float32 {
	if on {
		return 1.0
	}
	return 0.0
}

// NewSetLED creates a hydration SET_LED packet (0x10)
func NewSetLED(on bool) Packet {
	return newFloat(DeviceHydration, HydrationSetLED, boolFloat(on))
}

// NewSetBuzzer creates a hydration SET_BUZZER packet (0x11)
func NewSetBuzzer(on bool) Packet {
	return newFloat(DeviceHydration, HydrationSetBuzzer, boolFloat(on))
}

// NewSetRGB creates a hydration SET_RGB packet (0x12).
// The color id travels as a float, e.g. ColorAlert.
func NewSetRGB(color int) Packet {
	return newFloat(DeviceHydration, HydrationSetRGB, float32(color))
}

// NewGetWeight creates a hydration GET_WEIGHT packet (0x20)
func NewGetWeight() Packet {
	return newFloat(DeviceHydration, HydrationGetWeight, 0)
}

// NewTare creates a hydration TARE packet (0x22)
func NewTare() Packet {
	return newFloat(DeviceHydration, HydrationTare, 0)
}

// NewRequestDailyTotal creates a hydration REQUEST_DAILY_TOTAL packet (0x23)
func NewRequestDailyTotal() Packet {
	return newFloat(DeviceHydration, HydrationRequestDailyTotal, 0)
}

// NewReportTime creates a REPORT_TIME reply (0x31) carrying unix seconds
func NewReportTime(unix uint32) Packet {
	return newUint(DeviceHydration, HydrationReportTime, unix)
}

// NewReportPresence creates a REPORT_PRESENCE reply (0x41).
// The firmware expects the bit pattern of 1.0 for home and zero for away.
func NewReportPresence(home bool) Packet {
	if home {
		return newUint(DeviceHydration, HydrationReportPresence, PresenceHome)
	}
	return newUint(DeviceHydration, HydrationReportPresence, PresenceAway)
}

// NewLEDPower creates an LED SET_POWER packet (0x10)
func NewLEDPower(on bool) Packet {
	return newFloat(DeviceLED, LEDSetPower, boolFloat(on))
}

// NewLEDPreset creates an LED SET_PRESET packet (0x12)
func NewLEDPreset(id int) Packet {
	return newFloat(DeviceLED, LEDSetPreset, float32(id))
}

// NewLEDMode creates an LED SET_MODE packet (0x13).
// Mode and speed are packed as (mode<<8)|speed in a uint32.
func NewLEDMode(mode, speed uint8) Packet {
	return newUint(DeviceLED, LEDSetMode, uint32(mode)<<8|uint32(speed))
}

// NewSendNEC creates an IR SEND_NEC packet (0x31)
func NewSendNEC(code uint32) Packet {
	return newUint(DeviceIR, IRSendNEC, code)
}

// NewDisplayRainbow creates a display RAINBOW packet (0x50)
func NewDisplayRainbow(seconds float32) Packet {
	return newFloat(DeviceIR, DisplayRainbow, seconds)
}

// NewDisplayColor creates a display COLOR packet (0x51)
func NewDisplayColor(c RGB, seconds float32) Packet {
	return Packet{Device: DeviceIR, Command: DisplayColor, Kind: KindColor, Color: c, Duration: seconds}
}

// NewDisplayText creates a display TEXT packet (0x60).
// Text longer than MaxTextLength bytes is truncated.
func NewDisplayText(text string, seconds float32) Packet {
	if len(text) > MaxTextLength {
		text = text[:MaxTextLength]
	}
	return Packet{Device: DeviceIR, Command: DisplayText, Kind: KindText, Text: text, Duration: seconds}
}

// NewRaw wraps an arbitrary payload. The header bytes are taken from it.
func NewRaw(payload []byte) Packet {
	p := Packet{Kind: KindRaw, Raw: append([]byte(nil), payload...)}
	if len(payload) >= HeaderSize {
		p.Device = DeviceType(payload[0])
		p.Command = payload[1]
	}
	return p
}
