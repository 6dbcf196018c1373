// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

type commandKey struct {
	device  DeviceType
	command uint8
}

type commandInfo struct {
	name string
	kind ValueKind
}

// catalog is byte-compatible with the deployed peripheral firmware
var catalog = map[commandKey]commandInfo{
	{DeviceHydration, HydrationSetLED}:            {"SET_LED", KindFloat},
	{DeviceHydration, HydrationSetBuzzer}:         {"SET_BUZZER", KindFloat},
	{DeviceHydration, HydrationSetRGB}:            {"SET_RGB", KindFloat},
	{DeviceHydration, HydrationGetWeight}:         {"GET_WEIGHT", KindFloat},
	{DeviceHydration, HydrationReportWeight}:      {"REPORT_WEIGHT", KindFloat},
	{DeviceHydration, HydrationTare}:              {"TARE", KindFloat},
	{DeviceHydration, HydrationRequestDailyTotal}: {"REQUEST_DAILY_TOTAL", KindFloat},
	{DeviceHydration, HydrationRequestTime}:       {"REQUEST_TIME", KindFloat},
	{DeviceHydration, HydrationReportTime}:        {"REPORT_TIME", KindUint},
	{DeviceHydration, HydrationRequestPresence}:   {"REQUEST_PRESENCE", KindFloat},
	{DeviceHydration, HydrationReportPresence}:    {"REPORT_PRESENCE", KindUint},
	{DeviceHydration, HydrationAlertMissing}:      {"ALERT_MISSING", KindFloat},
	{DeviceHydration, HydrationAlertReplaced}:     {"ALERT_REPLACED", KindFloat},
	{DeviceHydration, HydrationAlertReminder}:     {"ALERT_REMINDER", KindFloat},
	{DeviceHydration, HydrationAlertStopped}:      {"ALERT_STOPPED", KindFloat},
	{DeviceHydration, HydrationDrinkDetected}:     {"DRINK_DETECTED", KindFloat},
	{DeviceHydration, HydrationDailyTotal}:        {"DAILY_TOTAL", KindFloat},

	{DeviceLED, LEDSetPower}:  {"LED_SET_POWER", KindFloat},
	{DeviceLED, LEDSetPreset}: {"LED_SET_PRESET", KindFloat},
	{DeviceLED, LEDSetMode}:   {"LED_SET_MODE", KindUint},

	{DeviceIR, IRSendNEC}:      {"IR_SEND_NEC", KindUint},
	{DeviceIR, DisplayRainbow}: {"DISPLAY_RAINBOW", KindFloat},
	{DeviceIR, DisplayColor}:   {"DISPLAY_COLOR", KindColor},
	{DeviceIR, DisplayText}:    {"DISPLAY_TEXT", KindText},
}

// KindOf returns the value kind of a (type, command) pair, KindRaw if unknown
func KindOf(device DeviceType, command uint8) ValueKind {
	if info, ok := catalog[commandKey{device, command}]; ok {
		return info.kind
	}
	return KindRaw
}

// Decode parses a binary payload. Unknown pairs decode to a KindRaw packet
// without error; known pairs with a bad size fail with ErrLength.
func Decode(payload []byte) (Packet, error) {
	if len(payload) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: got %d bytes", ErrShort, len(payload))
	}

	p := Packet{
		Device:  DeviceType(payload[0]),
		Command: payload[1],
		Kind:    KindOf(DeviceType(payload[0]), payload[1]),
	}

	switch p.Kind {
	case KindFloat, KindUint:
		if len(payload) != FixedSize {
			return Packet{}, lengthError(p, len(payload), FixedSize)
		}
		v := binary.LittleEndian.Uint32(payload[2:6])
		if p.Kind == KindUint {
			p.Uint = v
		} else {
			p.Float = math.Float32frombits(v)
		}

	case KindColor:
		if len(payload) != ColorSize {
			return Packet{}, lengthError(p, len(payload), ColorSize)
		}
		p.Color = RGB{R: payload[2], G: payload[3], B: payload[4]}
		p.Duration = math.Float32frombits(binary.LittleEndian.Uint32(payload[5:9]))

	case KindText:
		if len(payload) < TextHeaderSize {
			return Packet{}, lengthError(p, len(payload), TextHeaderSize)
		}
		p.Duration = math.Float32frombits(binary.LittleEndian.Uint32(payload[2:6]))
		n := int(payload[6])
		if len(payload) < TextHeaderSize+n {
			return Packet{}, lengthError(p, len(payload), TextHeaderSize+n)
		}
		p.Text = string(payload[TextHeaderSize : TextHeaderSize+n])

	default:
		p.Raw = append([]byte(nil), payload...)
	}

	return p, nil
}

func lengthError(p Packet, got, want int) error {
	return fmt.Errorf("%w: %s got %d bytes, want %d", ErrLength, CommandName(p.Device, p.Command), got, want)
}

// Encode produces the binary payload for a packet
func Encode(p Packet) ([]byte, error) {
	kind := KindOf(p.Device, p.Command)
	if p.Kind == KindRaw && len(p.Raw) > 0 {
		return append([]byte(nil), p.Raw...), nil
	}
	if kind != p.Kind {
		if kind == KindRaw {
			return nil, fmt.Errorf("%w: type=%d cmd=0x%02X", ErrUnknownCommand, p.Device, p.Command)
		}
		return nil, fmt.Errorf("%s expects %s value, got %s", CommandName(p.Device, p.Command), kind, p.Kind)
	}

	switch kind {
	case KindFloat:
		buf := make([]byte, FixedSize)
		buf[0], buf[1] = byte(p.Device), p.Command
		binary.LittleEndian.PutUint32(buf[2:], math.Float32bits(p.Float))
		return buf, nil

	case KindUint:
		buf := make([]byte, FixedSize)
		buf[0], buf[1] = byte(p.Device), p.Command
		binary.LittleEndian.PutUint32(buf[2:], p.Uint)
		return buf, nil

	case KindColor:
		buf := make([]byte, ColorSize)
		buf[0], buf[1] = byte(p.Device), p.Command
		buf[2], buf[3], buf[4] = p.Color.R, p.Color.G, p.Color.B
		binary.LittleEndian.PutUint32(buf[5:], math.Float32bits(p.Duration))
		return buf, nil

	case KindText:
		text := []byte(p.Text)
		if len(text) > MaxTextLength {
			text = text[:MaxTextLength]
		}
		buf := make([]byte, TextHeaderSize, TextHeaderSize+len(text))
		buf[0], buf[1] = byte(p.Device), p.Command
		binary.LittleEndian.PutUint32(buf[2:6], math.Float32bits(p.Duration))
		buf[6] = byte(len(text))
		return append(buf, text...), nil
	}

	return nil, fmt.Errorf("%w: type=%d cmd=0x%02X", ErrUnknownCommand, p.Device, p.Command)
}

// EncodeHex encodes a packet as the upper-case hex used in TX frames
func EncodeHex(p Packet) (string, error) {
	b, err := Encode(p)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// MustEncode encodes a packet and panics on error.
// Only use with packets built by the New* constructors.
func MustEncode(p Packet) []byte {
	b, err := Encode(p)
	if err != nil {
		panic(fmt.Sprintf("nowlink: encode error: %v", err))
	}
	return b
}
