// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 6-byte ESP-NOW hardware address
type Address [AddressSize]byte

// ParseAddress parses a 17-char colon separated address such as
// "AA:BB:CC:DD:EE:FF". Case is ignored.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	if len(s) != AddressStrLen {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i := 0; i < AddressSize; i++ {
		off := i * 3
		if i < AddressSize-1 && s[off+2] != ':' {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		hi, ok1 := fromHexChar(s[off])
		lo, ok2 := fromHexChar(s[off+1])
		if !ok1 || !ok2 {
			return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		a[i] = hi<<4 | lo
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the address as upper-case colon hex
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is the unconfigured placeholder
func (a Address) IsZero() bool {
	return a == Address{}
}

// Frame is one RX or TX line of the gateway protocol
type Frame struct {
	Address Address
	Payload []byte
}

// String formats the frame as an outbound TX line without the newline
func (f Frame) String() string {
	return FormatFrame(f.Address, f.Payload)
}

// ParseLine recognizes an inbound "RX:<address>:<hex>" line. Anything else,
// including an RX line with a bad address or bad hex, reports false.
func ParseLine(line string) (Frame, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, PrefixRX) {
		return Frame{}, false
	}
	rest := line[len(PrefixRX):]
	if len(rest) < AddressStrLen+1 || rest[AddressStrLen] != ':' {
		return Frame{}, false
	}

	addr, err := ParseAddress(rest[:AddressStrLen])
	if err != nil {
		return Frame{}, false
	}

	payload, err := DecodeHex(rest[AddressStrLen+1:])
	if err != nil || len(payload) == 0 {
		return Frame{}, false
	}

	return Frame{Address: addr, Payload: payload}, true
}

// FormatFrame produces "TX:<address>:<HEX>"
func FormatFrame(addr Address, payload []byte) string {
	return PrefixTX + addr.String() + ":" + strings.ToUpper(hex.EncodeToString(payload))
}

// DecodeHex decodes an even-length hex string. A leading "0x" is accepted.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrInvalidHex, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return b, nil
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// LineKind classifies a line received from the gateway
type LineKind int

const (
	LineGarbage LineKind = iota
	LineData
	LineMalformed
	LineHeartbeat
	LineDebug
	LineOK
	LineError
	LineBoot
)

// bootPrefixes are emitted by the ESP32 ROM and the gateway firmware on reset
var bootPrefixes = []string{
	"rst:", "ets ", "boot:", "ESP-ROM:", "load:", "entry ", "mode:",
	"configsip:", "clk_drv:", "READY", "Ready", "GATEWAY", "Gateway",
}

// ClassifyLine sorts a raw line into data, status or garbage
func ClassifyLine(line string) LineKind {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, PrefixRX):
		if _, ok := ParseLine(line); ok {
			return LineData
		}
		return LineMalformed
	case line == "HEARTBEAT" || strings.HasPrefix(line, "HEARTBEAT:"):
		return LineHeartbeat
	case strings.HasPrefix(line, "DEBUG:"):
		return LineDebug
	case strings.HasPrefix(line, "OK:"):
		return LineOK
	case strings.HasPrefix(line, "ERR:"):
		return LineError
	}
	for _, p := range bootPrefixes {
		if strings.HasPrefix(line, p) {
			return LineBoot
		}
	}
	return LineGarbage
}

// Recognized reports whether the line proves the gateway is alive
func (k LineKind) Recognized() bool {
	return k != LineGarbage && k != LineMalformed
}

func (k LineKind) String() string {
	switch k {
	case LineData:
		return "data"
	case LineMalformed:
		return "malformed"
	case LineHeartbeat:
		return "heartbeat"
	case LineDebug:
		return "debug"
	case LineOK:
		return "ok"
	case LineError:
		return "error"
	case LineBoot:
		return "boot"
	default:
		return "garbage"
	}
}
