// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{"upper case", "AA:BB:CC:DD:EE:FF", Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, false},
		{"lower case", "f0:24:f9:0c:de:54", Address{0xF0, 0x24, 0xF9, 0x0C, 0xDE, 0x54}, false},
		{"zero", "00:00:00:00:00:00", Address{}, false},
		{"surrounding space", "  01:02:03:04:05:06 ", Address{1, 2, 3, 4, 5, 6}, false},
		{"too short", "AA:BB:CC:DD:EE", Address{}, true},
		{"dash separators", "AA-BB-CC-DD-EE-FF", Address{}, true},
		{"non hex", "GG:BB:CC:DD:EE:FF", Address{}, true},
		{"empty", "", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAddress(%q) expected error", tt.input)
				}
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("error = %v, want ErrInvalidAddress", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAddressString(t *testing.T) {
	a := Address{0xf0, 0x24, 0xf9, 0x0c, 0xde, 0x54}
	if got := a.String(); got != "F0:24:F9:0C:DE:54" {
		t.Errorf("String() = %q", got)
	}
	if a.IsZero() {
		t.Error("IsZero() = true for configured address")
	}
	if !(Address{}).IsZero() {
		t.Error("IsZero() = false for zero address")
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantOK      bool
		wantAddr    string
		wantPayload []byte
	}{
		{
			name:        "hydration led on",
			line:        "RX:AA:BB:CC:DD:EE:FF:01100000803F",
			wantOK:      true,
			wantAddr:    "AA:BB:CC:DD:EE:FF",
			wantPayload: []byte{0x01, 0x10, 0x00, 0x00, 0x80, 0x3F},
		},
		{
			name:        "lower case hex with carriage return",
			line:        "RX:aa:bb:cc:dd:ee:ff:0121cdcc4c3e\r",
			wantOK:      true,
			wantAddr:    "AA:BB:CC:DD:EE:FF",
			wantPayload: []byte{0x01, 0x21, 0xCD, 0xCC, 0x4C, 0x3E},
		},
		{name: "odd hex length", line: "RX:AA:BB:CC:DD:EE:FF:0110000", wantOK: false},
		{name: "non hex characters", line: "RX:AA:BB:CC:DD:EE:FF:01ZZ0000803F", wantOK: false},
		{name: "empty payload", line: "RX:AA:BB:CC:DD:EE:FF:", wantOK: false},
		{name: "missing payload separator", line: "RX:AA:BB:CC:DD:EE:FF", wantOK: false},
		{name: "bad address", line: "RX:AA:BB:CC:DD:EE:GG:0110", wantOK: false},
		{name: "tx line", line: "TX:AA:BB:CC:DD:EE:FF:0110", wantOK: false},
		{name: "heartbeat", line: "HEARTBEAT", wantOK: false},
		{name: "garbage", line: "\x00\xff@@", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := ParseLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if f.Address.String() != tt.wantAddr {
				t.Errorf("Address = %s, want %s", f.Address, tt.wantAddr)
			}
			if !bytes.Equal(f.Payload, tt.wantPayload) {
				t.Errorf("Payload = % X, want % X", f.Payload, tt.wantPayload)
			}
		})
	}
}

func TestFormatFrame(t *testing.T) {
	addr := MustParseAddress("f0:24:f9:0c:de:54")
	got := FormatFrame(addr, []byte{0x01, 0x41, 0x00, 0x00, 0x80, 0x3f})
	want := "TX:F0:24:F9:0C:DE:54:01410000803F"
	if got != want {
		t.Errorf("FormatFrame() = %q, want %q", got, want)
	}

	f := Frame{Address: addr, Payload: []byte{0xAB}}
	if f.String() != "TX:F0:24:F9:0C:DE:54:AB" {
		t.Errorf("Frame.String() = %q", f.String())
	}
}

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		input   string
		want    []byte
		wantErr bool
	}{
		{"0110", []byte{0x01, 0x10}, false},
		{"0x0110", []byte{0x01, 0x10}, false},
		{"0XaBcD", []byte{0xAB, 0xCD}, false},
		{"", []byte{}, false},
		{"011", nil, true},
		{"01g0", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := DecodeHex(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidHex) {
					t.Errorf("DecodeHex(%q) error = %v, want ErrInvalidHex", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeHex(%q) unexpected error: %v", tt.input, err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("DecodeHex(%q) = % X, want % X", tt.input, got, tt.want)
			}
		})
	}
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line       string
		want       LineKind
		recognized bool
	}{
		{"RX:AA:BB:CC:DD:EE:FF:01100000803F", LineData, true},
		{"RX:AA:BB:CC:DD:EE:FF:011", LineMalformed, false},
		{"RX:garbage", LineMalformed, false},
		{"HEARTBEAT", LineHeartbeat, true},
		{"HEARTBEAT:42", LineHeartbeat, true},
		{"DEBUG: peer added", LineDebug, true},
		{"OK:TX", LineOK, true},
		{"ERR:send failed", LineError, true},
		{"rst:0x1 (POWERON_RESET),boot:0x13 (SPI_FAST_FLASH_BOOT)", LineBoot, true},
		{"ets Jul 29 2019 12:21:46", LineBoot, true},
		{"ESP-ROM:esp32s3-20210327", LineBoot, true},
		{"GATEWAY READY", LineBoot, true},
		{"\xfe\x12junk", LineGarbage, false},
		{"hello world", LineGarbage, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := ClassifyLine(tt.line)
			if got != tt.want {
				t.Errorf("ClassifyLine(%q) = %s, want %s", tt.line, got, tt.want)
			}
			if got.Recognized() != tt.recognized {
				t.Errorf("Recognized() = %v, want %v", got.Recognized(), tt.recognized)
			}
		})
	}
}
