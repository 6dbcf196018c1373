// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

import "math"

// ValueKind selects how the bytes after the header are interpreted.
// It is fixed per (device type, command) and never inferred from content.
type ValueKind uint8

const (
	KindRaw ValueKind = iota
	KindFloat
	KindUint
	KindText
	KindColor
)

func (k ValueKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindUint:
		return "uint32"
	case KindText:
		return "text"
	case KindColor:
		return "color"
	default:
		return "raw"
	}
}

// RGB is a 24-bit color carried by the display COLOR command
type RGB struct {
	R, G, B uint8
}

// Packet is a decoded ESP-NOW payload
type Packet struct {
	Device  DeviceType
	Command uint8
	Kind    ValueKind

	Float    float32 // KindFloat
	Uint     uint32  // KindUint
	Duration float32 // KindText, KindColor
	Text     string  // KindText
	Color    RGB     // KindColor
	Raw      []byte  // KindRaw: the full original payload
}

// Bool interprets a float value as the firmware's 1.0/0.0 switch
func (p Packet) Bool() bool {
	return p.Float >= 0.5
}

// Value returns the numeric value regardless of its wire representation
func (p Packet) Value() float64 {
	switch p.Kind {
	case KindFloat:
		return float64(p.Float)
	case KindUint:
		return float64(p.Uint)
	case KindText, KindColor:
		return float64(p.Duration)
	}
	return math.NaN()
}

// Name returns the catalog name of the packet's command
func (p Packet) Name() string {
	return CommandName(p.Device, p.Command)
}

// Known reports whether the (type, command) pair is in the catalog
func (p Packet) Known() bool {
	return p.Kind != KindRaw
}
