// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

// Frame prefixes used by the gateway line protocol
const (
	PrefixRX = "RX:"
	PrefixTX = "TX:"
)

// Packet layout constants
const (
	HeaderSize     = 2 // device type + command
	ValueSize      = 4 // little-endian float32 or uint32
	FixedSize      = HeaderSize + ValueSize
	ColorSize      = HeaderSize + 3 + ValueSize
	TextHeaderSize = HeaderSize + ValueSize + 1
	MaxTextLength  = 80
	AddressSize    = 6
	AddressStrLen  = 17
	MaxLineLength  = 512
)

// DeviceType identifies the peripheral family of a packet
type DeviceType uint8

// Device types
const (
	DeviceHydration DeviceType = 1
	DeviceLED       DeviceType = 2
	DeviceIR        DeviceType = 3 // IR transmitter and ONO display share this type
)

// Hydration monitor commands (device type 1)
const (
	HydrationSetLED            uint8 = 0x10
	HydrationSetBuzzer         uint8 = 0x11
	HydrationSetRGB            uint8 = 0x12
	HydrationGetWeight         uint8 = 0x20
	HydrationReportWeight      uint8 = 0x21
	HydrationTare              uint8 = 0x22
	HydrationRequestDailyTotal uint8 = 0x23
	HydrationRequestTime       uint8 = 0x30
	HydrationReportTime        uint8 = 0x31
	HydrationRequestPresence   uint8 = 0x40
	HydrationReportPresence    uint8 = 0x41
	HydrationAlertMissing      uint8 = 0x50
	HydrationAlertReplaced     uint8 = 0x51
	HydrationAlertReminder     uint8 = 0x52
	HydrationAlertStopped      uint8 = 0x53
	HydrationDrinkDetected     uint8 = 0x60
	HydrationDailyTotal        uint8 = 0x61
)

// LED strip commands (device type 2)
const (
	LEDSetPower  uint8 = 0x10
	LEDSetPreset uint8 = 0x12
	LEDSetMode   uint8 = 0x13
)

// IR transmitter and display commands (device type 3)
const (
	IRSendNEC      uint8 = 0x31
	DisplayRainbow uint8 = 0x50
	DisplayColor   uint8 = 0x51
	DisplayText    uint8 = 0x60
)

// Hydration RGB indicator colors, sent as float ids with HydrationSetRGB
const (
	ColorOff    = 0
	ColorAlert  = 1
	ColorOK     = 2
	ColorRefill = 3
	ColorSleep  = 7
	ColorIdle   = 8
)

// Presence words carried by REPORT_PRESENCE. Home is the bit pattern of
// float32 1.0, which the firmware compares against.
const (
	PresenceAway uint32 = 0x00000000
	PresenceHome uint32 = 0x3F800000
)

// LED strip modes
const (
	LEDModeRainbow  uint8 = 37
	LEDModeRedPulse uint8 = 38
	LEDPresetGreen        = 2
)

// NEC codes understood by the IR-driven lamp
const (
	NECDefault    uint32 = 0xF7F00F
	NECGreen      uint32 = 0xF7A05F
	NECAlertFlash uint32 = 0xF7D02F
)
