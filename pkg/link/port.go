// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Port provides a common interface for reading/writing bytes from serial or WebSocket
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// ResetPort is a Port with a DTR line wired to the gateway's reset circuit
type ResetPort interface {
	Port
	SetDTR(dtr bool) error
}

// Opener opens a transport to the gateway
type Opener func(ctx context.Context, endpoint string, baud int) (Port, error)

// OpenSerial opens a serial port in 8N1 mode. A positive readTimeout makes
// Read return (0, nil) when the line is idle.
func OpenSerial(endpoint string, baud int, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(endpoint, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", endpoint, err)
	}

	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", endpoint, err)
		}
	}

	return port, nil
}

// IsBridgeURL reports whether the endpoint names a WebSocket line bridge
func IsBridgeURL(endpoint string) bool {
	return strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://")
}

// DefaultOpener opens serial ports, or WebSocket bridges for ws:// and wss://
// endpoints.
func DefaultOpener(bridge BridgeOptions, idlePoll time.Duration) Opener {
	return func(ctx context.Context, endpoint string, baud int) (Port, error) {
		if IsBridgeURL(endpoint) {
			return DialBridge(ctx, endpoint, bridge)
		}
		return OpenSerial(endpoint, baud, idlePoll)
	}
}
