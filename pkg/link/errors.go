// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "errors"

var (
	// ErrNotConnected is returned by Send when no gateway connection is open
	ErrNotConnected = errors.New("gateway not connected")

	// ErrSendFailed wraps write failures on an open connection
	ErrSendFailed = errors.New("send failed")

	// ErrInvalidFrame is returned for an address or payload that cannot be framed
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrNoEndpoint is returned when no endpoint is configured or discovered
	ErrNoEndpoint = errors.New("no serial endpoint found")

	// ErrResetUnsupported is returned when the transport has no reset line
	ErrResetUnsupported = errors.New("transport does not support gateway reset")

	// ErrConnectionClosed is returned when reading from a closed bridge connection
	ErrConnectionClosed = errors.New("bridge connection closed")
)
