// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

import "errors"

var (
	// ErrShort is returned when a payload is too short to carry a header
	ErrShort = errors.New("payload shorter than header")

	// ErrLength is returned when a known command arrives with the wrong size
	ErrLength = errors.New("payload length mismatch")

	// ErrInvalidAddress is returned for addresses that are not 17-char colon hex
	ErrInvalidAddress = errors.New("invalid device address")

	// ErrInvalidHex is returned for odd-length or non-hex payload strings
	ErrInvalidHex = errors.New("invalid hex payload")

	// ErrUnknownCommand is returned when encoding a (type, command) pair
	// that is not in the catalog and carries no raw bytes
	ErrUnknownCommand = errors.New("unknown command")
)
