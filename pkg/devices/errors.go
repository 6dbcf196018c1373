// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import "errors"

var (
	// ErrUsage is returned for malformed user commands
	ErrUsage = errors.New("usage")
	// ErrNoAddress is returned when a role has no configured address
	ErrNoAddress = errors.New("role has no configured address")
	// ErrNoHandler is returned when no handler is registered for a role
	ErrNoHandler = errors.New("no handler for role")
)
