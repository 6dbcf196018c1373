// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyNonFinite AnomalyType = iota
	AnomalyNegativeWeight
	AnomalyOutOfRange
	AnomalyUnknownCommand
	AnomalyTextTooLong
)

// Weight readings above this are treated as sensor glitches
const maxPlausibleWeight = 10000

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks a decoded packet for values the firmware should never send.
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p Packet) []ValidationError {
	errors := []ValidationError{}

	if p.Kind == KindRaw {
		return append(errors, ValidationError{
			Type:    AnomalyUnknownCommand,
			Message: fmt.Sprintf("Unknown command type=%d cmd=0x%02X", p.Device, p.Command),
			Details: map[string]interface{}{"type": p.Device, "command": p.Command, "length": len(p.Raw)},
		})
	}

	if p.Kind == KindFloat || p.Kind == KindText || p.Kind == KindColor {
		v := p.Float
		if p.Kind != KindFloat {
			v = p.Duration
		}
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return append(errors, ValidationError{
				Type:    AnomalyNonFinite,
				Message: fmt.Sprintf("%s carries non-finite value", p.Name()),
				Details: map[string]interface{}{"command": p.Name()},
			})
		}
	}

	if p.Device == DeviceHydration {
		errors = append(errors, validateHydration(p)...)
	}
	if p.Kind == KindText && len(p.Text) > MaxTextLength {
		errors = append(errors, ValidationError{
			Type:    AnomalyTextTooLong,
			Message: fmt.Sprintf("Text length %d exceeds %d", len(p.Text), MaxTextLength),
			Details: map[string]interface{}{"length": len(p.Text), "max": MaxTextLength},
		})
	}

	return errors
}

func validateHydration(p Packet) []ValidationError {
	errors := []ValidationError{}

	switch p.Command {
	case HydrationReportWeight:
		if p.Float < 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyNegativeWeight,
				Message: fmt.Sprintf("Negative weight=%.2f g", p.Float),
				Details: map[string]interface{}{"weight": p.Float},
			})
		} else if p.Float > maxPlausibleWeight {
			errors = append(errors, ValidationError{
				Type:    AnomalyOutOfRange,
				Message: fmt.Sprintf("Weight=%.2f g exceeds %d g", p.Float, maxPlausibleWeight),
				Details: map[string]interface{}{"weight": p.Float, "max": maxPlausibleWeight},
			})
		}
	case HydrationDrinkDetected, HydrationDailyTotal:
		if p.Float < 0 || p.Float > maxPlausibleWeight {
			errors = append(errors, ValidationError{
				Type:    AnomalyOutOfRange,
				Message: fmt.Sprintf("%s=%.1f ml out of range", p.Name(), p.Float),
				Details: map[string]interface{}{"ml": p.Float},
			})
		}
	}

	return errors
}
