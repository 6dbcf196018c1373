// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package router maps textual commands to device handlers
package router

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/devices"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

// ErrUsage is returned for commands that cannot be routed
var ErrUsage = devices.ErrUsage

// RawSender sends a payload to an address outside any handler
type RawSender interface {
	Send(addr nowlink.Address, payload []byte) error
}

// Short names accepted in place of role names
var aliases = map[string]string{
	"led":     devices.RoleLED,
	"ir":      devices.RoleIR,
	"ono":     devices.RoleDisplay,
	"display": devices.RoleDisplay,
	"oled":    devices.RoleDisplay,
	"scale":   devices.RoleHydration,
}

// Router dispatches "<role> <subcommand> [args]" lines
type Router struct {
	reg *devices.Registry
	raw RawSender
}

// New creates a router. raw may be nil to disable passthrough.
func New(reg *devices.Registry, raw RawSender) *Router {
	return &Router{reg: reg, raw: raw}
}

// Resolve returns the role a command word names
func Resolve(word string) string {
	word = strings.ToLower(word)
	if role, ok := aliases[word]; ok {
		return role
	}
	return word
}

// Usage describes the accepted command forms
func (r *Router) Usage() string {
	var b strings.Builder
	b.WriteString("usage: <role> <subcommand> [args] | <address> <hexpayload>\nroles:")
	for _, role := range r.reg.Roles() {
		b.WriteString(" ")
		b.WriteString(role)
	}
	return b.String()
}

// Route runs one command line
func (r *Router) Route(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty command", ErrUsage)
	}

	role := Resolve(fields[0])
	if h, ok := r.reg.Handler(role); ok {
		log.Debug().Str("role", role).Strs("args", fields[1:]).Msg("routing command")
		return h.HandleUserInput(fields[1:])
	}

	if len(fields) == 2 && r.raw != nil {
		addr, aerr := nowlink.ParseAddress(fields[0])
		payload, herr := nowlink.DecodeHex(fields[1])
		if aerr == nil && herr == nil && len(payload) > 0 {
			log.Debug().Str("addr", addr.String()).Msg("raw passthrough")
			return r.raw.Send(addr, payload)
		}
	}

	return fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, fields[0], r.Usage())
}
