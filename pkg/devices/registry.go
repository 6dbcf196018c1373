// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package devices contains the per-peripheral handlers that translate user
// intents to packets and react to packets received from the gateway.
package devices

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

// Role names used in configuration and commands
const (
	RoleHydration = "hydration"
	RoleLED       = "led_ble"
	RoleIR        = "ir_remote"
	RoleDisplay   = "ono_display"
)

// Sender delivers one packet to a peripheral
type Sender interface {
	SendPacket(addr nowlink.Address, p nowlink.Packet) error
}

// Handler is implemented by every device handler
type Handler interface {
	Role() string
	DeviceType() nowlink.DeviceType
	// HandlePacket reacts to a packet received from the device
	HandlePacket(p nowlink.Packet, from nowlink.Address)
	// HandleUserInput runs a textual subcommand, e.g. ["on"] or ["text", "hi"]
	HandleUserInput(args []string) error
}

// Registry maps roles to handlers and addresses. It is built once at
// startup and passed to every component that needs cross-device access.
type Registry struct {
	handlers map[string]Handler
	addrs    map[string]nowlink.Address
	roles    map[nowlink.Address]string
}

// NewRegistry creates a registry from the role -> address configuration.
// Zero addresses are treated as unconfigured.
func NewRegistry(addrs map[string]nowlink.Address) *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		addrs:    make(map[string]nowlink.Address),
		roles:    make(map[nowlink.Address]string),
	}
	for role, addr := range addrs {
		if addr.IsZero() {
			continue
		}
		r.addrs[role] = addr
		r.roles[addr] = role
	}
	return r
}

// Register adds a handler under its role, replacing any previous one
func (r *Registry) Register(h Handler) {
	r.handlers[h.Role()] = h
}

// Handler returns the handler registered for role
func (r *Registry) Handler(role string) (Handler, bool) {
	h, ok := r.handlers[role]
	return h, ok
}

// Address returns the configured address of role
func (r *Registry) Address(role string) (nowlink.Address, bool) {
	addr, ok := r.addrs[role]
	return addr, ok
}

// RoleOf returns the role configured for addr
func (r *Registry) RoleOf(addr nowlink.Address) (string, bool) {
	role, ok := r.roles[addr]
	return role, ok
}

// Roles returns the registered roles in sorted order
func (r *Registry) Roles() []string {
	roles := make([]string, 0, len(r.handlers))
	for role := range r.handlers {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Lookup returns the handler for a packet: the handler of the sender's
// configured role when its device type matches, otherwise the first
// handler (by role name) owning the packet's device type.
func (r *Registry) Lookup(p nowlink.Packet, from nowlink.Address) (Handler, bool) {
	if role, ok := r.roles[from]; ok {
		if h, ok := r.handlers[role]; ok && h.DeviceType() == p.Device {
			return h, true
		}
	}
	for _, role := range r.Roles() {
		if h := r.handlers[role]; h.DeviceType() == p.Device {
			return h, true
		}
	}
	return nil, false
}

// Dispatch routes a received packet to its handler
func (r *Registry) Dispatch(p nowlink.Packet, from nowlink.Address) {
	h, ok := r.Lookup(p, from)
	if !ok {
		log.Warn().
			Str("addr", from.String()).
			Str("packet", nowlink.FormatPacket(from, p)).
			Msg("no handler for packet")
		return
	}
	h.HandlePacket(p, from)
}

// base carries what every handler needs to send to its own device
type base struct {
	role   string
	reg    *Registry
	sender Sender
}

func (b *base) Role() string { return b.role }

func (b *base) send(p nowlink.Packet) error {
	addr, ok := b.reg.Address(b.role)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAddress, b.role)
	}
	return b.sender.SendPacket(addr, p)
}

func (b *base) sendTo(addr nowlink.Address, p nowlink.Packet) error {
	return b.sender.SendPacket(addr, p)
}

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUsage}, args...)...)
}
