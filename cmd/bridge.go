// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/config"
	"github.com/Thermoquad/nowbridge/pkg/devices"
	"github.com/Thermoquad/nowbridge/pkg/hydration"
	"github.com/Thermoquad/nowbridge/pkg/link"
	"github.com/Thermoquad/nowbridge/pkg/presence"
	"github.com/Thermoquad/nowbridge/pkg/router"
)

// bridge is the fully wired engine shared by run, console and send
type bridge struct {
	link     *link.Manager
	registry *devices.Registry
	machine  *hydration.Machine
	effects  *devices.Effects
	queue    *devices.EffectQueue
	router   *router.Router
	home     *presence.Toggle
}

// newBridge wires the link, handlers, hydration machine and router. The link
// is not started.
func newBridge(cfg *config.Config) (*bridge, error) {
	addrs, err := cfg.Addresses()
	if err != nil {
		return nil, err
	}
	opts, err := linkOptions(cfg)
	if err != nil {
		return nil, err
	}

	clk := clock.Real{}
	b := &bridge{
		link:     link.NewManager(opts, nil),
		registry: devices.NewRegistry(addrs),
		home:     presence.NewToggle(true),
	}

	eff := cfg.Effects
	b.effects = devices.NewEffects(b.registry, clk, eff.Options())
	b.queue = devices.NewEffectQueue(b.effects, devices.DefaultQueueSize)
	b.machine = hydration.New(cfg.Hydration.Machine(), clk, b.home, b.queue)

	if path := cfg.Hydration.StateFile; path != "" {
		store := hydration.NewStore(path)
		if err := store.LoadInto(b.machine); err != nil {
			b.queue.Close()
			return nil, fmt.Errorf("failed to restore hydration state: %w", err)
		}
		b.machine.SetStore(store)
		// Indicators of the restored state run before any handler exists;
		// reapplyOnConnect shows them once the link is up
		b.queue.Sync()
		log.Info().Str("path", path).Str("phase", b.machine.State().Phase.String()).Msg("hydration state restored")
	}

	b.registry.Register(devices.NewLED(b.registry, b.link))
	b.registry.Register(devices.NewIR(b.registry, b.link, clk, eff.IRBurst, eff.IRGap.D()))
	b.registry.Register(devices.NewDisplay(b.registry, b.link))
	b.registry.Register(devices.NewHydration(b.registry, b.link, b.machine, b.home, clk))

	b.link.SetDispatcher(b.registry)
	b.router = router.New(b.registry, b.link)

	for _, role := range b.registry.Roles() {
		if _, ok := b.registry.Address(role); !ok {
			log.Warn().Str("role", role).Msg("no address configured, commands for this role will fail")
		}
	}
	return b, nil
}

// reapplyOnConnect shows the restored hydration indicators once the gateway
// link first comes up
func (b *bridge) reapplyOnConnect(ctx context.Context) {
	for !waitConnected(ctx, b.link, time.Minute) {
		if ctx.Err() != nil {
			return
		}
	}
	b.machine.Reapply()
}

// Close drains queued indicator calls and stops running animations
func (b *bridge) Close() {
	b.queue.Close()
	b.effects.Close()
}
