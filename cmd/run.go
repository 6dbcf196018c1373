// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/nowbridge/pkg/api"
)

var runListen string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge as a service",
	Long: `Run the bridge until interrupted.

Keeps the gateway link up (reconnecting and resetting the gateway when it
goes quiet), dispatches incoming frames to the device handlers, evaluates
the hydration reminder on a timer and serves the HTTP API.

Under systemd (Type=notify) readiness is reported once the API listener is
bound, and WATCHDOG=1 pings are sent when WatchdogSec is set.`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runListen, "listen", "", "HTTP API listen address (overrides config, \"off\" disables)")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if cmd.Flags().Changed("listen") {
		cfg.HTTP.Listen = runListen
		if runListen == "off" {
			cfg.HTTP.Listen = ""
		}
	}

	b, err := newBridge(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("connection", connInfo(cfg)).Strs("roles", b.registry.Roles()).Msg("nowbridge starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := b.link.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		b.link.Watchdog().Run(ctx)
		return nil
	})

	g.Go(func() error {
		tickHydration(ctx, b, cfg.Hydration.TickInterval.D())
		return nil
	})

	g.Go(func() error {
		b.reapplyOnConnect(ctx)
		return nil
	})

	if cfg.HTTP.Listen != "" {
		srv := &api.Server{
			Link:      b.link,
			Commands:  b.router,
			Hydration: b.machine,
			Presence:  b.home,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(ctx, cfg.HTTP.Listen, notifyReady); err != nil {
				return fmt.Errorf("HTTP API: %w", err)
			}
			return nil
		})
	} else {
		notifyReady()
	}

	g.Go(func() error {
		systemdWatchdog(ctx)
		return nil
	})

	err = g.Wait()
	notify(daemon.SdNotifyStopping)
	log.Info().Msg("nowbridge stopped")
	return err
}

// tickHydration re-evaluates the reminder even when the scale is silent
func tickHydration(ctx context.Context, b *bridge, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.machine.Tick()
		}
	}
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn().Err(err).Str("state", state).Msg("systemd notify failed")
		return
	}
	if sent {
		log.Debug().Str("state", state).Msg("systemd notified")
	}
}

func notifyReady() {
	notify(daemon.SdNotifyReady)
}

// systemdWatchdog pings the service manager at half the configured interval
func systemdWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}

	t := time.NewTicker(interval / 2)
	defer t.Stop()
	log.Info().Dur("interval", interval).Msg("systemd watchdog enabled")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			notify(daemon.SdNotifyWatchdog)
		}
	}
}
