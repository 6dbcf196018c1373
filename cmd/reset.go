// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/nowbridge/pkg/link"
)

var resetTimeout int

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the gateway and wait for it to come back",
	Long: `Pulse the gateway's reset line (DTR) and wait for boot output.

Connecting already resets the gateway once; this command sends a second
pulse on the live connection, the same one the watchdog uses when the
gateway goes quiet, and reports the first recognized line received after it.

Exit codes:
  0 - Gateway answered after reset
  1 - No recognized line before timeout
  2 - Connection error or transport without a reset line`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().IntVar(&resetTimeout, "timeout", 10, "Timeout in seconds")
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	opts, err := linkOptions(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	mgr := link.NewManager(opts, nil)

	fmt.Printf("Nowbridge - Gateway Reset\n")
	fmt.Printf("Connection: %s\n", connInfo(cfg))

	ctx := context.Background()
	stop := startLink(ctx, mgr)
	defer stop()

	timeout := time.Duration(resetTimeout) * time.Second
	if !waitConnected(ctx, mgr, timeout) {
		fmt.Fprintf(os.Stderr, "Connection error: gateway not reachable within %d seconds\n", resetTimeout)
		stop()
		os.Exit(2)
	}

	id, lines := mgr.Subscribe()
	defer mgr.Unsubscribe(id)

	start := time.Now()
	if err := mgr.ResetGateway(); err != nil {
		fmt.Fprintf(os.Stderr, "RESET FAILED: %v\n", err)
		stop()
		os.Exit(2)
	}
	fmt.Printf("Reset pulse sent, waiting for gateway...\n\n")

	deadline := time.After(timeout)
	for {
		select {
		case l := <-lines:
			if l.Kind == "garbage" || l.Kind == "malformed" {
				continue
			}
			fmt.Printf("SUCCESS: gateway answered after %s\n", time.Since(start).Round(time.Millisecond))
			fmt.Printf("  Line: %s (%s)\n", l.Text, l.Kind)
			stop()
			os.Exit(0)
		case <-deadline:
			fmt.Fprintf(os.Stderr, "TIMEOUT: no gateway output within %d seconds of reset\n", resetTimeout)
			stop()
			os.Exit(1)
		}
	}
}
