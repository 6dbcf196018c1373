// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/nowbridge/pkg/devices"
)

var (
	sendTimeout int
	sendLinger  time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <role> <subcommand> [args] | send <address> <hexpayload>",
	Short: "Send one command and exit",
	Long: `Route a single command through the bridge and exit.

The command uses the same syntax as the interactive console:

  nowbridge send led on
  nowbridge send ir send F7F00F
  nowbridge send ono text hello 5
  nowbridge send scale tare
  nowbridge send AA:BB:CC:DD:EE:FF 02100000803F

Roles may be given by name (led_ble, ir_remote, ono_display, hydration) or
short alias (led, ir, ono, display, oled, scale).

Exit codes:
  0 - Command sent
  1 - Command rejected or send failed
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 10, "Seconds to wait for the gateway connection")
	sendCmd.Flags().DurationVar(&sendLinger, "linger", 500*time.Millisecond, "Time to keep the link open after sending")
}

func runSend(cmd *cobra.Command, args []string) error {
	b, err := newBridge(appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer b.Close()

	ctx := context.Background()
	stop := startLink(ctx, b.link)
	defer stop()

	if !waitConnected(ctx, b.link, time.Duration(sendTimeout)*time.Second) {
		fmt.Fprintf(os.Stderr, "Connection error: gateway not reachable within %d seconds\n", sendTimeout)
		stop()
		os.Exit(2)
	}

	line := strings.Join(args, " ")
	if err := b.router.Route(line); err != nil {
		if errors.Is(err, devices.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "SEND FAILED: %v\n", err)
		}
		stop()
		os.Exit(1)
	}

	// Give the gateway a moment to answer with OK/ERR before closing
	time.Sleep(sendLinger)
	for _, l := range b.link.Lines(0) {
		if l.Kind == "ok" || l.Kind == "error" {
			fmt.Println(l.Text)
		}
	}
	fmt.Printf("Sent: %s\n", line)
	return nil
}
