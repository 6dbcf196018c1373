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
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the link by waiting for a valid RX frame",
	Long: `Wait for a valid RX frame from the gateway until timeout.

This command connects to the gateway and waits for any RX line that parses
and decodes into a known packet. Status lines, garbage and malformed frames
are counted but otherwise ignored.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error

Useful for checking that a peripheral and the gateway are paired.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

type receivedPacket struct {
	from nowlink.Address
	p    nowlink.Packet
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	opts, err := linkOptions(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	packetChan := make(chan receivedPacket, 1)
	mgr := link.NewManager(opts, link.DispatcherFunc(func(p nowlink.Packet, from nowlink.Address) {
		select {
		case packetChan <- receivedPacket{from: from, p: p}:
		default:
		}
	}))

	fmt.Printf("Nowbridge - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo(cfg))
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)

	ctx := context.Background()
	stop := startLink(ctx, mgr)
	defer stop()

	timeout := time.Duration(packetTestTimeout) * time.Second
	if !waitConnected(ctx, mgr, timeout) {
		fmt.Fprintf(os.Stderr, "Connection error: gateway not reachable within %d seconds\n", packetTestTimeout)
		stop()
		os.Exit(2)
	}
	fmt.Printf("Waiting for valid RX frame...\n\n")

	// Wait for packet or timeout
	select {
	case rp := <-packetChan:
		snap := mgr.Stats().Snapshot()
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  From: %s\n", rp.from)
		fmt.Printf("  Device: %s\n", nowlink.FormatDeviceType(rp.p.Device))
		fmt.Printf("  Command: %s (0x%02X)\n", rp.p.Name(), rp.p.Command)
		fmt.Printf("  Value: %s\n", nowlink.FormatValue(rp.p))
		if skipped := snap.TotalLines - snap.DataLines; skipped > 0 {
			fmt.Printf("(skipped %d non-data lines)\n", skipped)
		}
		stop()
		os.Exit(0)

	case <-time.After(timeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
		stop()
		os.Exit(1)
	}

	return nil
}
