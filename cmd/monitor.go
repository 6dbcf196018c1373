// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/nowbridge/pkg/link"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

var (
	monitorErrorsOnly    bool
	monitorStatsInterval int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display gateway traffic in human-readable format",
	Long: `Continuously decode and display gateway lines as they arrive.

Every RX frame is decoded and printed with its sender, device type, command
and value. Gateway status lines (OK, ERR, HEARTBEAT, boot messages) are
printed as-is. Malformed RX lines and packets with anomalous values are
highlighted.

Use --errors-only to hide well-formed traffic, and --stats-interval to print
periodic statistics. The monitor never sends anything.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorErrorsOnly, "errors-only", false, "Show only malformed lines, gateway errors and anomalies")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 0, "Statistics interval in seconds (0 disables)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	opts, err := linkOptions(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Nowbridge - Gateway Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo(cfg))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	mgr := link.NewManager(opts, link.DispatcherFunc(func(p nowlink.Packet, from nowlink.Address) {
		anomalies := nowlink.ValidatePacket(p)
		if len(anomalies) > 0 {
			printAnomalies(from, p, anomalies)
			return
		}
		if !monitorErrorsOnly {
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), nowlink.FormatPacket(from, p))
		}
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, lines := mgr.Subscribe()
	defer mgr.Unsubscribe(id)
	stopLink := startLink(ctx, mgr)
	defer stopLink()

	var statsC <-chan time.Time
	if monitorStatsInterval > 0 {
		t := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
		defer t.Stop()
		statsC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(mgr.Stats().String())
			return nil
		case l := <-lines:
			printLine(l)
		case <-statsC:
			fmt.Println()
			fmt.Print(mgr.Stats().String())
			fmt.Println()
		}
	}
}

// printLine prints a non-data gateway line; data lines are printed decoded
// by the dispatcher
func printLine(l link.Line) {
	timestamp := l.Time.Format("15:04:05.000")
	switch l.Kind {
	case "data":
		return
	case "malformed":
		fmt.Printf("[%s] \033[1;31mMALFORMED:\033[0m %q\n", timestamp, l.Text)
	case "error":
		fmt.Printf("[%s] \033[1;31m%s\033[0m\n", timestamp, l.Text)
	default:
		if !monitorErrorsOnly {
			fmt.Printf("[%s] %s\n", timestamp, l.Text)
		}
	}
}

// printAnomalies prints a packet whose values fail validation
func printAnomalies(from nowlink.Address, p nowlink.Packet, anomalies []nowlink.ValidationError) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %s\n", timestamp, nowlink.FormatPacket(from, p))
	for i, a := range anomalies {
		fmt.Printf("  Issue %d: %s\n", i+1, a.Message)
	}
}
