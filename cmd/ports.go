// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/nowbridge/pkg/link"
)

var portsJSON bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports that may be the gateway",
	Long: `List candidate gateway ports in the order the bridge tries them.

Known ESP32 USB bridges (Espressif USB-JTAG, CP210x, CH34x, FTDI) come
first, then other USB serial devices, then ports matching the platform's
naming convention. This is the list used when neither --port nor --url is
given.

Exit codes:
  0 - At least one candidate found
  1 - No candidates found`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsJSON, "json", false, "Print candidates as JSON")
}

func runPorts(cmd *cobra.Command, args []string) error {
	candidates, err := link.ListCandidates()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	if portsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(candidates); err != nil {
			return err
		}
	} else {
		fmt.Printf("Nowbridge - Gateway Candidates\n\n")
		for i, c := range candidates {
			fmt.Printf("%d. %s\n", i+1, c.Name)
			if c.Bridge != "" {
				fmt.Printf("  Bridge: %s\n", c.Bridge)
			}
			if c.USB {
				fmt.Printf("  USB: %s:%s", c.VID, c.PID)
				if c.Serial != "" {
					fmt.Printf(" serial=%s", c.Serial)
				}
				fmt.Println()
			}
			if c.Product != "" {
				fmt.Printf("  Product: %s\n", c.Product)
			}
		}
		fmt.Printf("\n--- Summary ---\n")
		fmt.Printf("Candidates found: %d\n", len(candidates))
	}

	if len(candidates) == 0 {
		if !portsJSON {
			fmt.Printf("No serial ports found. Check the gateway cable and permissions.\n")
		}
		os.Exit(1)
	}
	return nil
}
