// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/nowbridge/pkg/link"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive TUI for driving the peripherals",
	Long: `Drive the ESP-NOW peripherals from an interactive terminal UI.

The console runs the full bridge (link, device handlers, hydration logic)
and adds:
  - A command line accepting the same syntax as "nowbridge send"
  - A role list showing configured addresses (Enter inserts the role)
  - Live gateway lines
  - The hydration state and link statistics

Tab switches between the role list and the command line. Up/Down recall
command history while the command line is focused.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	b, err := newBridge(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	m := initialConsoleModel(b, connInfo(cfg))
	p := tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, lines := b.link.Subscribe()
	defer b.link.Unsubscribe(id)
	go batchLines(ctx, lines, p)

	stop := startLink(ctx, b.link)
	go b.link.Watchdog().Run(ctx)
	go tickHydration(ctx, b, cfg.Hydration.TickInterval.D())
	go b.reapplyOnConnect(ctx)

	_, err = p.Run()
	cancel()
	stop()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// batchLines forwards gateway lines to the TUI at a fixed rate so a chatty
// gateway cannot flood the update loop
func batchLines(ctx context.Context, lines <-chan link.Line, p *tea.Program) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var batch consoleLinesMsg
	for {
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			batch = append(batch, l)
		case <-ticker.C:
			if len(batch) > 0 {
				p.Send(batch)
				batch = nil
			}
		}
	}
}
