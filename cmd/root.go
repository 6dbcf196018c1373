// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/nowbridge/pkg/config"
	"github.com/Thermoquad/nowbridge/pkg/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	logLevel   string
	logFormat  string

	// appConfig is loaded before any subcommand runs
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nowbridge",
	Short: "ESP-NOW gateway bridge",
	Long: `Nowbridge - drives ESP-NOW peripherals through a serial radio gateway.

The gateway forwards every ESP-NOW frame it hears as an RX: line and sends
every TX: line it receives. Nowbridge decodes those frames for the hydration
monitor, LED strip, IR lamp and ONO display, runs the hydration reminder
logic, and exposes a command router, an interactive console and an HTTP API.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Neither:   the first ESP32 USB bridge found is used

For WebSocket authentication, the password is read from the NOWBRIDGE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg
		return logging.Setup(cfg.Log.Level, cfg.Log.Format)
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (default: discover)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket bridge flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console or json)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
