// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/nowbridge/pkg/config"
	"github.com/Thermoquad/nowbridge/pkg/link"
)

// loadConfig reads the config file, if any, and applies explicitly set flags
// on top of it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Endpoint = portName
	}
	if flags.Changed("url") {
		cfg.Serial.Endpoint = wsURL
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("username") {
		cfg.Serial.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Serial.SkipTLSVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("NOWBRIDGE_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// linkOptions builds manager options, asking for the bridge password when a
// WebSocket endpoint with a username is configured
func linkOptions(cfg *config.Config) (link.Options, error) {
	password := ""
	if link.IsBridgeURL(cfg.Serial.Endpoint) && cfg.Serial.Username != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return link.Options{}, err
		}
	}
	return cfg.LinkOptions(password), nil
}

// connInfo describes where the link will connect
func connInfo(cfg *config.Config) string {
	switch {
	case cfg.Serial.Endpoint == "":
		return "Serial: auto-discover"
	case link.IsBridgeURL(cfg.Serial.Endpoint):
		return fmt.Sprintf("WebSocket: %s", cfg.Serial.Endpoint)
	default:
		return fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Endpoint, cfg.Serial.Baud)
	}
}

// startLink runs m in the background and returns a function that stops it
// and waits for the reader to exit
func startLink(ctx context.Context, m *link.Manager) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// waitConnected polls until m is connected or timeout passes
func waitConnected(ctx context.Context, m *link.Manager, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for !m.Connected() {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
	return true
}
