// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the nowbridge JSON configuration
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/nowbridge/pkg/devices"
	"github.com/Thermoquad/nowbridge/pkg/hydration"
	"github.com/Thermoquad/nowbridge/pkg/link"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

// Config files larger than this are rejected
const maxFileSize = 1 * 1024 * 1024

// Duration is a time.Duration read from and written as a string like "30m"
type Duration time.Duration

// D returns the value as a time.Duration
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// SerialConfig configures the gateway link
type SerialConfig struct {
	Endpoint      string   `json:"endpoint"` // device path or ws:// bridge URL; empty discovers
	Baud          int      `json:"baud"`
	ReconnectMin  Duration `json:"reconnect_min"`
	ReconnectMax  Duration `json:"reconnect_max"`
	IdlePoll      Duration `json:"idle_poll"`
	ResetSettle   Duration `json:"reset_settle"`
	RecentLines   int      `json:"recent_lines"`
	Username      string   `json:"username"`
	SkipTLSVerify bool     `json:"skip_tls_verify"`
}

// WatchdogConfig configures the gateway liveness watchdog
type WatchdogConfig struct {
	Timeout  Duration `json:"timeout"`
	Interval Duration `json:"interval"`
}

// HydrationConfig configures the hydration state machine
type HydrationConfig struct {
	DrinkThreshold  float32  `json:"drink_threshold_g"`
	RefillThreshold float32  `json:"refill_threshold_g"`
	BottleThreshold float32  `json:"bottle_threshold_g"`
	DailyGoal       float32  `json:"daily_goal_ml"`
	CheckInterval   Duration `json:"check_interval"`
	SleepStart      int      `json:"sleep_start_hour"`
	SleepEnd        int      `json:"sleep_end_hour"`
	StateFile       string   `json:"state_file"` // empty disables persistence
	TickInterval    Duration `json:"tick_interval"`
}

// EffectsConfig configures cross-device animations
type EffectsConfig struct {
	Celebration Duration `json:"celebration"`
	IRBurst     int      `json:"ir_burst"`
	IRGap       Duration `json:"ir_gap"`
}

// HTTPConfig configures the HTTP API
type HTTPConfig struct {
	Listen string `json:"listen"` // empty disables the API
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // console or json
}

// Config is the root configuration
type Config struct {
	Serial    SerialConfig      `json:"serial"`
	Roles     map[string]string `json:"roles"`
	Watchdog  WatchdogConfig    `json:"watchdog"`
	Hydration HydrationConfig   `json:"hydration"`
	Effects   EffectsConfig     `json:"effects"`
	HTTP      HTTPConfig        `json:"http"`
	Log       LogConfig         `json:"log"`
}

// Default returns the stock configuration
func Default() *Config {
	h := hydration.DefaultConfig()
	e := devices.DefaultEffectOptions()
	return &Config{
		Serial: SerialConfig{
			Baud:         link.DefaultBaud,
			ReconnectMin: Duration(link.DefaultReconnectMin),
			ReconnectMax: Duration(link.DefaultReconnectMax),
			IdlePoll:     Duration(link.DefaultIdlePoll),
			ResetSettle:  Duration(link.DefaultResetSettle),
			RecentLines:  link.DefaultRecentLines,
		},
		Roles: map[string]string{
			devices.RoleHydration: "00:00:00:00:00:00",
			devices.RoleLED:       "00:00:00:00:00:00",
			devices.RoleIR:        "00:00:00:00:00:00",
			devices.RoleDisplay:   "00:00:00:00:00:00",
		},
		Watchdog: WatchdogConfig{
			Timeout:  Duration(link.DefaultWatchdogTimeout),
			Interval: Duration(link.DefaultWatchdogInterval),
		},
		Hydration: HydrationConfig{
			DrinkThreshold:  h.DrinkThreshold,
			RefillThreshold: h.RefillThreshold,
			BottleThreshold: h.BottleThreshold,
			DailyGoal:       h.DailyGoal,
			CheckInterval:   Duration(h.CheckInterval),
			SleepStart:      h.SleepStart,
			SleepEnd:        h.SleepEnd,
			TickInterval:    Duration(time.Minute),
		},
		Effects: EffectsConfig{
			Celebration: Duration(e.Celebration),
			IRBurst:     devices.DefaultIRBurst,
			IRGap:       Duration(devices.DefaultIRGap),
		},
		HTTP: HTTPConfig{Listen: "127.0.0.1:8780"},
		Log:  LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads a JSON config file. The file must have a .json extension.
// Fields omitted from the file keep their defaults, so partial configs are
// safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid field
func (c *Config) Validate() error {
	s := c.Serial
	if s.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", s.Baud)
	}
	if s.ReconnectMin <= 0 {
		return fmt.Errorf("serial.reconnect_min must be positive, got %s", s.ReconnectMin.D())
	}
	if s.ReconnectMax < s.ReconnectMin {
		return fmt.Errorf("serial.reconnect_max (%s) must not be below reconnect_min (%s)", s.ReconnectMax.D(), s.ReconnectMin.D())
	}
	if s.IdlePoll <= 0 {
		return fmt.Errorf("serial.idle_poll must be positive, got %s", s.IdlePoll.D())
	}
	if s.ResetSettle < 0 {
		return fmt.Errorf("serial.reset_settle must be non-negative, got %s", s.ResetSettle.D())
	}

	if _, err := c.Addresses(); err != nil {
		return err
	}

	w := c.Watchdog
	if w.Interval <= 0 {
		return fmt.Errorf("watchdog.interval must be positive, got %s", w.Interval.D())
	}
	if w.Timeout <= w.Interval {
		return fmt.Errorf("watchdog.timeout (%s) must exceed the interval (%s)", w.Timeout.D(), w.Interval.D())
	}

	h := c.Hydration
	switch {
	case h.DrinkThreshold <= 0:
		return fmt.Errorf("hydration.drink_threshold_g must be positive, got %g", h.DrinkThreshold)
	case h.RefillThreshold <= 0:
		return fmt.Errorf("hydration.refill_threshold_g must be positive, got %g", h.RefillThreshold)
	case h.BottleThreshold < 0:
		return fmt.Errorf("hydration.bottle_threshold_g must be non-negative, got %g", h.BottleThreshold)
	case h.DailyGoal <= 0:
		return fmt.Errorf("hydration.daily_goal_ml must be positive, got %g", h.DailyGoal)
	case h.CheckInterval <= 0:
		return fmt.Errorf("hydration.check_interval must be positive, got %s", h.CheckInterval.D())
	case h.SleepStart < 0 || h.SleepStart > 23:
		return fmt.Errorf("hydration.sleep_start_hour must be 0-23, got %d", h.SleepStart)
	case h.SleepEnd < 0 || h.SleepEnd > 23:
		return fmt.Errorf("hydration.sleep_end_hour must be 0-23, got %d", h.SleepEnd)
	case h.TickInterval <= 0:
		return fmt.Errorf("hydration.tick_interval must be positive, got %s", h.TickInterval.D())
	}

	if c.Effects.IRBurst < 1 {
		return fmt.Errorf("effects.ir_burst must be at least 1, got %d", c.Effects.IRBurst)
	}
	if c.Effects.IRGap < 0 {
		return fmt.Errorf("effects.ir_gap must be non-negative, got %s", c.Effects.IRGap.D())
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Addresses parses the role map. Unconfigured roles keep the zero address.
func (c *Config) Addresses() (map[string]nowlink.Address, error) {
	roles := make([]string, 0, len(c.Roles))
	for role := range c.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	out := make(map[string]nowlink.Address, len(c.Roles))
	for _, role := range roles {
		addr, err := nowlink.ParseAddress(c.Roles[role])
		if err != nil {
			return nil, fmt.Errorf("roles.%s: %w", role, err)
		}
		out[role] = addr
	}
	return out, nil
}

// LinkOptions returns the link manager options. Open, Discover, Clock and
// Stats are left for the caller.
func (c *Config) LinkOptions(password string) link.Options {
	return link.Options{
		Endpoint:         c.Serial.Endpoint,
		Baud:             c.Serial.Baud,
		ReconnectMin:     c.Serial.ReconnectMin.D(),
		ReconnectMax:     c.Serial.ReconnectMax.D(),
		IdlePoll:         c.Serial.IdlePoll.D(),
		ResetSettle:      c.Serial.ResetSettle.D(),
		RecentLines:      c.Serial.RecentLines,
		WatchdogTimeout:  c.Watchdog.Timeout.D(),
		WatchdogInterval: c.Watchdog.Interval.D(),
		Bridge: link.BridgeOptions{
			Username:      c.Serial.Username,
			Password:      password,
			SkipTLSVerify: c.Serial.SkipTLSVerify,
		},
	}
}

// Machine returns the hydration state machine thresholds
func (h HydrationConfig) Machine() hydration.Config {
	return hydration.Config{
		DrinkThreshold:  h.DrinkThreshold,
		RefillThreshold: h.RefillThreshold,
		BottleThreshold: h.BottleThreshold,
		DailyGoal:       h.DailyGoal,
		CheckInterval:   h.CheckInterval.D(),
		SleepStart:      h.SleepStart,
		SleepEnd:        h.SleepEnd,
	}
}

// Options returns the effect driver options
func (e EffectsConfig) Options() devices.EffectOptions {
	return devices.EffectOptions{Celebration: e.Celebration.D()}
}
