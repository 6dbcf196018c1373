// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

// Default display durations
const (
	DefaultRainbowDuration = 10 * time.Second
	DefaultColorDuration   = 10 * time.Second
	DefaultTextDuration    = 5 * time.Second
	defaultText            = "Hello"
)

// Display drives the ONO OLED and RGB display
type Display struct {
	base
}

// NewDisplay creates the display handler
func NewDisplay(reg *Registry, s Sender) *Display {
	return &Display{base{role: RoleDisplay, reg: reg, sender: s}}
}

// DeviceType returns nowlink.DeviceIR, which the display shares
func (d *Display) DeviceType() nowlink.DeviceType { return nowlink.DeviceIR }

func seconds(d time.Duration) float32 {
	return float32(d.Seconds())
}

// Rainbow runs the rainbow animation for d
func (d *Display) Rainbow(dur time.Duration) error {
	return d.send(nowlink.NewDisplayRainbow(seconds(dur)))
}

// Color shows a solid color for dur
func (d *Display) Color(c nowlink.RGB, dur time.Duration) error {
	return d.send(nowlink.NewDisplayColor(c, seconds(dur)))
}

// Text shows text for dur, scrolling if long. Text is trimmed and cut to
// nowlink.MaxTextLength bytes; empty text is rejected.
func (d *Display) Text(text string, dur time.Duration) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return usagef("display text is empty")
	}
	return d.send(nowlink.NewDisplayText(text, seconds(dur)))
}

// HandlePacket logs packets from the display
func (d *Display) HandlePacket(p nowlink.Packet, from nowlink.Address) {
	log.Info().Str("addr", from.String()).Str("cmd", p.Name()).Str("value", nowlink.FormatValue(p)).Msg("display")
}

func clampByte(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

func parseSeconds(s string) (time.Duration, error) {
	n, err := strconv.ParseFloat(s, 32)
	if err != nil || n < 0 {
		return 0, usagef("invalid duration %q", s)
	}
	return time.Duration(n * float64(time.Second)), nil
}

const displayUsage = "ono <rainbow [sec]|color <r> <g> <b> [sec]|text <words...> [sec]>"

// HandleUserInput runs a display subcommand
func (d *Display) HandleUserInput(args []string) error {
	if len(args) == 0 {
		return usagef(displayUsage)
	}

	switch strings.ToLower(args[0]) {
	case "rainbow":
		dur := DefaultRainbowDuration
		if len(args) > 1 {
			var err error
			if dur, err = parseSeconds(args[1]); err != nil {
				return err
			}
		}
		return d.Rainbow(dur)

	case "color":
		if len(args) < 4 {
			return usagef("ono color <r> <g> <b> [sec]")
		}
		var rgb [3]uint8
		for i := range rgb {
			v, err := strconv.Atoi(args[1+i])
			if err != nil {
				return usagef("ono color: invalid component %q", args[1+i])
			}
			rgb[i] = clampByte(v)
		}
		dur := DefaultColorDuration
		if len(args) > 4 {
			var err error
			if dur, err = parseSeconds(args[4]); err != nil {
				return err
			}
		}
		return d.Color(nowlink.RGB{R: rgb[0], G: rgb[1], B: rgb[2]}, dur)

	case "text":
		words := args[1:]
		dur := DefaultTextDuration
		if n := len(words); n > 0 {
			if secs, err := strconv.Atoi(words[n-1]); err == nil && secs >= 0 {
				dur = time.Duration(secs) * time.Second
				words = words[:n-1]
			}
		}
		text := strings.Join(words, " ")
		if strings.TrimSpace(text) == "" {
			text = defaultText
		}
		return d.Text(text, dur)
	}
	return usagef(displayUsage)
}
