// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
)

// USB bridges found on ESP32 development boards, keyed by VID:PID
var espBridges = map[string]string{
	"10C4:EA60": "CP210x",
	"1A86:7523": "CH340",
	"1A86:55D4": "CH343",
	"303A:1001": "ESP32 USB-JTAG",
}

// Device name patterns tried per platform when no endpoint is configured
var platformPatterns = map[string][]string{
	"linux": {
		"/dev/ttyUSB*",
		"/dev/ttyACM*",
		"/dev/serial/by-id/*",
	},
	"darwin": {
		"/dev/tty.usbserial*",
		"/dev/tty.SLAB_USBtoUART*",
		"/dev/cu.usbserial*",
		"/dev/tty.usbmodem*",
	},
	"windows": {
		"COM*",
	},
}

// Candidate is a serial device that may be the gateway
type Candidate struct {
	Name    string `json:"name"`
	USB     bool   `json:"usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
	Bridge  string `json:"bridge,omitempty"` // known ESP32 USB bridge, if recognized
}

// ListCandidates enumerates serial ports matching the platform's naming
// convention, known ESP32 bridges first.
func ListCandidates() ([]Candidate, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var extra []string
	if runtime.GOOS == "linux" {
		// by-id symlinks are not reported by the enumerator
		extra, _ = filepath.Glob("/dev/serial/by-id/*")
	}

	return filterCandidates(runtime.GOOS, details, extra), nil
}

// DiscoverEndpoints returns candidate endpoint names in connection order
func DiscoverEndpoints() []string {
	candidates, err := ListCandidates()
	if err != nil {
		log.Warn().Err(err).Msg("serial port enumeration failed")
		return nil
	}

	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return names
}

func filterCandidates(goos string, details []*enumerator.PortDetails, extra []string) []Candidate {
	seen := map[string]bool{}
	out := []Candidate{}

	for _, d := range details {
		if d == nil || !matchesPlatform(goos, d.Name) || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		c := Candidate{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     strings.ToUpper(d.VID),
			PID:     strings.ToUpper(d.PID),
			Serial:  d.SerialNumber,
			Product: d.Product,
		}
		if d.IsUSB {
			c.Bridge = espBridges[c.VID+":"+c.PID]
		}
		out = append(out, c)
	}

	for _, name := range extra {
		if seen[name] || !matchesPlatform(goos, name) {
			continue
		}
		if target, err := filepath.EvalSymlinks(name); err == nil && seen[target] {
			continue
		}
		seen[name] = true
		out = append(out, Candidate{Name: name})
	}

	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := out[i].Bridge != "", out[j].Bridge != ""
		if bi != bj {
			return bi
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func matchesPlatform(goos, name string) bool {
	for _, pattern := range platformPatterns[goos] {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
