// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Nowbridge - ESP-NOW gateway bridge
//
// Drives ESP-NOW peripherals through a serial radio gateway and runs the
// hydration reminder logic on the host.

package main

import (
	"os"

	"github.com/Thermoquad/nowbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
