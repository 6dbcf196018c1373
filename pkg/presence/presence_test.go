// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package presence

import "testing"

func TestProviders(t *testing.T) {
	if !Static(true).IsHome() || Static(false).IsHome() {
		t.Error("Static returned the wrong value")
	}

	calls := 0
	f := Func(func() bool { calls++; return true })
	if !f.IsHome() || calls != 1 {
		t.Errorf("Func: got calls=%d", calls)
	}

	tg := NewToggle(true)
	if !tg.IsHome() {
		t.Fatal("NewToggle(true).IsHome() = false")
	}
	if tg.Set(true) {
		t.Error("Set(true) on a home toggle reported a change")
	}
	if !tg.Set(false) {
		t.Error("Set(false) did not report a change")
	}
	if tg.IsHome() {
		t.Error("toggle still home after Set(false)")
	}
}
