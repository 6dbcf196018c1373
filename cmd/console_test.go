// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/nowbridge/pkg/config"
	"github.com/Thermoquad/nowbridge/pkg/link"
)

func testConsole(t *testing.T) consoleModel {
	t.Helper()
	cfg := config.Default()
	cfg.Serial.Endpoint = "/dev/ttyTEST0"
	cfg.Roles["led_ble"] = "AA:BB:CC:DD:EE:02"

	b, err := newBridge(cfg)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return initialConsoleModel(b, connInfo(cfg))
}

func TestConsoleHistory(t *testing.T) {
	m := testConsole(t)

	m.pushHistory("led on")
	m.pushHistory("led on")
	m.pushHistory("ir send green")
	assert.Equal(t, []string{"led on", "ir send green"}, m.history)

	m.recall(-1)
	assert.Equal(t, "ir send green", m.input.Value())
	m.recall(-1)
	m.recall(-1)
	assert.Equal(t, "led on", m.input.Value())
	m.recall(1)
	m.recall(1)
	assert.Empty(t, m.input.Value(), "past the newest entry clears the input")
}

func TestConsoleLogDecodesFrames(t *testing.T) {
	m := testConsole(t)

	updated, _ := m.Update(consoleLinesMsg{
		{Time: time.Now(), Text: "RX:AA:BB:CC:DD:EE:01:01210000FA43", Kind: "data"},
		{Time: time.Now(), Text: "HEARTBEAT", Kind: "heartbeat"},
		{Time: time.Now(), Text: "ERR:send failed", Kind: "error"},
	})
	m = updated.(consoleModel)

	require.Len(t, m.log, 2)
	assert.True(t, strings.HasPrefix(m.log[0].message, "rx AA:BB:CC:DD:EE:01 HYDRATION"), m.log[0].message)
	assert.True(t, m.log[1].isError)
}

func TestConsoleCommandResult(t *testing.T) {
	m := testConsole(t)

	updated, _ := m.Update(commandResultMsg{command: "led on", err: link.ErrNotConnected})
	m = updated.(consoleModel)
	require.Len(t, m.log, 1)
	assert.True(t, m.log[0].isError)
	assert.Contains(t, m.log[0].message, "gateway not connected")

	updated, _ = m.Update(commandResultMsg{command: "led off"})
	m = updated.(consoleModel)
	assert.Equal(t, "sent: led off", m.log[1].message)
}

func TestConsoleEnterRoutesCommand(t *testing.T) {
	m := testConsole(t)
	m.input.SetValue("led on")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(consoleModel)
	require.NotNil(t, cmd)
	assert.Empty(t, m.input.Value())
	assert.Equal(t, []string{"led on"}, m.history)

	res, ok := cmd().(commandResultMsg)
	require.True(t, ok)
	assert.True(t, errors.Is(res.err, link.ErrNotConnected), "link was never started")
}

func TestConsoleRoleListFillsInput(t *testing.T) {
	m := testConsole(t)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(consoleModel)
	assert.Equal(t, focusRoles, m.focused)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(consoleModel)
	assert.Equal(t, focusInput, m.focused)
	assert.Equal(t, "hydration ", m.input.Value())
}

func TestConsoleView(t *testing.T) {
	m := testConsole(t)
	out := m.View()
	assert.Contains(t, out, "NOWBRIDGE CONSOLE")
	assert.Contains(t, out, "HYDRATION")
	assert.Contains(t, out, "(no events yet)")
}
