// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/nowbridge/pkg/hydration"
	"github.com/Thermoquad/nowbridge/pkg/link"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxConsoleLog     = 200
	maxHistory        = 50
	consoleLogVisible = 10
)

// Focus states
const (
	focusInput = iota
	focusRoles
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// roleItem is a configured peripheral in the role list
type roleItem struct {
	role    string
	address string
}

// Implement list.Item interface
func (r roleItem) Title() string       { return r.role }
func (r roleItem) Description() string { return r.address }
func (r roleItem) FilterValue() string { return r.role }

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// consoleModel is the Bubble Tea model for the console TUI
type consoleModel struct {
	bridge   *bridge
	connInfo string

	roles    list.Model
	input    textinput.Model
	focused  int
	history  []string
	histPos  int
	log      []logEntry
	state    hydration.State
	stats    nowlink.StatsSnapshot
	status   link.Status
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

type consoleLinesMsg []link.Line

type commandResultMsg struct {
	command string
	err     error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialConsoleModel(b *bridge, connInfo string) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "led on"
	ti.Prompt = "> "
	ti.CharLimit = 200
	ti.Width = 60
	ti.Focus()

	var items []list.Item
	for _, role := range b.registry.Roles() {
		addr := "(no address)"
		if a, ok := b.registry.Address(role); ok {
			addr = a.String()
		}
		items = append(items, roleItem{role: role, address: addr})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	roles := list.New(items, delegate, 26, 10)
	roles.Title = "Roles"
	roles.SetShowStatusBar(false)
	roles.SetShowHelp(false)
	roles.SetFilteringEnabled(false)

	return consoleModel{
		bridge:   b,
		connInfo: connInfo,
		roles:    roles,
		input:    ti,
		focused:  focusInput,
		log:      make([]logEntry, 0),
		state:    b.machine.State(),
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, consoleTickCmd())
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

// routeCmd runs a command off the update loop
func (m consoleModel) routeCmd(line string) tea.Cmd {
	r := m.bridge.router
	return func() tea.Msg {
		return commandResultMsg{command: line, err: r.Route(line)}
	}
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(m.width-8, 10)

	case consoleTickMsg:
		m.state = m.bridge.machine.State()
		m.stats = m.bridge.link.Stats().Snapshot()
		m.status = m.bridge.link.Status()
		return m, consoleTickCmd()

	case consoleLinesMsg:
		for _, l := range msg {
			m.addLine(l)
		}

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.command, msg.err), true)
		} else {
			m.addLogEntry("sent: "+msg.command, false)
		}
		m.state = m.bridge.machine.State()
	}

	var cmd tea.Cmd
	if m.focused == focusInput {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m consoleModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil

	case "enter":
		if m.focused == focusRoles {
			if item, ok := m.roles.SelectedItem().(roleItem); ok {
				m.input.SetValue(item.role + " ")
				m.input.CursorEnd()
			}
			m.toggleFocus()
			return m, nil
		}
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		if line == "quit" || line == "exit" {
			m.quitting = true
			return m, tea.Quit
		}
		m.pushHistory(line)
		m.input.SetValue("")
		return m, m.routeCmd(line)

	case "up", "down":
		if m.focused == focusRoles {
			var cmd tea.Cmd
			m.roles, cmd = m.roles.Update(msg)
			return m, cmd
		}
		if msg.String() == "up" {
			m.recall(-1)
		} else {
			m.recall(1)
		}
		return m, nil
	}

	if m.focused == focusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *consoleModel) toggleFocus() {
	if m.focused == focusInput {
		m.focused = focusRoles
		m.input.Blur()
	} else {
		m.focused = focusInput
		m.input.Focus()
	}
}

//////////////////////////////////////////////////////////////
// History and Log
//////////////////////////////////////////////////////////////

func (m *consoleModel) pushHistory(line string) {
	if n := len(m.history); n == 0 || m.history[n-1] != line {
		m.history = append(m.history, line)
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
	}
	m.histPos = len(m.history)
}

// recall moves through history; moving past the newest entry clears input
func (m *consoleModel) recall(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.histPos = min(max(m.histPos+delta, 0), len(m.history))
	if m.histPos == len(m.history) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.histPos])
	m.input.CursorEnd()
}

func (m *consoleModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{timestamp: time.Now(), message: message, isError: isError})
	if len(m.log) > maxConsoleLog {
		m.log = m.log[len(m.log)-maxConsoleLog:]
	}
}

// addLine logs a gateway line, decoding RX frames
func (m *consoleModel) addLine(l link.Line) {
	switch l.Kind {
	case "data":
		if f, ok := nowlink.ParseLine(l.Text); ok {
			if p, err := nowlink.Decode(f.Payload); err == nil {
				m.addLogEntry("rx "+nowlink.FormatPacket(f.Address, p), false)
				return
			}
		}
		m.addLogEntry(l.Text, false)
	case "heartbeat", "debug":
		// too chatty for the console
	case "error", "malformed":
		m.addLogEntry(l.Text, true)
	default:
		m.addLogEntry(l.Text, false)
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("NOWBRIDGE CONSOLE"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if !m.status.Connected {
		connStatus = warningStyle.Render("CONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | esc=quit Tab=switch", connStatus)))
	s.WriteString("\n\n")

	// Role list | hydration panel
	leftWidth := 28
	rightWidth := max(m.width-leftWidth-6, 20)
	rolesBox := boxStyle
	if m.focused == focusRoles {
		rolesBox = focusedBoxStyle
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		rolesBox.Width(leftWidth).Render(m.roles.View()),
		" ",
		boxStyle.Width(rightWidth).Render(m.renderHydration()),
	))
	s.WriteString("\n")

	s.WriteString(boxStyle.Width(m.width - 4).Render(m.renderStatistics()))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.renderLog()))
	s.WriteString("\n")

	inputBox := boxStyle
	if m.focused == focusInput {
		inputBox = focusedBoxStyle
	}
	s.WriteString(inputBox.Width(m.width - 4).Render(m.input.View()))
	return s.String()
}

func (m consoleModel) renderHydration() string {
	st := m.state
	var s strings.Builder
	s.WriteString(labelStyle.Render("HYDRATION"))
	s.WriteString("\n")

	phase := valueStyle.Render(st.Phase.String())
	if st.AlertLevel > 0 || st.BottleMissing {
		phase = errorStyle.Render(st.Phase.String())
	}
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Phase:"), phase,
		labelStyle.Render("Alert:"), valueStyle.Render(fmt.Sprintf("%d", st.AlertLevel))))
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Weight:"), valueStyle.Render(fmt.Sprintf("%.1f g", st.Weight)),
		labelStyle.Render("Baseline:"), valueStyle.Render(fmt.Sprintf("%.1f g", st.Baseline))))

	goal := m.bridge.machine.Config().DailyGoal
	s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
		labelStyle.Render("Today:"), valueStyle.Render(fmt.Sprintf("%.0f / %.0f ml", st.DailyTotal, goal)),
		labelStyle.Render("Sessions:"), valueStyle.Render(fmt.Sprintf("%d", st.Sessions))))

	if !st.LastDrinkTime.IsZero() {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Last drink:"),
			valueStyle.Render(fmt.Sprintf("%.1f ml at %s", st.LastDrinkML, st.LastDrinkTime.Local().Format("15:04")))))
	}
	if st.Snoozed(time.Now()) {
		s.WriteString(warningStyle.Render("Snoozed until " + st.SnoozeUntil.Local().Format("15:04")))
	}
	return s.String()
}

func (m consoleModel) renderStatistics() string {
	st := m.stats
	errs := st.MalformedLines + st.DecodeErrors + st.GatewayErrors + st.SendFailures
	errText := valueStyle.Render("0")
	if errs > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d", errs))
	}
	return fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Lines:"), valueStyle.Render(fmt.Sprintf("%d", st.TotalLines)),
		labelStyle.Render("Packets:"), valueStyle.Render(fmt.Sprintf("%d", st.ValidPackets)),
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", st.FramesSent)),
		labelStyle.Render("Errors:"), errText,
		labelStyle.Render("Resets:"), valueStyle.Render(fmt.Sprintf("%d", st.WatchdogTrips)),
	)
}

func (m consoleModel) renderLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	if len(m.log) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
		return s.String()
	}

	start := max(len(m.log)-consoleLogVisible, 0)
	for _, entry := range m.log[start:] {
		icon := "i"
		style := warningStyle
		if entry.isError {
			icon = "x"
			style = errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}
	return strings.TrimRight(s.String(), "\n")
}
