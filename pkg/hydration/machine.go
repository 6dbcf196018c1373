// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hydration implements the hydration monitor's consumption tracking
// and alert escalation.
package hydration

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/presence"
)

// MaxAlertLevel is the highest escalation step
const MaxAlertLevel = 2

// Config holds the thresholds driving the machine
type Config struct {
	DrinkThreshold  float32       // grams lost that count as a drink
	RefillThreshold float32       // grams gained that count as a refill
	BottleThreshold float32       // reports below this mean the bottle is lifted
	DailyGoal       float32       // ml; escalation stops once reached
	CheckInterval   time.Duration // minimum time between escalation checks
	SleepStart      int           // hour the quiet window starts
	SleepEnd        int           // hour the quiet window ends
}

// DefaultConfig returns the stock thresholds
func DefaultConfig() Config {
	return Config{
		DrinkThreshold:  50,
		RefillThreshold: 50,
		BottleThreshold: 80,
		DailyGoal:       2000,
		CheckInterval:   30 * time.Minute,
		SleepStart:      23,
		SleepEnd:        10,
	}
}

// Sleeping reports whether hour falls in the quiet window. Equal start and
// end hours disable the window.
func (c Config) Sleeping(hour int) bool {
	switch {
	case c.SleepStart == c.SleepEnd:
		return false
	case c.SleepStart > c.SleepEnd:
		return hour >= c.SleepStart || hour < c.SleepEnd
	default:
		return hour >= c.SleepStart && hour < c.SleepEnd
	}
}

// Indicators drive the physical side effects of state changes
type Indicators interface {
	// Alert shows the given level; 0 clears every alert indicator
	Alert(level int)
	// Celebrate acknowledges a drink of ml millilitres
	Celebrate(ml float32)
	// Missing starts or stops the bottle-missing animation
	Missing(on bool)
}

type nopIndicators struct{}

func (nopIndicators) Alert(int)         {}
func (nopIndicators) Celebrate(float32) {}
func (nopIndicators) Missing(bool)      {}

// effects queued under the lock and run after it is released
type effects []func(Indicators)

func (e *effects) alert(level int) {
	*e = append(*e, func(i Indicators) { i.Alert(level) })
}

func (e *effects) celebrate(ml float32) {
	*e = append(*e, func(i Indicators) { i.Celebrate(ml) })
}

func (e *effects) missing(on bool) {
	*e = append(*e, func(i Indicators) { i.Missing(on) })
}

// Machine is the hydration state machine. All methods are safe for
// concurrent use; indicator calls run outside the internal lock.
type Machine struct {
	cfg      Config
	clock    clock.Clock
	presence presence.Provider

	mu    sync.Mutex
	state State
	ind   Indicators
	store *Store
}

// New creates a machine in PhaseIdle. p and ind may be nil.
func New(cfg Config, clk clock.Clock, p presence.Provider, ind Indicators) *Machine {
	if clk == nil {
		clk = clock.Real{}
	}
	if p == nil {
		p = presence.Static(true)
	}
	if ind == nil {
		ind = nopIndicators{}
	}
	return &Machine{
		cfg:      cfg,
		clock:    clk,
		presence: p,
		ind:      ind,
		state:    State{Phase: PhaseIdle, ResetDay: dayKey(clk.Now())},
	}
}

// SetIndicators replaces the indicator sink
func (m *Machine) SetIndicators(ind Indicators) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ind == nil {
		ind = nopIndicators{}
	}
	m.ind = ind
}

// SetStore enables persisting the state after every change
func (m *Machine) SetStore(s *Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = s
}

// Config returns the machine configuration
func (m *Machine) Config() Config {
	return m.cfg
}

// State returns a copy of the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Restore replaces the state with a previously saved one. A state saved on
// an earlier day comes back with its daily counters cleared. The indicators
// of a missing bottle or a retained alert are shown again.
func (m *Machine) Restore(st State) {
	tx := m.begin()
	defer tx.done()

	now := m.clock.Now()
	m.state = st
	m.rollover(now)
	if m.state.AlertLevel < 0 || m.state.AlertLevel > MaxAlertLevel {
		m.state.AlertLevel = 0
	}
	m.state.Phase = m.restingPhase(now)
	m.reapply(&tx.fx)
	log.Info().
		Float32("total_ml", m.state.DailyTotal).
		Int("alert_level", m.state.AlertLevel).
		Str("phase", m.state.Phase.String()).
		Msg("hydration state restored")
}

// Reapply shows the indicators of the current state again, for peripherals
// that only became reachable after the state was set
func (m *Machine) Reapply() {
	tx := m.begin()
	defer tx.done()
	m.reapply(&tx.fx)
}

func (m *Machine) reapply(fx *effects) {
	switch {
	case m.state.BottleMissing:
		fx.missing(true)
	case m.state.AlertLevel > 0:
		fx.alert(m.state.AlertLevel)
	}
}

// txn is one locked mutation. Effects are queued during it and run once the
// lock is released.
type txn struct {
	m      *Machine
	before State
	fx     effects
}

func (m *Machine) begin() *txn {
	m.mu.Lock()
	return &txn{m: m, before: m.state}
}

// done releases the lock, runs the queued effects and persists the state
// if it changed
func (t *txn) done() {
	m := t.m
	st := m.state
	ind := m.ind
	store := m.store
	m.mu.Unlock()

	for _, f := range t.fx {
		f(ind)
	}
	if store != nil && st != t.before {
		if err := store.Save(st); err != nil {
			log.Error().Err(err).Str("path", store.Path()).Msg("failed to save hydration state")
		}
	}
}

// ReportWeight feeds one weight report. Drink and refill detection happen on
// every report; escalation is gated to the check interval.
func (m *Machine) ReportWeight(grams float32) Event {
	tx := m.begin()
	defer tx.done()
	fx := &tx.fx

	now := m.clock.Now()
	m.rollover(now)
	s := &m.state
	s.Weight = grams
	s.LastUpdate = now

	if s.BottleMissing {
		return EventIgnored
	}
	if grams < m.cfg.BottleThreshold {
		log.Debug().Float32("weight", grams).Msg("bottle lifted, report not evaluated")
		return EventIgnored
	}

	if !s.HasBaseline {
		s.Baseline = grams
		s.HasBaseline = true
		s.LastCheck = now
		s.AlertLevel = 0
		s.Phase = PhaseMonitoring
		fx.alert(0)
		log.Info().Float32("baseline", grams).Msg("hydration baseline set")
		return EventBaseline
	}

	delta := grams - s.Baseline
	switch {
	case delta <= -m.cfg.DrinkThreshold:
		ml := -delta
		m.recordDrink(ml, now, fx)
		s.Baseline = grams
		s.LastCheck = now
		log.Info().Float32("ml", ml).Float32("total_ml", s.DailyTotal).Msg("drink detected")
		return EventDrink

	case delta >= m.cfg.RefillThreshold:
		s.Baseline = grams
		s.LastCheck = now
		m.clearAlert(now, fx)
		log.Info().Float32("baseline", grams).Msg("refill detected")
		return EventRefill
	}

	if now.Sub(s.LastCheck) < m.cfg.CheckInterval {
		return EventNone
	}
	s.LastCheck = now
	log.Debug().Float32("weight", grams).Float32("baseline", s.Baseline).Float32("delta", delta).Msg("hydration check")
	return m.evaluate(now, fx)
}

// evaluate runs one escalation check
func (m *Machine) evaluate(now time.Time, fx *effects) Event {
	s := &m.state

	if phase, suppressed := m.suppression(now); suppressed {
		if s.AlertLevel > 0 {
			s.AlertLevel = 0
			fx.alert(0)
			log.Info().Str("reason", phase.String()).Msg("alert cleared")
		}
		s.Phase = phase
		return EventSuppressed
	}

	if s.DailyTotal >= m.cfg.DailyGoal {
		s.Phase = m.restingPhase(now)
		return EventGoalMet
	}

	if !m.escalate(fx) {
		return EventNone
	}
	return EventEscalated
}

// escalate raises the alert level by exactly one step, capped
func (m *Machine) escalate(fx *effects) bool {
	s := &m.state
	if s.AlertLevel >= MaxAlertLevel {
		s.Phase = PhaseAlertLevel2
		return false
	}
	s.AlertLevel++
	s.Phase = alertPhase(s.AlertLevel)
	fx.alert(s.AlertLevel)
	log.Warn().Int("alert_level", s.AlertLevel).Float32("total_ml", s.DailyTotal).Msg("hydration alert escalated")
	return true
}

// suppression reports which quiet phase applies at now, if any
func (m *Machine) suppression(now time.Time) (Phase, bool) {
	switch {
	case m.state.Snoozed(now):
		return PhaseSnoozed, true
	case m.cfg.Sleeping(now.Hour()):
		return PhaseSleeping, true
	case !m.presence.IsHome():
		return PhaseAway, true
	}
	return PhaseMonitoring, false
}

// restingPhase derives the phase from the stored fields
func (m *Machine) restingPhase(now time.Time) Phase {
	s := m.state
	switch {
	case s.BottleMissing:
		return PhaseBottleMissing
	case !s.HasBaseline:
		return PhaseIdle
	case s.AlertLevel > 0:
		return alertPhase(s.AlertLevel)
	case s.Snoozed(now):
		return PhaseSnoozed
	}
	return PhaseMonitoring
}

func alertPhase(level int) Phase {
	if level >= MaxAlertLevel {
		return PhaseAlertLevel2
	}
	return PhaseAlertLevel1
}

func (m *Machine) clearAlert(now time.Time, fx *effects) {
	if m.state.AlertLevel > 0 {
		fx.alert(0)
	}
	m.state.AlertLevel = 0
	m.state.Phase = m.restingPhase(now)
}

func (m *Machine) recordDrink(ml float32, now time.Time, fx *effects) {
	s := &m.state
	s.LastDrinkML = ml
	s.LastDrinkTime = now
	s.DailyTotal += ml
	s.Sessions++
	m.clearAlert(now, fx)
	fx.celebrate(ml)
}

// rollover clears the daily counters once per calendar day
func (m *Machine) rollover(now time.Time) {
	today := dayKey(now)
	if m.state.ResetDay == today {
		return
	}
	if m.state.ResetDay != "" {
		log.Info().
			Str("day", today).
			Float32("previous_total_ml", m.state.DailyTotal).
			Int("previous_sessions", m.state.Sessions).
			Msg("new day, consumption reset")
	}
	m.state.DailyTotal = 0
	m.state.Sessions = 0
	m.state.ResetDay = today
}

// SetMissing asserts or clears the bottle-missing condition. Missing
// suppresses escalation without touching the alert level; clearing it
// resumes Monitoring (or Idle without a baseline) and re-applies any
// retained alert.
func (m *Machine) SetMissing(on bool) {
	tx := m.begin()
	defer tx.done()
	fx := &tx.fx

	s := &m.state
	if s.BottleMissing == on {
		return
	}
	s.BottleMissing = on

	if on {
		s.Phase = PhaseBottleMissing
		fx.missing(true)
		log.Warn().Int("alert_level", s.AlertLevel).Msg("bottle missing")
		return
	}

	if s.HasBaseline {
		s.Phase = PhaseMonitoring
	} else {
		s.Phase = PhaseIdle
	}
	fx.missing(false)
	if s.AlertLevel > 0 {
		fx.alert(s.AlertLevel)
	}
	log.Info().Str("phase", s.Phase.String()).Msg("bottle replaced")
}

// Escalate applies one escalation step outside the interval, as requested
// by a firmware reminder. Snooze, the quiet window, absence and a met goal
// hold it back the same way as a timed check; a suppressed reminder clears
// the alert instead. It has no effect while the bottle is missing.
func (m *Machine) Escalate() Event {
	tx := m.begin()
	defer tx.done()
	fx := &tx.fx

	now := m.clock.Now()
	m.rollover(now)
	s := &m.state
	if s.BottleMissing {
		return EventIgnored
	}
	return m.evaluate(now, fx)
}

// Snooze suppresses escalation for d and clears any active alert at once
func (m *Machine) Snooze(d time.Duration) {
	tx := m.begin()
	defer tx.done()
	fx := &tx.fx

	now := m.clock.Now()
	s := &m.state
	s.SnoozeUntil = now.Add(d)
	s.AlertLevel = 0
	fx.alert(0)
	if !s.BottleMissing {
		s.Phase = PhaseSnoozed
	}
	log.Info().Dur("duration", d).Time("until", s.SnoozeUntil).Msg("hydration snoozed")
}

// Stop clears the alert explicitly
func (m *Machine) Stop() {
	tx := m.begin()
	defer tx.done()
	fx := &tx.fx

	now := m.clock.Now()
	m.state.AlertLevel = 0
	m.state.Phase = m.restingPhase(now)
	fx.alert(0)
	log.Info().Msg("hydration alert stopped")
}

// RecordDrink records a drink detected by the monitor firmware. The baseline
// moves down by the same amount so the next weight report does not count it
// twice.
func (m *Machine) RecordDrink(ml float32) {
	if ml <= 0 {
		return
	}

	tx := m.begin()
	defer tx.done()
	fx := &tx.fx

	now := m.clock.Now()
	m.rollover(now)
	m.recordDrink(ml, now, fx)
	if m.state.HasBaseline {
		m.state.Baseline -= ml
	}
	log.Info().Float32("ml", ml).Float32("total_ml", m.state.DailyTotal).Msg("drink reported by monitor")
}

// SyncDailyTotal raises the daily total to the monitor's figure. Lower
// figures are ignored so the total never decreases within a day.
func (m *Machine) SyncDailyTotal(ml float32) float32 {
	tx := m.begin()
	defer tx.done()

	m.rollover(m.clock.Now())
	if ml > m.state.DailyTotal {
		m.state.DailyTotal = ml
	}
	return m.state.DailyTotal
}

// Tick applies time-driven transitions without a weight report: day
// rollover, the quiet window, presence and snooze expiry.
func (m *Machine) Tick() {
	tx := m.begin()
	defer tx.done()
	fx := &tx.fx

	now := m.clock.Now()
	m.rollover(now)
	s := &m.state
	if s.BottleMissing || !s.HasBaseline {
		return
	}

	phase, suppressed := m.suppression(now)
	if !suppressed {
		switch s.Phase {
		case PhaseSnoozed, PhaseSleeping, PhaseAway:
			s.Phase = m.restingPhase(now)
		}
		return
	}
	if s.AlertLevel > 0 {
		s.AlertLevel = 0
		fx.alert(0)
		log.Info().Str("reason", phase.String()).Msg("alert cleared")
	}
	s.Phase = phase
}
