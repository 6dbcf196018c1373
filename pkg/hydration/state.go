// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hydration

import (
	"fmt"
	"time"
)

// Phase is the logical state of the hydration monitor
type Phase int

const (
	PhaseIdle Phase = iota // no baseline yet
	PhaseMonitoring
	PhaseSnoozed
	PhaseSleeping
	PhaseAway
	PhaseAlertLevel1
	PhaseAlertLevel2
	PhaseBottleMissing // overrides every other phase
)

var phaseNames = map[Phase]string{
	PhaseIdle:          "idle",
	PhaseMonitoring:    "monitoring",
	PhaseSnoozed:       "snoozed",
	PhaseSleeping:      "sleeping",
	PhaseAway:          "away",
	PhaseAlertLevel1:   "alert_level_1",
	PhaseAlertLevel2:   "alert_level_2",
	PhaseBottleMissing: "bottle_missing",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText renders the phase name in JSON output
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Event is the outcome of feeding one input to the machine
type Event int

const (
	EventNone       Event = iota
	EventIgnored          // recorded but not evaluated (bottle lifted or missing)
	EventBaseline         // first weight set the baseline
	EventDrink            // weight dropped by at least the drink threshold
	EventRefill           // weight rose by at least the refill threshold
	EventEscalated        // alert level went up one step
	EventSuppressed       // escalation suppressed by snooze, sleep or away
	EventGoalMet          // interval elapsed with the daily goal reached
)

var eventNames = [...]string{"none", "ignored", "baseline", "drink", "refill", "escalated", "suppressed", "goal_met"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// State is the per-device hydration record
type State struct {
	Phase         Phase     `json:"phase"`
	Weight        float32   `json:"weight_g"`
	LastUpdate    time.Time `json:"last_update"`
	AlertLevel    int       `json:"alert_level"`
	BottleMissing bool      `json:"bottle_missing"`
	DailyTotal    float32   `json:"daily_total_ml"`
	Sessions      int       `json:"sessions"`
	LastDrinkML   float32   `json:"last_drink_ml"`
	LastDrinkTime time.Time `json:"last_drink_time"`
	SnoozeUntil   time.Time `json:"snooze_until"`
	ResetDay      string    `json:"reset_day"`
	Baseline      float32   `json:"baseline_g"`
	HasBaseline   bool      `json:"has_baseline"`
	LastCheck     time.Time `json:"last_check"`
}

// Snoozed reports whether a snooze is active at now
func (s State) Snoozed(now time.Time) bool {
	return now.Before(s.SnoozeUntil)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
