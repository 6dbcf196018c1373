// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package devices

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/hydration"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
	"github.com/Thermoquad/nowbridge/pkg/presence"
)

// DefaultSnooze is used by "hydration snooze" without an argument
const DefaultSnooze = 30 * time.Minute

// Hydration is the handler of the smart bottle scale
type Hydration struct {
	base
	machine  *hydration.Machine
	presence presence.Provider
	clock    clock.Clock
}

// NewHydration creates the hydration handler around machine
func NewHydration(reg *Registry, s Sender, machine *hydration.Machine, p presence.Provider, clk clock.Clock) *Hydration {
	if clk == nil {
		clk = clock.Real{}
	}
	if p == nil {
		p = presence.Static(true)
	}
	return &Hydration{
		base:     base{role: RoleHydration, reg: reg, sender: s},
		machine:  machine,
		presence: p,
		clock:    clk,
	}
}

// DeviceType returns nowlink.DeviceHydration
func (h *Hydration) DeviceType() nowlink.DeviceType { return nowlink.DeviceHydration }

// Machine returns the underlying state machine
func (h *Hydration) Machine() *hydration.Machine { return h.machine }

// SetLED switches the scale's status LED
func (h *Hydration) SetLED(on bool) error { return h.send(nowlink.NewSetLED(on)) }

// SetBuzzer switches the scale's buzzer
func (h *Hydration) SetBuzzer(on bool) error { return h.send(nowlink.NewSetBuzzer(on)) }

// SetRGB selects the scale's RGB indicator color
func (h *Hydration) SetRGB(color int) error { return h.send(nowlink.NewSetRGB(color)) }

// RequestWeight asks the scale for a weight report
func (h *Hydration) RequestWeight() error { return h.send(nowlink.NewGetWeight()) }

// Tare zeroes the scale
func (h *Hydration) Tare() error { return h.send(nowlink.NewTare()) }

// RequestDailyTotal asks the scale for its daily total
func (h *Hydration) RequestDailyTotal() error { return h.send(nowlink.NewRequestDailyTotal()) }

// HandlePacket reacts to a packet from the scale. Time and presence
// requests are answered to the requesting address.
func (h *Hydration) HandlePacket(p nowlink.Packet, from nowlink.Address) {
	l := log.With().Str("addr", from.String()).Logger()

	switch p.Command {
	case nowlink.HydrationReportWeight:
		ev := h.machine.ReportWeight(p.Float)
		l.Info().Float32("weight", p.Float).Str("event", ev.String()).Msg("hydration weight")

	case nowlink.HydrationRequestTime:
		now := h.clock.Now().Unix()
		if err := h.sendTo(from, nowlink.NewReportTime(uint32(now))); err != nil {
			l.Warn().Err(err).Msg("failed to answer time request")
			return
		}
		l.Info().Int64("unix", now).Msg("answered time request")

	case nowlink.HydrationRequestPresence:
		home := h.presence.IsHome()
		if err := h.sendTo(from, nowlink.NewReportPresence(home)); err != nil {
			l.Warn().Err(err).Msg("failed to answer presence request")
			return
		}
		l.Info().Bool("home", home).Msg("answered presence request")

	case nowlink.HydrationAlertMissing:
		l.Warn().Msg("bottle missing")
		h.machine.SetMissing(true)

	case nowlink.HydrationAlertReplaced:
		l.Info().Msg("bottle replaced")
		h.machine.SetMissing(false)

	case nowlink.HydrationAlertReminder:
		ev := h.machine.Escalate()
		l.Warn().Str("event", ev.String()).Int("alert_level", h.machine.State().AlertLevel).Msg("hydration reminder")

	case nowlink.HydrationAlertStopped:
		l.Info().Msg("hydration alert stopped by monitor")
		h.machine.Stop()

	case nowlink.HydrationDrinkDetected:
		h.machine.RecordDrink(p.Float)

	case nowlink.HydrationDailyTotal:
		total := h.machine.SyncDailyTotal(p.Float)
		l.Info().Float32("reported_ml", p.Float).Float32("total_ml", total).Msg("daily total")

	case nowlink.HydrationSetLED:
		h.mirrorLED(p.Bool())

	default:
		l.Debug().Str("cmd", p.Name()).Str("value", nowlink.FormatValue(p)).Msg("hydration packet ignored")
	}
}

// mirrorLED copies the scale's LED switch to the LED strip
func (h *Hydration) mirrorLED(on bool) {
	hnd, ok := h.reg.Handler(RoleLED)
	if !ok {
		log.Debug().Bool("on", on).Msg("no LED strip to mirror to")
		return
	}
	led, ok := hnd.(*LED)
	if !ok {
		return
	}

	var err error
	if on {
		err = led.On()
	} else {
		err = led.Off()
	}
	if err != nil {
		log.Warn().Err(err).Bool("on", on).Msg("failed to mirror LED state")
	}
}

func parseOnOff(cmd string, args []string) (bool, error) {
	if len(args) < 2 {
		return false, usagef("hydration %s on|off", cmd)
	}
	switch strings.ToLower(args[1]) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, usagef("hydration %s on|off", cmd)
}

const hydrationUsage = "hydration <led on|off|buzzer on|off|rgb <id>|weight|tare|total|snooze [min]|stop|status|test alert|stop>"

// HandleUserInput runs a hydration subcommand
func (h *Hydration) HandleUserInput(args []string) error {
	if len(args) == 0 {
		return usagef(hydrationUsage)
	}

	cmd := strings.ToLower(args[0])
	switch cmd {
	case "led":
		on, err := parseOnOff(cmd, args)
		if err != nil {
			return err
		}
		return h.SetLED(on)

	case "buzzer":
		on, err := parseOnOff(cmd, args)
		if err != nil {
			return err
		}
		return h.SetBuzzer(on)

	case "rgb":
		if len(args) < 2 {
			return usagef("hydration rgb <0-8>")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil || id < 0 || id > nowlink.ColorIdle {
			return usagef("hydration rgb <0-8>")
		}
		return h.SetRGB(id)

	case "weight":
		return h.RequestWeight()

	case "tare":
		return h.Tare()

	case "total":
		return h.RequestDailyTotal()

	case "snooze":
		d := DefaultSnooze
		if len(args) > 1 {
			minutes, err := strconv.Atoi(args[1])
			if err != nil || minutes <= 0 {
				return usagef("hydration snooze [minutes]")
			}
			d = time.Duration(minutes) * time.Minute
		}
		h.machine.Snooze(d)
		return nil

	case "stop":
		h.machine.Stop()
		return nil

	case "status":
		st := h.machine.State()
		log.Info().
			Str("phase", st.Phase.String()).
			Float32("weight", st.Weight).
			Int("alert_level", st.AlertLevel).
			Float32("total_ml", st.DailyTotal).
			Int("sessions", st.Sessions).
			Float32("last_drink_ml", st.LastDrinkML).
			Msg("hydration status")
		return nil

	case "test":
		if len(args) < 2 {
			return usagef("hydration test alert|stop")
		}
		addr, _ := h.reg.Address(RoleHydration)
		switch strings.ToLower(args[1]) {
		case "alert":
			h.HandlePacket(nowlink.Packet{Device: nowlink.DeviceHydration, Command: nowlink.HydrationAlertReminder, Kind: nowlink.KindFloat}, addr)
		case "stop":
			h.HandlePacket(nowlink.Packet{Device: nowlink.DeviceHydration, Command: nowlink.HydrationAlertStopped, Kind: nowlink.KindFloat}, addr)
		default:
			return usagef("hydration test alert|stop")
		}
		return nil
	}
	return usagef(hydrationUsage)
}
