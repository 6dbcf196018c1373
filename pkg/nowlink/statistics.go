// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nowlink

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks line, packet and link counters. Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	s  StatsSnapshot
}

// StatsSnapshot is a point-in-time copy of the counters
type StatsSnapshot struct {
	StartTime      time.Time `json:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time"`

	// Counters
	TotalLines     uint64 `json:"total_lines"`
	DataLines      uint64 `json:"data_lines"`
	StatusLines    uint64 `json:"status_lines"`
	MalformedLines uint64 `json:"malformed_lines"`
	GarbageLines   uint64 `json:"garbage_lines"`
	GatewayErrors  uint64 `json:"gateway_errors"`
	ValidPackets   uint64 `json:"valid_packets"`
	DecodeErrors   uint64 `json:"decode_errors"`
	UnknownPackets uint64 `json:"unknown_packets"`
	Anomalies      uint64 `json:"anomalies"`
	FramesSent     uint64 `json:"frames_sent"`
	SendFailures   uint64 `json:"send_failures"`
	Reconnects     uint64 `json:"reconnects"`
	WatchdogTrips  uint64 `json:"watchdog_trips"`

	// Rates (calculated)
	LineRate  float64 `json:"line_rate"`  // lines/sec
	ErrorRate float64 `json:"error_rate"` // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{s: StatsSnapshot{StartTime: now, LastUpdateTime: now}}
}

// AddLine counts a received line by kind
func (st *Statistics) AddLine(kind LineKind) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s.TotalLines++
	switch kind {
	case LineData:
		st.s.DataLines++
	case LineMalformed:
		st.s.MalformedLines++
	case LineGarbage:
		st.s.GarbageLines++
	case LineError:
		st.s.GatewayErrors++
		st.s.StatusLines++
	default:
		st.s.StatusLines++
	}
	st.s.LastUpdateTime = time.Now()
}

// AddPacket counts a decoded packet (or decode failure) and its anomalies
func (st *Statistics) AddPacket(p Packet, decodeErr error, anomalies []ValidationError) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if decodeErr != nil {
		st.s.DecodeErrors++
		return
	}
	if !p.Known() {
		st.s.UnknownPackets++
		return
	}
	if len(anomalies) > 0 {
		st.s.Anomalies += uint64(len(anomalies))
		return
	}
	st.s.ValidPackets++
}

// AddSent counts an outbound frame
func (st *Statistics) AddSent(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err != nil {
		st.s.SendFailures++
		return
	}
	st.s.FramesSent++
}

// AddReconnect counts a successful (re)connection
func (st *Statistics) AddReconnect() {
	st.mu.Lock()
	st.s.Reconnects++
	st.mu.Unlock()
}

// AddWatchdogTrip counts a watchdog-triggered gateway reset
func (st *Statistics) AddWatchdogTrip() {
	st.mu.Lock()
	st.s.WatchdogTrips++
	st.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates filled in
func (st *Statistics) Snapshot() StatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.s
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.LineRate = float64(s.TotalLines) / elapsed
		errorCount := s.MalformedLines + s.DecodeErrors + s.Anomalies + s.SendFailures
		s.ErrorRate = float64(errorCount) / elapsed
	}
	return s
}

// String returns a formatted statistics summary
func (st *Statistics) String() string {
	s := st.Snapshot()

	var dataPercent, garbagePercent float64
	if s.TotalLines > 0 {
		dataPercent = float64(s.DataLines) * 100.0 / float64(s.TotalLines)
		garbagePercent = float64(s.GarbageLines) * 100.0 / float64(s.TotalLines)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", s.TotalLines)
	result += fmt.Sprintf("Data Lines:      %8d (%.1f%%)\n", s.DataLines, dataPercent)
	result += fmt.Sprintf("Status Lines:    %8d\n", s.StatusLines)

	if s.GarbageLines > 0 {
		result += fmt.Sprintf("Garbage Lines:   %8d (%.1f%%)\n", s.GarbageLines, garbagePercent)
	}
	if s.MalformedLines > 0 {
		result += fmt.Sprintf("Malformed RX:    %8d\n", s.MalformedLines)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.UnknownPackets > 0 {
		result += fmt.Sprintf("Unknown Packets: %8d\n", s.UnknownPackets)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
	}
	if s.GatewayErrors > 0 {
		result += fmt.Sprintf("Gateway ERR:     %8d\n", s.GatewayErrors)
	}

	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	if s.SendFailures > 0 {
		result += fmt.Sprintf("Send Failures:   %8d\n", s.SendFailures)
	}
	result += fmt.Sprintf("Reconnects:      %8d\n", s.Reconnects)
	result += fmt.Sprintf("Watchdog Trips:  %8d\n", s.WatchdogTrips)
	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", s.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (st *Statistics) Reset() {
	now := time.Now()
	st.mu.Lock()
	st.s = StatsSnapshot{StartTime: now, LastUpdateTime: now}
	st.mu.Unlock()
}
