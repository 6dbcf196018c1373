// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

// Default link timing
const (
	DefaultBaud         = 115200
	DefaultReconnectMin = 2 * time.Second
	DefaultReconnectMax = 5 * time.Second
	DefaultIdlePoll     = 20 * time.Millisecond
	DefaultPulseWidth   = 100 * time.Millisecond
	DefaultResetSettle  = 2 * time.Second
	DefaultRecentLines  = 200
)

// Dispatcher receives every packet decoded by the reader loop
type Dispatcher interface {
	Dispatch(p nowlink.Packet, from nowlink.Address)
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(p nowlink.Packet, from nowlink.Address)

// Dispatch calls f(p, from)
func (f DispatcherFunc) Dispatch(p nowlink.Packet, from nowlink.Address) { f(p, from) }

// Options configures a Manager
type Options struct {
	Endpoint     string // serial device or ws:// bridge URL; empty means discover
	Baud         int
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	IdlePoll     time.Duration
	PulseWidth   time.Duration
	ResetSettle  time.Duration
	RecentLines  int

	WatchdogTimeout  time.Duration
	WatchdogInterval time.Duration

	Bridge   BridgeOptions
	Open     Opener          // defaults to DefaultOpener
	Discover func() []string // defaults to DiscoverEndpoints
	Clock    clock.Clock
	Stats    *nowlink.Statistics
}

// Normalize fills zero values with defaults
func (o *Options) Normalize() {
	if o.Baud <= 0 {
		o.Baud = DefaultBaud
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = DefaultReconnectMin
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = DefaultReconnectMax
		if o.ReconnectMax < o.ReconnectMin {
			o.ReconnectMax = o.ReconnectMin
		}
	}
	if o.IdlePoll <= 0 {
		o.IdlePoll = DefaultIdlePoll
	}
	if o.PulseWidth <= 0 {
		o.PulseWidth = DefaultPulseWidth
	}
	if o.ResetSettle < 0 {
		o.ResetSettle = 0
	}
	if o.RecentLines <= 0 {
		o.RecentLines = DefaultRecentLines
	}
	if o.Open == nil {
		o.Open = DefaultOpener(o.Bridge, o.IdlePoll)
	}
	if o.Discover == nil {
		o.Discover = DiscoverEndpoints
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Stats == nil {
		o.Stats = nowlink.NewStatistics()
	}
}

// connection is one generation of the gateway link. It is replaced, never
// reopened, on reconnect.
type connection struct {
	port         Port
	endpoint     string
	baud         int
	openedAt     time.Time
	lastActivity atomic.Int64
	closeOnce    sync.Once
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		if err := c.port.Close(); err != nil {
			log.Debug().Err(err).Str("endpoint", c.endpoint).Msg("close failed")
		}
	})
}

// Status describes the current link
type Status struct {
	Connected    bool      `json:"connected"`
	Endpoint     string    `json:"endpoint,omitempty"`
	Baud         int       `json:"baud,omitempty"`
	ConnectedAt  time.Time `json:"connected_at,omitempty"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// Manager owns the gateway connection. One goroutine runs Run; Send may be
// called from any goroutine.
type Manager struct {
	opts       Options
	clock      clock.Clock
	stats      *nowlink.Statistics
	dispatcher Dispatcher
	watchdog   *Watchdog
	lines      *lineRing

	mu   sync.Mutex // guards conn, writes and close
	conn *connection

	resetMu sync.Mutex // serializes reset pulses

	subsMu sync.RWMutex
	subs   map[string]chan Line
}

// NewManager creates a disconnected manager. d may be nil.
func NewManager(opts Options, d Dispatcher) *Manager {
	opts.Normalize()
	m := &Manager{
		opts:       opts,
		clock:      opts.Clock,
		stats:      opts.Stats,
		dispatcher: d,
		lines:      newLineRing(opts.RecentLines),
		subs:       make(map[string]chan Line),
	}
	m.watchdog = NewWatchdog(m, opts.WatchdogTimeout, opts.WatchdogInterval, opts.Clock)
	m.watchdog.OnTrip = func(error) { m.stats.AddWatchdogTrip() }
	return m
}

// SetDispatcher replaces the packet dispatcher. Call before Run.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.dispatcher = d
}

// Watchdog returns the manager's liveness watchdog
func (m *Manager) Watchdog() *Watchdog {
	return m.watchdog
}

// Stats returns the link statistics
func (m *Manager) Stats() *nowlink.Statistics {
	return m.stats
}

func (m *Manager) current() *connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Connected reports whether a gateway connection is open
func (m *Manager) Connected() bool {
	return m.current() != nil
}

// Status returns a snapshot of the link state
func (m *Manager) Status() Status {
	c := m.current()
	if c == nil {
		return Status{}
	}
	s := Status{
		Connected:   true,
		Endpoint:    c.endpoint,
		Baud:        c.baud,
		ConnectedAt: c.openedAt,
	}
	if ts := c.lastActivity.Load(); ts > 0 {
		s.LastActivity = time.Unix(0, ts)
	}
	return s
}

func (m *Manager) candidates() []string {
	if m.opts.Endpoint != "" {
		return []string{m.opts.Endpoint}
	}
	return m.opts.Discover()
}

// Connect opens the first reachable endpoint and pulses the gateway reset
// line so it starts from a known state. An existing connection is replaced.
func (m *Manager) Connect(ctx context.Context) error {
	candidates := m.candidates()
	if len(candidates) == 0 {
		return ErrNoEndpoint
	}

	var lastErr error
	for _, endpoint := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		port, err := m.opts.Open(ctx, endpoint, m.opts.Baud)
		if err != nil {
			log.Debug().Err(err).Str("endpoint", endpoint).Msg("open failed")
			lastErr = err
			continue
		}

		if err := m.pulse(port); err != nil {
			if errors.Is(err, ErrResetUnsupported) {
				log.Info().Str("endpoint", endpoint).Msg("transport has no reset line, skipping reset pulse")
			} else {
				log.Warn().Err(err).Str("endpoint", endpoint).Msg("reset pulse failed")
			}
		} else {
			m.clock.Sleep(m.opts.ResetSettle)
		}

		c := &connection{
			port:     port,
			endpoint: endpoint,
			baud:     m.opts.Baud,
			openedAt: m.clock.Now(),
		}

		m.mu.Lock()
		old := m.conn
		m.conn = c
		m.mu.Unlock()
		if old != nil {
			old.close()
		}

		m.watchdog.Rearm()
		m.stats.AddReconnect()
		log.Info().Str("endpoint", endpoint).Int("baud", m.opts.Baud).Msg("gateway connected")
		return nil
	}

	return fmt.Errorf("no endpoint could be opened: %w", lastErr)
}

// pulse drives DTR low, high, low to reboot the gateway
func (m *Manager) pulse(port Port) error {
	rp, ok := port.(ResetPort)
	if !ok {
		return ErrResetUnsupported
	}
	for i, level := range []bool{false, true, false} {
		if err := rp.SetDTR(level); err != nil {
			return fmt.Errorf("set DTR=%v: %w", level, err)
		}
		if i < 2 {
			m.clock.Sleep(m.opts.PulseWidth)
		}
	}
	return nil
}

// ResetGateway pulses the reset line of the live connection
func (m *Manager) ResetGateway() error {
	c := m.current()
	if c == nil {
		return ErrNotConnected
	}

	// mu is not held across the pulse
	m.resetMu.Lock()
	err := m.pulse(c.port)
	m.resetMu.Unlock()

	if err != nil {
		return err
	}
	log.Info().Str("endpoint", c.endpoint).Msg("gateway reset pulse sent")
	return nil
}

// Send writes one TX frame. It fails immediately when disconnected and
// never retries.
func (m *Manager) Send(addr nowlink.Address, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidFrame)
	}
	line := nowlink.FormatFrame(addr, payload) + "\n"

	err := m.write(line)
	m.stats.AddSent(err)
	if err != nil {
		log.Warn().Err(err).Str("addr", addr.String()).Msg("send failed")
		return err
	}
	log.Debug().Str("frame", strings.TrimSpace(line)).Msg("sent")
	return nil
}

func (m *Manager) write(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return ErrNotConnected
	}
	n, err := m.conn.port.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if n != len(line) {
		return fmt.Errorf("%w: short write %d of %d bytes", ErrSendFailed, n, len(line))
	}
	return nil
}

// SendHex validates a textual address and hex payload, then sends it
func (m *Manager) SendHex(address, hexPayload string) error {
	addr, err := nowlink.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	payload, err := nowlink.DecodeHex(hexPayload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return m.Send(addr, payload)
}

// SendPacket encodes p and sends it to addr
func (m *Manager) SendPacket(addr nowlink.Address, p nowlink.Packet) error {
	payload, err := nowlink.Encode(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return m.Send(addr, payload)
}

// Lines returns up to n recent raw lines, oldest first
func (m *Manager) Lines(n int) []Line {
	return m.lines.last(n)
}

// Subscribe returns a channel receiving every raw line. Lines are dropped
// for subscribers that fall behind.
func (m *Manager) Subscribe() (string, <-chan Line) {
	id := uuid.NewString()
	ch := make(chan Line, 64)

	m.subsMu.Lock()
	m.subs[id] = ch
	m.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel
func (m *Manager) Unsubscribe(id string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Manager) publish(l Line) {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()

	for _, ch := range m.subs {
		select {
		case ch <- l:
		default:
		}
	}
}

// Close releases the connection. Run reconnects unless its context is done.
func (m *Manager) Close() error {
	m.mu.Lock()
	c := m.conn
	m.conn = nil
	if c != nil {
		c.close()
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) drop(c *connection) {
	m.mu.Lock()
	if m.conn == c {
		m.conn = nil
	}
	c.close()
	m.mu.Unlock()
}

// Run keeps the link up until ctx is cancelled: it reconnects with bounded
// backoff and reads lines from the current connection.
func (m *Manager) Run(ctx context.Context) error {
	backoff := m.opts.ReconnectMin

	for {
		if err := ctx.Err(); err != nil {
			m.Close()
			return err
		}

		c := m.current()
		if c == nil {
			if err := m.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Warn().Err(err).Dur("retry_in", backoff).Msg("gateway connect failed")
				select {
				case <-ctx.Done():
				case <-m.clock.After(backoff):
				}
				backoff *= 2
				if backoff > m.opts.ReconnectMax {
					backoff = m.opts.ReconnectMax
				}
				continue
			}
			backoff = m.opts.ReconnectMin
			continue
		}

		m.readConnection(ctx, c)
	}
}

// readConnection reads lines until the connection fails or ctx is done
func (m *Manager) readConnection(ctx context.Context, c *connection) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			m.drop(c)
		case <-stop:
		}
	}()

	buf := make([]byte, 256)
	var pending []byte

	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			c.lastActivity.Store(m.clock.Now().UnixNano())
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				m.handleLine(string(pending[:i]))
				pending = pending[i+1:]
			}
			if len(pending) > nowlink.MaxLineLength {
				log.Warn().Int("bytes", len(pending)).Msg("discarding overlong line")
				m.stats.AddLine(nowlink.LineGarbage)
				pending = nil
			}
		}

		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("endpoint", c.endpoint).Msg("read failed, reconnecting")
			}
			m.drop(c)
			return
		}

		if n == 0 {
			m.clock.Sleep(m.opts.IdlePoll)
		}
	}
}

// handleLine classifies, records and dispatches one raw line
func (m *Manager) handleLine(raw string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}

	kind := nowlink.ClassifyLine(text)
	line := Line{Time: m.clock.Now(), Text: text, Kind: kind.String()}
	m.lines.add(line)
	m.publish(line)
	m.stats.AddLine(kind)

	if kind.Recognized() {
		m.watchdog.Pet()
	}

	switch kind {
	case nowlink.LineData:
		frame, _ := nowlink.ParseLine(text)
		m.dispatchFrame(frame)
	case nowlink.LineHeartbeat, nowlink.LineDebug:
		log.Debug().Str("line", text).Msg("gateway")
	case nowlink.LineOK:
		log.Info().Str("line", text).Msg("gateway")
	case nowlink.LineError:
		log.Warn().Str("line", text).Msg("gateway error")
	case nowlink.LineBoot:
		log.Info().Str("line", text).Msg("gateway boot")
	case nowlink.LineMalformed:
		log.Warn().Str("line", text).Msg("malformed RX line")
	default:
		log.Debug().Str("line", fmt.Sprintf("%q", text)).Msg("ignoring unrecognized line")
	}
}

func (m *Manager) dispatchFrame(f nowlink.Frame) {
	p, err := nowlink.Decode(f.Payload)
	if err != nil {
		m.stats.AddPacket(p, err, nil)
		log.Warn().Err(err).Str("addr", f.Address.String()).Msg("dropping undecodable packet")
		return
	}

	anomalies := nowlink.ValidatePacket(p)
	m.stats.AddPacket(p, nil, anomalies)
	for _, a := range anomalies {
		if a.Type == nowlink.AnomalyNonFinite {
			log.Warn().Str("addr", f.Address.String()).Msg(a.Message + ", dropping")
			return
		}
		log.Warn().Str("addr", f.Address.String()).Msg(a.Message)
	}

	log.Debug().Msg(nowlink.FormatPacket(f.Address, p))
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(p, f.Address)
	}
}
