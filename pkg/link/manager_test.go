// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/nowbridge/pkg/clock"
	"github.com/Thermoquad/nowbridge/pkg/nowlink"
)

var (
	t0       = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	testAddr = nowlink.MustParseAddress("AA:BB:CC:DD:EE:FF")
)

type received struct {
	packet nowlink.Packet
	from   nowlink.Address
}

type recorder struct {
	mu      sync.Mutex
	packets []received
}

func (r *recorder) Dispatch(p nowlink.Packet, from nowlink.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, received{p, from})
}

func (r *recorder) all() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.packets...)
}

func newTestManager(t *testing.T, ports ...*TestPort) (*Manager, *clock.Mock, *recorder) {
	t.Helper()
	clk := clock.NewMock(t0)
	rec := &recorder{}
	m := NewManager(Options{
		Endpoint:    "/dev/ttyTEST0",
		Open:        TestOpener(ports...),
		Clock:       clk,
		ResetSettle: time.Second,
		RecentLines: 8,
	}, rec)
	return m, clk, rec
}

func runManager(t *testing.T, m *Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not stop")
		}
	})
	return cancel, done
}

func TestSendWhileDisconnected(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.Send(testAddr, []byte{0x01, 0x20, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, m.ResetGateway(), ErrNotConnected)
	assert.False(t, m.Connected())
	assert.Equal(t, uint64(1), m.Stats().Snapshot().SendFailures)
}

func TestConnectPulsesReset(t *testing.T) {
	port := NewTestPort()
	m, clk, _ := newTestManager(t, port)

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.Connected())
	assert.Equal(t, []bool{false, true, false}, port.DTR())
	assert.Equal(t, []time.Duration{DefaultPulseWidth, DefaultPulseWidth, time.Second}, clk.Sleeps())

	st := m.Status()
	assert.Equal(t, "/dev/ttyTEST0", st.Endpoint)
	assert.Equal(t, DefaultBaud, st.Baud)
	assert.Equal(t, t0, st.ConnectedAt)
}

func TestConnectWithoutResetLine(t *testing.T) {
	port := NewTestPort()
	clk := clock.NewMock(t0)
	m := NewManager(Options{
		Endpoint: "ws://bridge.local/lines",
		Open: func(ctx context.Context, endpoint string, baud int) (Port, error) {
			return plainPort{port}, nil
		},
		Clock: clk,
	}, nil)

	require.NoError(t, m.Connect(context.Background()))
	assert.Empty(t, port.DTR())
	assert.Empty(t, clk.Sleeps(), "no settle without a reset pulse")
	assert.ErrorIs(t, m.ResetGateway(), ErrResetUnsupported)
}

func TestConnectNoEndpoint(t *testing.T) {
	m := NewManager(Options{Discover: func() []string { return nil }, Clock: clock.NewMock(t0)}, nil)
	assert.ErrorIs(t, m.Connect(context.Background()), ErrNoEndpoint)
}

func TestConnectTriesCandidates(t *testing.T) {
	port := NewTestPort()
	var tried []string
	m := NewManager(Options{
		Discover: func() []string { return []string{"/dev/ttyUSB0", "/dev/ttyUSB1"} },
		Open: func(ctx context.Context, endpoint string, baud int) (Port, error) {
			tried = append(tried, endpoint)
			if endpoint == "/dev/ttyUSB0" {
				return nil, errors.New("busy")
			}
			return port, nil
		},
		Clock: clock.NewMock(t0),
	}, nil)

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, tried)
	assert.Equal(t, "/dev/ttyUSB1", m.Status().Endpoint)
}

func TestSendPacketWritesFrame(t *testing.T) {
	port := NewTestPort()
	m, _, _ := newTestManager(t, port)
	require.NoError(t, m.Connect(context.Background()))

	require.NoError(t, m.SendPacket(testAddr, nowlink.NewSetLED(true)))
	require.NoError(t, m.SendHex("f0:24:f9:0c:de:54", "0x012000000000"))

	assert.Equal(t, []string{
		"TX:AA:BB:CC:DD:EE:FF:01100000803F",
		"TX:F0:24:F9:0C:DE:54:012000000000",
	}, port.WrittenLines())
	assert.Equal(t, uint64(2), m.Stats().Snapshot().FramesSent)
}

func TestSendErrors(t *testing.T) {
	port := NewTestPort()
	m, _, _ := newTestManager(t, port)
	require.NoError(t, m.Connect(context.Background()))

	assert.ErrorIs(t, m.SendHex("nope", "0110"), ErrInvalidFrame)
	assert.ErrorIs(t, m.SendHex("AA:BB:CC:DD:EE:FF", "011"), ErrInvalidFrame)
	assert.ErrorIs(t, m.Send(testAddr, nil), ErrInvalidFrame)

	port.WriteError = errors.New("EIO")
	assert.ErrorIs(t, m.Send(testAddr, []byte{0x01, 0x22, 0, 0, 0, 0}), ErrSendFailed)
	assert.True(t, m.Connected(), "send failures do not drop the connection")
}

func TestRunDispatchesPackets(t *testing.T) {
	port := NewTestPort()
	m, _, rec := newTestManager(t, port)
	runManager(t, m)

	port.AddLines("RX:AA:BB:CC:DD:EE:FF:01100000803F")

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	got := rec.all()[0]
	assert.Equal(t, testAddr, got.from)
	assert.Equal(t, nowlink.DeviceHydration, got.packet.Device)
	assert.Equal(t, nowlink.HydrationSetLED, got.packet.Command)
	assert.Equal(t, float32(1.0), got.packet.Float)
}

func TestRunSplitsPartialReads(t *testing.T) {
	port := NewTestPort()
	m, _, rec := newTestManager(t, port)
	runManager(t, m)

	port.AddReadData([]byte("RX:AA:BB:CC:DD:EE:FF:0121"))
	port.AddReadData([]byte("0000FA43\r\nRX:AA:BB:CC:DD:EE:FF:01600000"))
	port.AddReadData([]byte("8C42\n"))

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, float32(500), rec.all()[0].packet.Float)
	assert.Equal(t, float32(70), rec.all()[1].packet.Float)
}

func TestGarbageDoesNotPetWatchdog(t *testing.T) {
	port := NewTestPort()
	m, clk, rec := newTestManager(t, port)
	runManager(t, m)

	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)
	armed := m.Watchdog().LastPet()
	clk.Advance(10 * time.Second)

	for i := 0; i < 20; i++ {
		port.AddLines("\x13\x37 noise ~~~")
	}
	port.AddLines("RX:AA:BB:CC:DD:EE:FF:0110000")
	require.Eventually(t, func() bool { return m.Stats().Snapshot().TotalLines == 21 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, armed, m.Watchdog().LastPet(), "garbage and malformed lines must not pet")

	port.AddLines("HEARTBEAT", "RX:AA:BB:CC:DD:EE:FF:01210000FA43")
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.WithinDuration(t, t0.Add(10*time.Second), m.Watchdog().LastPet(), 0)
	assert.Equal(t, nowlink.HydrationReportWeight, rec.all()[0].packet.Command)

	snap := m.Stats().Snapshot()
	assert.Equal(t, uint64(20), snap.GarbageLines)
	assert.Equal(t, uint64(1), snap.MalformedLines)
	assert.True(t, m.Connected())
}

func TestRunReconnectsAfterReadError(t *testing.T) {
	first, second := NewTestPort(), NewTestPort()
	m, _, rec := newTestManager(t, first, second)
	runManager(t, m)

	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)
	first.FailRead(errors.New("device unplugged"))

	require.Eventually(t, func() bool { return m.Stats().Snapshot().Reconnects == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, first.Closed())

	second.AddLines("RX:AA:BB:CC:DD:EE:FF:01300000")
	second.AddLines("RX:AA:BB:CC:DD:EE:FF:013000000000")
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, nowlink.HydrationRequestTime, rec.all()[0].packet.Command)
}

func TestRunBacksOffWhenOpenFails(t *testing.T) {
	m, clk, _ := newTestManager(t) // no ports: every open fails
	runManager(t, m)

	// Let the first attempt fail, then advance past each backoff step.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, m.Connected())
	clk.Advance(DefaultReconnectMin)
	time.Sleep(20 * time.Millisecond)
	clk.Advance(2 * DefaultReconnectMin)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, m.Connected())
}

func TestRunStopsOnCancel(t *testing.T) {
	port := NewTestPort()
	m, _, _ := newTestManager(t, port)
	cancel, done := runManager(t, m)

	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, port.Closed())
	assert.False(t, m.Connected())
}

func TestLinesAndSubscribe(t *testing.T) {
	port := NewTestPort()
	m, _, _ := newTestManager(t, port)

	id, ch := m.Subscribe()
	runManager(t, m)

	port.AddLines("DEBUG: one", "OK:two")
	for _, want := range []string{"DEBUG: one", "OK:two"} {
		select {
		case l := <-ch:
			assert.Equal(t, want, l.Text)
		case <-time.After(time.Second):
			t.Fatalf("no line %q", want)
		}
	}
	m.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)

	lines := m.Lines(0)
	require.Len(t, lines, 2)
	assert.Equal(t, "debug", lines[0].Kind)
	assert.Equal(t, "ok", lines[1].Kind)
}

type plainPort struct {
	p *TestPort
}

func (w plainPort) Read(b []byte) (int, error)  { return w.p.Read(b) }
func (w plainPort) Write(b []byte) (int, error) { return w.p.Write(b) }
func (w plainPort) Close() error                { return w.p.Close() }

// heldResetPort blocks in SetDTR until released
type heldResetPort struct {
	*TestPort
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *heldResetPort) SetDTR(level bool) error {
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return p.TestPort.SetDTR(level)
}

func TestSendDuringResetPulse(t *testing.T) {
	port := &heldResetPort{
		TestPort: NewTestPort(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	m := NewManager(Options{
		Endpoint: "/dev/ttyTEST0",
		Open: func(ctx context.Context, endpoint string, baud int) (Port, error) {
			return plainPort{port.TestPort}, nil
		},
		Clock: clock.NewMock(t0),
	}, nil)
	require.NoError(t, m.Connect(context.Background()))

	// Swap in the blocking reset line after connecting
	m.mu.Lock()
	m.conn.port = port
	m.mu.Unlock()

	resetDone := make(chan error, 1)
	go func() { resetDone <- m.ResetGateway() }()
	<-port.entered

	sent := make(chan error, 1)
	go func() { sent <- m.Send(testAddr, []byte{0x02, 0x10, 0, 0, 0x80, 0x3F}) }()
	select {
	case err := <-sent:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send blocked behind the reset pulse")
	}
	assert.Equal(t, []string{"TX:AA:BB:CC:DD:EE:FF:02100000803F"}, port.WrittenLines())

	close(port.release)
	require.NoError(t, <-resetDone)
	assert.Equal(t, []bool{false, true, false}, port.DTR())
}
