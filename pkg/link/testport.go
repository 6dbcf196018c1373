// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
)

// TestPort is an in-memory ResetPort with configurable behaviour for tests.
// Reads block until data is added, an error is injected or the port is closed.
type TestPort struct {
	mu sync.Mutex

	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer

	// readErr is returned by the next Read call if set
	readErr error
	// WriteError is returned by every Write call while set
	WriteError error
	// DTRError is returned by SetDTR if set
	DTRError error

	closed  bool
	dtr     []bool
	writes  int
	readCnd *sync.Cond
}

// NewTestPort creates an empty TestPort
func NewTestPort() *TestPort {
	p := &TestPort{
		readBuf:  bytes.NewBuffer(nil),
		writeBuf: bytes.NewBuffer(nil),
	}
	p.readCnd = sync.NewCond(&p.mu)
	return p
}

// Read returns buffered data, blocking while the buffer is empty
func (p *TestPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && p.readErr == nil && p.readBuf.Len() == 0 {
		p.readCnd.Wait()
	}
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}
	if p.closed {
		return 0, errors.New("port closed")
	}
	return p.readBuf.Read(b)
}

// Write captures written data
func (p *TestPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.WriteError != nil {
		return 0, p.WriteError
	}
	p.writes++
	return p.writeBuf.Write(b)
}

// Close marks the port closed and wakes blocked readers
func (p *TestPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCnd.Broadcast()
	return nil
}

// SetDTR records the DTR level
func (p *TestPort) SetDTR(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DTRError != nil {
		return p.DTRError
	}
	p.dtr = append(p.dtr, level)
	return nil
}

// AddLines queues newline-terminated lines for Read
func (p *TestPort) AddLines(lines ...string) {
	p.AddReadData([]byte(strings.Join(lines, "\n") + "\n"))
}

// AddReadData queues raw bytes for Read
func (p *TestPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
	p.readCnd.Broadcast()
}

// FailRead makes the next Read return err
func (p *TestPort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.readCnd.Broadcast()
}

// Written returns everything written so far
func (p *TestPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// WrittenLines returns written data split into lines
func (p *TestPort) WrittenLines() []string {
	s := strings.TrimRight(p.Written(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// DTR returns the recorded DTR levels
func (p *TestPort) DTR() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.dtr...)
}

// Closed reports whether Close was called
func (p *TestPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// TestOpener returns an Opener handing out ports in order. Once exhausted it
// fails, which keeps a Run loop in its reconnect backoff.
func TestOpener(ports ...*TestPort) Opener {
	var mu sync.Mutex
	return func(ctx context.Context, endpoint string, baud int) (Port, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(ports) == 0 {
			return nil, errors.New("no test port available")
		}
		p := ports[0]
		ports = ports[1:]
		return p, nil
	}
}
