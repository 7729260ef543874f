package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// MockConn is a scripted stream connection for tests and dev mode. Queued
// frames are delivered in order by ReadMessage; writes are recorded for
// inspection.
type MockConn struct {
	mu      sync.Mutex
	frames  chan string
	writes  []string
	readErr error
	closed  bool
}

// NewMockConn creates an open MockConn.
func NewMockConn() *MockConn {
	return &MockConn{frames: make(chan string, 64)}
}

// Queue appends a frame to be returned by a future ReadMessage call.
func (m *MockConn) Queue(frame string) {
	m.frames <- frame
}

// FailRead makes the next ReadMessage (after any queued frames drain)
// return err instead of blocking, simulating a dropped connection.
func (m *MockConn) FailRead(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
	// wake a blocked reader
	select {
	case m.frames <- "":
	default:
	}
}

func (m *MockConn) ReadMessage() (string, error) {
	for {
		frame, ok := <-m.frames
		if !ok {
			return "", io.EOF
		}
		if frame == "" {
			m.mu.Lock()
			err := m.readErr
			m.mu.Unlock()
			if err != nil {
				return "", err
			}
			continue
		}
		return frame, nil
	}
}

func (m *MockConn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("write on closed connection")
	}
	m.writes = append(m.writes, string(b))
	return nil
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.frames)
	return nil
}

// Writes returns everything written to the connection so far.
func (m *MockConn) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.writes))
	copy(out, m.writes)
	return out
}

// Closed reports whether Close has been called.
func (m *MockConn) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockDialer hands out a sequence of MockConns, one per Dial call. When
// the script runs out, Dial fails, which exercises the reconnect path.
type MockDialer struct {
	mu    sync.Mutex
	conns []*MockConn
	dials int
}

// NewMockDialer creates a dialer that will serve the given connections in
// order.
func NewMockDialer(conns ...*MockConn) *MockDialer {
	return &MockDialer{conns: conns}
}

// Dial returns the next scripted connection.
func (d *MockDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, fmt.Errorf("no connection available")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

// Dials returns how many times Dial has been called.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
