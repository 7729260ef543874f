package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/monitoring"
	"github.com/banshee-data/fleetwatch/internal/timeutil"
)

// Reconnect backoff bounds: 1s doubling, capped at 30s.
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 30 * time.Second
)

// Conn is one established stream connection. The production implementation
// wraps a websocket; tests use a scripted mock.
type Conn interface {
	// ReadMessage blocks until the next inbound frame or an error.
	ReadMessage() (string, error)
	// WriteJSON sends one JSON-encoded message.
	WriteJSON(v any) error
	// Close tears the connection down. Concurrent reads unblock with an
	// error.
	Close() error
}

// Dialer establishes stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// OnUpdate receives each decoded telemetry batch in one atomic callback.
type OnUpdate func(fleet.Batch)

// Channel is the reconnecting telemetry stream client. Connect opens the
// stream and begins the subscribe/ack/event cycle; any close or error
// schedules a single backoff reconnect which re-issues the subscription
// from scratch. Disconnect is idempotent and callable from any state.
type Channel struct {
	dialer Dialer
	url    string
	clock  timeutil.Clock

	mu               sync.Mutex
	conn             Conn
	credential       string
	scope            Scope
	onUpdate         OnUpdate
	backoff          time.Duration
	reconnectTimer   timeutil.Timer
	reconnectPending bool
	closed           bool
	gen              int
	done             chan struct{}
}

// NewChannel creates a Channel for the given stream URL. A nil clock
// defaults to the real clock.
func NewChannel(dialer Dialer, url string, clock timeutil.Clock) *Channel {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Channel{
		dialer: dialer,
		url:    url,
		clock:  clock,
	}
}

// Connect opens the stream, issues the subscription, and starts the read
// loop. The initial dial failure is not fatal: a reconnect is scheduled
// and Connect returns nil, matching the recoverable-transport contract.
func (c *Channel) Connect(ctx context.Context, credential string, scope Scope, onUpdate OnUpdate) error {
	c.mu.Lock()
	if c.conn != nil || c.reconnectPending {
		c.mu.Unlock()
		return fmt.Errorf("channel already connected")
	}
	c.credential = credential
	c.scope = scope
	c.onUpdate = onUpdate
	c.backoff = InitialBackoff
	c.closed = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		monitoring.Logf("stream: initial connect failed, will retry: %v", err)
		c.mu.Lock()
		c.scheduleReconnectLocked(ctx)
		c.mu.Unlock()
	}
	return nil
}

// dial establishes a connection, sends the subscription, and starts a
// read loop for it. On success the backoff resets to its initial value.
func (c *Channel) dial(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	envelope := newSubscribeEnvelope(c.credential, c.scope)
	c.mu.Unlock()

	if err := conn.WriteJSON(envelope); err != nil {
		conn.Close()
		return fmt.Errorf("send subscription: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		// Disconnect ran while the subscription write was in flight.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.backoff = InitialBackoff
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.readLoop(ctx, conn, gen)
	monitoring.Logf("stream: connected to %s", c.url)
	return nil
}

// readLoop consumes frames until the connection drops. A self-initiated
// close (Disconnect, or a stale generation after a reconnect) exits
// silently; anything else schedules a reconnect.
func (c *Channel) readLoop(ctx context.Context, conn Conn, gen int) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.closed || gen != c.gen {
				c.mu.Unlock()
				return
			}
			c.conn = nil
			monitoring.Logf("stream: connection lost: %v", err)
			c.scheduleReconnectLocked(ctx)
			c.mu.Unlock()
			return
		}
		c.handleFrame(msg)
	}
}

// handleFrame decodes and dispatches one inbound message. Unparseable
// frames and failed acks are logged and skipped, never fatal.
func (c *Channel) handleFrame(msg string) {
	f := decodeFrame(msg)
	if f == nil {
		return
	}

	switch f.Type {
	case frameTypeResponse:
		if f.Action != ackAction {
			return
		}
		if ok, detail := parseAck(f.Data); ok {
			monitoring.Logf("stream: subscription acknowledged")
		} else {
			monitoring.Logf("stream: subscription ack failure (continuing): %s", detail)
		}

	case frameTypeEvent:
		if f.Event != requestStateBatch {
			return
		}
		batch := parseStateBatch(f.Data)
		if len(batch) == 0 {
			return
		}
		c.mu.Lock()
		cb := c.onUpdate
		c.mu.Unlock()
		if cb != nil {
			cb(batch)
		}
	}
}

// scheduleReconnectLocked arms the single backoff reconnect timer. At most
// one reconnect may be outstanding; if one is already pending this is a
// no-op. Callers hold c.mu.
func (c *Channel) scheduleReconnectLocked(ctx context.Context) {
	if c.closed || c.reconnectPending {
		return
	}
	delay := c.backoff
	c.backoff *= 2
	if c.backoff > MaxBackoff {
		c.backoff = MaxBackoff
	}
	c.reconnectPending = true
	c.reconnectTimer = c.clock.NewTimer(delay)
	timer := c.reconnectTimer
	done := c.done

	monitoring.Logf("stream: reconnecting in %v", delay)

	go func() {
		select {
		case <-timer.C():
		case <-done:
			return
		}
		c.mu.Lock()
		c.reconnectPending = false
		c.reconnectTimer = nil
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.dial(ctx); err != nil {
			monitoring.Logf("stream: reconnect failed: %v", err)
			c.mu.Lock()
			c.scheduleReconnectLocked(ctx)
			c.mu.Unlock()
		}
	}()
}

// Disconnect tears the channel down: it cancels any pending reconnect,
// detaches the update callback, and closes the connection so the read
// loop exits without scheduling another reconnect. Safe to call from any
// state, any number of times.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectPending = false
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	conn := c.conn
	c.conn = nil
	c.onUpdate = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connected reports whether a live connection is currently established.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
