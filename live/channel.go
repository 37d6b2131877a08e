// Package live maintains the persistent websocket connection that
// delivers out-of-band change notifications. The channel reconnects
// automatically with bounded exponential backoff and reports exhaustion
// of the attempt budget to subscribers instead of failing; it is
// expected to be long-lived and self-healing.
package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quillworks/quill"
	"github.com/quillworks/quill/dispatch"
)

// TopicConnectionLost is published through the dispatcher when the
// channel exhausts its reconnection budget and goes dormant.
const TopicConnectionLost = "connection_lost"

// msgTypeStateChanged is the recognized inbound message type. Its event
// field becomes the published topic.
const msgTypeStateChanged = "state_changed"

// maxMessageSize is the read limit on the socket.
const maxMessageSize = 1 << 20

// Status is the connection lifecycle state.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionState is the observable state of the channel. Attempt counts
// consecutive failed close-then-retry cycles; NextRetryAt is zero unless
// a retry is scheduled.
type ConnectionState struct {
	Status      Status
	Attempt     int
	NextRetryAt time.Time
}

// notification is the inbound wire message.
type notification struct {
	Type   string          `json:"type"`
	Event  string          `json:"event"`
	Entity json.RawMessage `json:"entity"`
}

// Channel is a websocket client with automatic reconnection. Transitions
// are driven only by network callbacks and the retry timer; the only
// external inputs are Reconnect and Close.
type Channel struct {
	url        string
	dispatcher *dispatch.Dispatcher
	dialer     *websocket.Dialer
	backoff    Backoff
	after      func(time.Duration) <-chan time.Time
	logger     quill.Logger

	mu          sync.Mutex
	status      Status
	attempt     int
	nextRetryAt time.Time
	conn        *websocket.Conn
	closed      bool

	done chan struct{}
	kick chan struct{}
}

// ChannelOption configures a [Channel].
type ChannelOption func(*Channel)

// WithBackoff sets the reconnection policy.
func WithBackoff(b Backoff) ChannelOption {
	return func(c *Channel) { c.backoff = b }
}

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) ChannelOption {
	return func(c *Channel) { c.dialer = d }
}

// WithAfterFunc replaces the retry timer, letting tests drive the
// backoff clock without sleeping.
func WithAfterFunc(after func(time.Duration) <-chan time.Time) ChannelOption {
	return func(c *Channel) { c.after = after }
}

// WithLogger sets the channel's logger.
func WithLogger(l quill.Logger) ChannelOption {
	return func(c *Channel) { c.logger = l }
}

// Open creates the channel and starts its connection loop. Notifications
// are delivered through d. Close tears the channel down.
func Open(url string, d *dispatch.Dispatcher, opts ...ChannelOption) *Channel {
	c := &Channel{
		url:        url,
		dispatcher: d,
		dialer:     websocket.DefaultDialer,
		backoff:    DefaultBackoff,
		after:      time.After,
		logger:     quill.NopLogger{},
		status:     StatusConnecting,
		done:       make(chan struct{}),
		kick:       make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	go c.run()
	return c
}

// State returns the observable connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionState{Status: c.status, Attempt: c.attempt, NextRetryAt: c.nextRetryAt}
}

// Reconnect requests an immediate connection attempt and resets the
// attempt counter. It is the only way out of the dormant state reached
// when the attempt budget is exhausted.
func (c *Channel) Reconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return quill.ErrChannelClosed
	}
	c.mu.Unlock()

	select {
	case c.kick <- struct{}{}:
	default:
	}
	return nil
}

// Close tears the channel down: the pending retry timer is abandoned,
// the socket is closed, and no further reconnection happens. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.status = StatusClosed
	c.nextRetryAt = time.Time{}
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (c *Channel) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// run is the connection loop: dial, read until closure, then either
// retry after a backoff delay or go dormant once the budget is spent.
func (c *Channel) run() {
	for {
		if c.isDone() {
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.status = StatusConnecting
		c.nextRetryAt = time.Time{}
		c.mu.Unlock()

		conn, resp, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			c.logger.Warn("live channel dial failed", "url", c.url, "error", err)
		} else {
			conn.SetReadLimit(maxMessageSize)

			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				_ = conn.Close()
				return
			}
			c.conn = conn
			c.status = StatusOpen
			c.attempt = 0
			c.mu.Unlock()

			// A Reconnect issued while open must not skip the next
			// backoff wait.
			select {
			case <-c.kick:
			default:
			}

			c.logger.Info("live channel connected", "url", c.url)
			c.readLoop(conn)

			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			_ = conn.Close()
		}

		if c.isDone() {
			return
		}
		if !c.waitRetry() {
			return
		}
	}
}

// waitRetry runs one close-then-retry cycle. It returns false when the
// channel was closed while waiting.
func (c *Channel) waitRetry() bool {
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.status = StatusClosed

	if attempt >= c.backoff.MaxAttempts {
		c.nextRetryAt = time.Time{}
		c.mu.Unlock()

		c.logger.Error("live channel dormant after repeated failures", "attempts", attempt)
		c.dispatcher.Publish(TopicConnectionLost, nil)

		select {
		case <-c.done:
			return false
		case <-c.kick:
			c.resetAttempts()
			return true
		}
	}

	delay := c.backoff.Delay(attempt - 1)
	c.nextRetryAt = time.Now().Add(delay)
	c.mu.Unlock()

	c.logger.Info("live channel reconnecting", "attempt", attempt, "delay", delay)

	select {
	case <-c.done:
		return false
	case <-c.kick:
		c.resetAttempts()
		return true
	case <-c.after(delay):
		return true
	}
}

func (c *Channel) resetAttempts() {
	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
}

// readLoop consumes inbound messages until the connection drops. A bad
// message never tears the connection down; receipt never touches the
// reconnect state.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case c.isDone():
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info("live channel closed by server")
			default:
				c.logger.Warn("live channel read failed", "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Channel) handleMessage(data []byte) {
	var n notification
	if err := json.Unmarshal(data, &n); err != nil {
		c.logger.Warn("dropping malformed live message", "error", err)
		return
	}
	switch n.Type {
	case msgTypeStateChanged:
		c.dispatcher.Publish(n.Event, n.Entity)
	case "":
		c.logger.Warn("dropping live message without type")
	default:
		c.logger.Debug("ignoring live message", "type", n.Type)
	}
}
