// Package realtime maintains the WebSocket subscription that feeds live
// participant status changes into the split session. The connection is
// expected to drop; the channel reconnects with capped exponential
// backoff and only goes quiet on explicit teardown.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/tabshare/ordercore/internal/metrics"
	"github.com/tabshare/ordercore/internal/models"
)

// State is the channel's connection state. Process-local, never
// persisted; the UI renders it as the "live" indicator.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventSink receives parsed split_status_update events in arrival order.
type EventSink interface {
	ApplyStatusEvent(userID int64, status models.ParticipantStatus)
}

type envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type statusPayload struct {
	UserID    int64 `json:"user_id"`
	NewStatus int   `json:"new_status"`
}

type subscribeMessage struct {
	Action  string `json:"action"`
	SplitID int64  `json:"split_id"`
}

// maxBackoff caps the reconnect delay.
const maxBackoff = 30 * time.Second

// backoffDelay computes the reconnect delay for the given attempt:
// min(30s, 2^attempt seconds). Attempt 1 waits 2s.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		// 2^5 s already exceeds the cap.
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Channel is a reconnecting subscription to one split session's status
// feed. Run drives it until the context is cancelled; cancellation is
// the explicit teardown and also cancels any pending reconnect timer.
type Channel struct {
	wsURL   string
	token   string
	sink    EventSink
	onState func(State)

	// backoff is swappable so tests don't sleep for real.
	backoff func(attempt int) time.Duration

	mu      sync.Mutex
	state   State
	splitID int64
	conn    *websocket.Conn
}

// Option configures a Channel.
type Option func(*Channel)

// WithStateFunc registers an observer invoked on every state change.
func WithStateFunc(fn func(State)) Option {
	return func(c *Channel) { c.onState = fn }
}

// New creates a channel for the given WebSocket endpoint and auth token.
func New(wsURL, token string, sink EventSink, opts ...Option) *Channel {
	c := &Channel{
		wsURL:   wsURL,
		token:   token,
		sink:    sink,
		backoff: backoffDelay,
		state:   StateClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resubscribe switches the channel to a new split id. On a live
// connection the subscribe message is sent in place; otherwise the id is
// picked up on the next (re)connect.
func (c *Channel) Resubscribe(splitID int64) {
	c.mu.Lock()
	c.splitID = splitID
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := writeSubscribe(ctx, conn, splitID); err != nil {
		// The read loop will notice the broken connection and redial
		// with the new id.
		slog.Warn("Resubscribe write failed", "split_id", splitID, "error", err)
	}
}

// Run connects, subscribes to the split's status feed, and dispatches
// inbound events until ctx is cancelled. Every unexpected close moves
// the channel to reconnecting and schedules a redial after
// min(30s, 2^attempt seconds); the attempt counter resets to 1 on each
// successful connect. Run always leaves the channel in StateClosed.
func (c *Channel) Run(ctx context.Context, splitID int64) error {
	c.mu.Lock()
	c.splitID = splitID
	c.mu.Unlock()

	c.setState(StateConnecting)
	attempt := 1
	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateClosed)
			return err
		}

		conn, _, err := websocket.Dial(ctx, c.dialURL(), nil)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateClosed)
				return ctx.Err()
			}
			slog.Warn("Realtime connect failed", "error", err)
			if err := c.waitReconnect(ctx, &attempt); err != nil {
				return err
			}
			continue
		}

		if err := writeSubscribe(ctx, conn, c.currentSplitID()); err != nil {
			conn.Close(websocket.StatusInternalError, "subscribe failed")
			if ctx.Err() != nil {
				c.setState(StateClosed)
				return ctx.Err()
			}
			slog.Warn("Realtime subscribe failed", "error", err)
			if err := c.waitReconnect(ctx, &attempt); err != nil {
				return err
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		attempt = 1
		slog.Info("Realtime channel connected", "split_id", c.currentSplitID())

		readErr := c.consume(ctx, conn)
		conn.Close(websocket.StatusNormalClosure, "reconnect")
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.setState(StateClosed)
			return ctx.Err()
		}
		slog.Warn("Realtime channel dropped", "error", readErr)
		if err := c.waitReconnect(ctx, &attempt); err != nil {
			return err
		}
	}
}

// waitReconnect transitions to reconnecting and sleeps for the backoff
// delay, bumping the attempt counter. Context cancellation cancels the
// pending timer and closes the channel instead.
func (c *Channel) waitReconnect(ctx context.Context, attempt *int) error {
	c.setState(StateReconnecting)
	metrics.Reconnects.Inc()
	delay := c.backoff(*attempt)
	*attempt++
	slog.Debug("Scheduling reconnect", "attempt", *attempt-1, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		c.setState(StateClosed)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Channel) consume(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

// handleMessage parses one inbound frame. Inbound data is untrusted:
// anything that is not a well-formed split_status_update becomes a
// logged no-op, never an error.
func (c *Channel) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("Dropping malformed realtime frame", "error", err)
		return
	}
	if env.EventType != "split_status_update" {
		slog.Debug("Ignoring realtime event", "event_type", env.EventType)
		return
	}

	var payload statusPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		slog.Warn("Dropping split_status_update with malformed payload", "error", err)
		return
	}
	status, ok := models.ParticipantStatusFromWire(payload.NewStatus)
	if !ok {
		slog.Warn("Dropping split_status_update with unknown status",
			"user_id", payload.UserID,
			"new_status", payload.NewStatus,
		)
		return
	}
	c.sink.ApplyStatusEvent(payload.UserID, status)
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if !changed {
		return
	}
	metrics.ConnectionState.Set(float64(state))
	if c.onState != nil {
		c.onState(state)
	}
}

func (c *Channel) currentSplitID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.splitID
}

func (c *Channel) dialURL() string {
	query := url.Values{}
	query.Set("split_id", fmt.Sprintf("%d", c.currentSplitID()))
	query.Set("token", c.token)
	return c.wsURL + "?" + query.Encode()
}

func writeSubscribe(ctx context.Context, conn *websocket.Conn, splitID int64) error {
	payload, err := json.Marshal(subscribeMessage{Action: "subscribe", SplitID: splitID})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
