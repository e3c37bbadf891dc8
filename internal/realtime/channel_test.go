package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/tabshare/ordercore/internal/models"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{50, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

type appliedEvent struct {
	userID int64
	status models.ParticipantStatus
}

type recordingSink struct {
	events chan appliedEvent
}

func (s *recordingSink) ApplyStatusEvent(userID int64, status models.ParticipantStatus) {
	s.events <- appliedEvent{userID: userID, status: status}
}

// statusServer accepts WebSocket clients, records every subscribe
// message, and hands the live connection to the test for pushing frames.
type statusServer struct {
	*httptest.Server
	subscribes chan subscribeMessage
	conns      chan *websocket.Conn
}

func newStatusServer(t *testing.T) *statusServer {
	t.Helper()
	s := &statusServer{
		subscribes: make(chan subscribeMessage, 8),
		conns:      make(chan *websocket.Conn, 8),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "test-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			_, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			var sub subscribeMessage
			if json.Unmarshal(data, &sub) == nil && sub.Action == "subscribe" {
				s.subscribes <- sub
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *statusServer) push(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestChannelDeliversStatusEvents(t *testing.T) {
	server := newStatusServer(t)
	sink := &recordingSink{events: make(chan appliedEvent, 8)}

	var stateMu sync.Mutex
	var states []State
	ch := New(server.URL, "test-token", sink, WithStateFunc(func(s State) {
		stateMu.Lock()
		states = append(states, s)
		stateMu.Unlock()
	}))
	ch.backoff = func(int) time.Duration { return time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx, 99) }()

	sub := waitFor(t, server.subscribes, "subscribe message")
	if sub.SplitID != 99 {
		t.Errorf("subscribed to split %d, want 99", sub.SplitID)
	}
	conn := waitFor(t, server.conns, "server connection")

	// A well-formed status event is dispatched.
	server.push(t, conn, `{"event_type":"split_status_update","payload":{"user_id":2,"new_status":1}}`)
	got := waitFor(t, sink.events, "applied event")
	if got.userID != 2 || got.status != models.ParticipantAccepted {
		t.Errorf("applied = %+v", got)
	}

	// Foreign events, malformed frames, and unknown statuses are
	// silently dropped without killing the stream.
	server.push(t, conn, `{"event_type":"split_completed","payload":{}}`)
	server.push(t, conn, `this is not json`)
	server.push(t, conn, `{"event_type":"split_status_update","payload":{"user_id":3,"new_status":9}}`)
	server.push(t, conn, `{"event_type":"split_status_update","payload":{"user_id":3,"new_status":2}}`)

	got = waitFor(t, sink.events, "event after garbage frames")
	if got.userID != 3 || got.status != models.ParticipantRejected {
		t.Errorf("applied = %+v, want user 3 rejected", got)
	}
	select {
	case ev := <-sink.events:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}

	// An unexpected server-side close triggers a reconnect and a fresh
	// subscribe for the same split.
	conn.Close(websocket.StatusGoingAway, "restart")
	sub = waitFor(t, server.subscribes, "resubscribe after drop")
	if sub.SplitID != 99 {
		t.Errorf("resubscribed to split %d, want 99", sub.SplitID)
	}

	cancel()
	if err := waitFor(t, done, "Run to return"); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	if ch.State() != StateClosed {
		t.Errorf("state = %s, want closed", ch.State())
	}

	stateMu.Lock()
	defer stateMu.Unlock()
	var sawReconnecting bool
	for _, s := range states {
		if s == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Error("state observer never saw reconnecting")
	}
	if states[len(states)-1] != StateClosed {
		t.Errorf("final observed state = %s, want closed", states[len(states)-1])
	}
}

func TestResubscribeOnLiveConnection(t *testing.T) {
	server := newStatusServer(t)
	sink := &recordingSink{events: make(chan appliedEvent, 1)}
	ch := New(server.URL, "test-token", sink)
	ch.backoff = func(int) time.Duration { return time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx, 99) }()

	waitFor(t, server.subscribes, "initial subscribe")
	waitFor(t, server.conns, "server connection")

	ch.Resubscribe(123)
	sub := waitFor(t, server.subscribes, "resubscribe message")
	if sub.SplitID != 123 {
		t.Errorf("resubscribed to split %d, want 123", sub.SplitID)
	}

	cancel()
	waitFor(t, done, "Run to return")
}

func TestTeardownCancelsPendingReconnect(t *testing.T) {
	sink := &recordingSink{events: make(chan appliedEvent, 1)}
	// Nothing listens here; every dial fails immediately.
	ch := New("ws://127.0.0.1:1", "test-token", sink)
	ch.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx, 99) }()

	deadline := time.Now().Add(5 * time.Second)
	for ch.State() != StateReconnecting {
		if time.Now().After(deadline) {
			t.Fatal("channel never reached reconnecting")
		}
		time.Sleep(time.Millisecond)
	}

	// Teardown while the hour-long reconnect timer is pending must
	// return promptly, not fire the reconnect.
	cancel()
	if err := waitFor(t, done, "Run to return"); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	if ch.State() != StateClosed {
		t.Errorf("state = %s, want closed", ch.State())
	}
}
