// Package otp guards the one-time reveal of an order's pickup code.
// The backend discloses the code exactly once; the gate enforces that
// locally by checking preconditions before the remote call, recording
// the reveal durably, and collapsing concurrent callers onto a single
// in-flight request.
package otp

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tabshare/ordercore/internal/metrics"
	"github.com/tabshare/ordercore/internal/models"
)

var (
	// ErrAlreadySeen flags a reveal for an order whose code was
	// already disclosed. Raised locally with the cached code, no
	// remote call is made.
	ErrAlreadySeen = errors.New("otp already seen")

	// ErrNotAccepted rejects a reveal while the vendor has not accepted
	// the order yet.
	ErrNotAccepted = errors.New("order not yet accepted")

	// ErrTerminal rejects a reveal on a completed or cancelled order.
	ErrTerminal = errors.New("order already closed")
)

// Revealer performs the remote reveal call.
type Revealer interface {
	RevealOTP(ctx context.Context, orderID int64) (string, error)
}

// OrderStore is the slice of the local cache the gate needs.
type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	MarkOTPSeen(ctx context.Context, orderID int64, code string) error
}

// revealCall is one in-flight reveal shared by concurrent callers.
type revealCall struct {
	done chan struct{}
	code string
	err  error
}

// Gate serializes reveals per order id.
type Gate struct {
	api   Revealer
	store OrderStore

	mu       sync.Mutex
	inflight map[int64]*revealCall
}

// NewGate creates a reveal gate over the given backend and cache.
func NewGate(api Revealer, store OrderStore) *Gate {
	return &Gate{
		api:      api,
		store:    store,
		inflight: make(map[int64]*revealCall),
	}
}

// Reveal returns the order's pickup code, performing at most one remote
// call per order ever. Preconditions are checked locally first: a
// pending order returns ErrNotAccepted and a terminal one ErrTerminal.
// An already-revealed order returns the durably cached code together
// with ErrAlreadySeen, so callers get the result without a second
// disclosure. None of these reach the backend. A concurrent second caller joins the in-flight call and
// observes the same result instead of triggering a duplicate reveal.
func (g *Gate) Reveal(ctx context.Context, orderID int64) (string, error) {
	g.mu.Lock()
	if call, ok := g.inflight[orderID]; ok {
		g.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-call.done:
			return call.code, call.err
		}
	}
	call := &revealCall{done: make(chan struct{})}
	g.inflight[orderID] = call
	g.mu.Unlock()

	call.code, call.err = g.reveal(ctx, orderID)
	close(call.done)

	g.mu.Lock()
	delete(g.inflight, orderID)
	g.mu.Unlock()

	return call.code, call.err
}

func (g *Gate) reveal(ctx context.Context, orderID int64) (string, error) {
	order, err := g.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.OTPSeen {
		// The code was already disclosed and is cached durably, so
		// hand it back with the sentinel; the backend is not asked
		// again.
		return order.OTP, ErrAlreadySeen
	}
	if order.Status == models.OrderPending {
		return "", ErrNotAccepted
	}
	if order.Status.Terminal() {
		return "", ErrTerminal
	}

	code, err := g.api.RevealOTP(ctx, orderID)
	if err != nil {
		return "", err
	}

	// The reveal must be durable before the code is handed out; if the
	// write fails the operation fails as a whole.
	if err := g.store.MarkOTPSeen(ctx, orderID, code); err != nil {
		slog.Error("Failed to persist otp reveal", "order_id", orderID, "error", err)
		return "", err
	}

	metrics.OTPReveals.Inc()
	slog.Info("Pickup code revealed", "order_id", orderID)
	return code, nil
}
