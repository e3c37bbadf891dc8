// Package api is the HTTP client for the ordering backend. It speaks the
// JSON REST contract; the realtime WebSocket channel lives in
// internal/realtime.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tabshare/ordercore/internal/models"
)

// NetworkError wraps any transport, HTTP-status, or response-decode
// failure. Transient: callers surface it as a retryable error state and
// keep whatever cache they already have.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("api: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Allocation is one participant's share as submitted to the backend.
type Allocation struct {
	UserID int64 `json:"user_id"`
	Amount int64 `json:"amount"`
}

// Member is a split participant as reported by getSplitStatus.
type Member struct {
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Amount  int64  `json:"amount"`
	Status  int    `json:"status"`
	IsOwner bool   `json:"is_owner"`
}

// SplitStatus is the backend's canonical view of a split session.
type SplitStatus struct {
	SplitID     int64    `json:"split_id"`
	OrderIDs    []int64  `json:"order_ids"`
	Total       int64    `json:"total"`
	Locked      bool     `json:"locked"`
	IsCompleted bool     `json:"is_completed"`
	Members     []Member `json:"members"`
}

// Client calls the ordering backend over HTTP with a bearer token.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

// New creates a backend client. A nil http.Client gets a sane default
// with a request timeout; remote calls must never hang a caller forever.
func New(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, hc: hc}
}

type orderPayload struct {
	ID       int64 `json:"id"`
	VendorID int64 `json:"vendor_id"`
	Items    []struct {
		ItemID    int64  `json:"item_id"`
		Name      string `json:"name"`
		UnitPrice int64  `json:"unit_price"`
		Quantity  int    `json:"quantity"`
		Veg       bool   `json:"veg"`
	} `json:"items"`
	Total     int64 `json:"total"`
	Status    int   `json:"status"`
	OTPSeen   bool  `json:"otp_seen"`
	IsSplit   bool  `json:"is_split"`
	CreatedAt int64 `json:"created_at"`
}

func (p *orderPayload) toModel() (models.Order, bool) {
	status := models.OrderStatus(p.Status)
	if !status.Valid() {
		return models.Order{}, false
	}
	order := models.Order{
		ID:        p.ID,
		VendorID:  p.VendorID,
		Total:     p.Total,
		Status:    status,
		OTPSeen:   p.OTPSeen,
		IsSplit:   p.IsSplit,
		CreatedAt: p.CreatedAt,
	}
	for _, it := range p.Items {
		order.Items = append(order.Items, models.OrderItem{
			ItemID:    it.ItemID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Veg:       it.Veg,
		})
	}
	return order, true
}

// ListOrders fetches one page of the user's orders, newest first.
// hasMore reports whether the backend has pages beyond this one.
// Orders with a status outside the known lifecycle are dropped, not
// treated as an error.
func (c *Client) ListOrders(ctx context.Context, page int) ([]models.Order, bool, error) {
	var resp struct {
		Orders  []orderPayload `json:"orders"`
		HasMore bool           `json:"has_more"`
	}
	path := fmt.Sprintf("/orders?page=%d", page)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, false, err
	}

	orders := make([]models.Order, 0, len(resp.Orders))
	for i := range resp.Orders {
		order, ok := resp.Orders[i].toModel()
		if !ok {
			slog.Warn("Dropping order with unknown status",
				"order_id", resp.Orders[i].ID,
				"status", resp.Orders[i].Status,
			)
			continue
		}
		orders = append(orders, order)
	}
	return orders, resp.HasMore, nil
}

// CreateSplit opens a split session over the given orders and returns
// the backend-assigned split id.
func (c *Client) CreateSplit(ctx context.Context, orderIDs []int64) (int64, error) {
	req := struct {
		OrderIDs []int64 `json:"order_ids"`
	}{OrderIDs: orderIDs}
	var resp struct {
		SplitID int64 `json:"split_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/splits", req, &resp); err != nil {
		return 0, err
	}
	return resp.SplitID, nil
}

// GetSplitStatus fetches the canonical state of a split session.
func (c *Client) GetSplitStatus(ctx context.Context, splitID int64) (*SplitStatus, error) {
	var resp SplitStatus
	path := fmt.Sprintf("/splits/%d", splitID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitAllocations communicates the finalized per-participant amounts.
func (c *Client) SubmitAllocations(ctx context.Context, splitID int64, allocations []Allocation) error {
	req := struct {
		Allocations []Allocation `json:"allocations"`
	}{Allocations: allocations}
	path := fmt.Sprintf("/splits/%d/allocations", splitID)
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// RevealOTP asks the backend for the order's pickup code. The backend
// records the disclosure; calling this more than once per order is the
// gate's job to prevent.
func (c *Client) RevealOTP(ctx context.Context, orderID int64) (string, error) {
	var resp struct {
		OTP string `json:"otp"`
	}
	path := fmt.Sprintf("/orders/%d/otp", orderID)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.OTP, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	var body *bytes.Buffer
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &NetworkError{Op: op, Err: err}
		}
		body = bytes.NewBuffer(payload)
	} else {
		body = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.hc.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
