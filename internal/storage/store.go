// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"fmt"

	"github.com/tabshare/ordercore/internal/models"
)

// PersistenceError wraps a storage-layer failure. Callers must treat the
// operation as having had no effect: every mutating Store method is
// all-or-nothing, so a PersistenceError never means a partial write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store defines the interface for the local order cache.
// This abstraction allows swapping storage backends (SQLite, an in-memory
// fake for tests, etc.) without changing the callers.
//
// All mutations are durable before the call returns, and each mutating
// method applies atomically: on error nothing is written.
type Store interface {
	// UpsertOrders merges a batch of fetched orders by id. Every field
	// is last-write-wins except OTPSeen and IsSplit, which are monotonic
	// and never revert from true to false.
	UpsertOrders(ctx context.Context, orders []models.Order) error

	// GetOrder retrieves a single order by id.
	// Returns nil and an error if the order is not cached.
	GetOrder(ctx context.Context, id int64) (*models.Order, error)

	// GetOrders returns cached orders whose status is in the given set,
	// newest first. An empty set returns every cached order.
	GetOrders(ctx context.Context, statuses ...models.OrderStatus) ([]models.Order, error)

	// MarkSplit sets IsSplit on exactly the given orders in a single
	// transaction. If any id is unknown or already split, no order is
	// marked.
	MarkSplit(ctx context.Context, orderIDs []int64) error

	// MarkOTPSeen durably records the revealed pickup code and flips
	// OTPSeen for the order.
	MarkOTPSeen(ctx context.Context, orderID int64, code string) error

	// Close releases any resources held by the store.
	Close() error
}
