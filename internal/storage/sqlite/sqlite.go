// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/tabshare/ordercore/internal/models"
	"github.com/tabshare/ordercore/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	// mu serializes writes. SQLite allows a single writer; taking the
	// lock up front avoids SQLITE_BUSY under concurrent mutations.
	mu sync.Mutex
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertOrders merges a batch of orders in a single transaction.
// Plain fields are last-write-wins; otp_seen and is_split only ever move
// from 0 to 1, and a stored pickup code is never overwritten by the empty
// code carried on fetched orders.
func (s *SQLiteStore) UpsertOrders(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.PersistenceError{Op: "upsert orders", Err: err}
	}
	defer tx.Rollback()

	for i := range orders {
		o := &orders[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (id, vendor_id, total, status, otp, otp_seen, is_split, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				vendor_id  = excluded.vendor_id,
				total      = excluded.total,
				status     = excluded.status,
				otp        = CASE WHEN excluded.otp = '' THEN orders.otp ELSE excluded.otp END,
				otp_seen   = MAX(orders.otp_seen, excluded.otp_seen),
				is_split   = MAX(orders.is_split, excluded.is_split),
				created_at = excluded.created_at`,
			o.ID, o.VendorID, o.Total, int(o.Status), o.OTP, boolToInt(o.OTPSeen), boolToInt(o.IsSplit), o.CreatedAt,
		)
		if err != nil {
			return &storage.PersistenceError{Op: "upsert order", Err: err}
		}

		// Replace line items wholesale; the fetched order carries the
		// full list.
		if _, err = tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = ?", o.ID); err != nil {
			return &storage.PersistenceError{Op: "clear order items", Err: err}
		}
		for _, item := range o.Items {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO order_items (order_id, item_id, name, unit_price, quantity, veg) VALUES (?, ?, ?, ?, ?, ?)",
				o.ID, item.ItemID, item.Name, item.UnitPrice, item.Quantity, boolToInt(item.Veg),
			)
			if err != nil {
				return &storage.PersistenceError{Op: "insert order item", Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &storage.PersistenceError{Op: "commit upsert", Err: err}
	}
	return nil
}

// GetOrder retrieves a single order with its line items.
func (s *SQLiteStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}
	var status, otpSeen, isSplit int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, vendor_id, total, status, otp, otp_seen, is_split, created_at FROM orders WHERE id = ?",
		id,
	).Scan(&order.ID, &order.VendorID, &order.Total, &status, &order.OTP, &otpSeen, &isSplit, &order.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get order", Err: err}
	}
	order.Status = models.OrderStatus(status)
	order.OTPSeen = otpSeen != 0
	order.IsSplit = isSplit != 0

	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrders returns cached orders filtered by status, newest first.
func (s *SQLiteStore) GetOrders(ctx context.Context, statuses ...models.OrderStatus) ([]models.Order, error) {
	query := "SELECT id, vendor_id, total, status, otp, otp_seen, is_split, created_at FROM orders"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, int(st))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get orders", Err: err}
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		var status, otpSeen, isSplit int
		if err := rows.Scan(&order.ID, &order.VendorID, &order.Total, &status, &order.OTP, &otpSeen, &isSplit, &order.CreatedAt); err != nil {
			return nil, &storage.PersistenceError{Op: "scan order", Err: err}
		}
		order.Status = models.OrderStatus(status)
		order.OTPSeen = otpSeen != 0
		order.IsSplit = isSplit != 0
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "iterate orders", Err: err}
	}

	for i := range orders {
		if err := s.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// MarkSplit flags the given orders as split in a single transaction.
// If any id is unknown or already split the transaction rolls back and
// no order is marked.
func (s *SQLiteStore) MarkSplit(ctx context.Context, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.PersistenceError{Op: "mark split", Err: err}
	}
	defer tx.Rollback()

	for _, id := range orderIDs {
		res, err := tx.ExecContext(ctx,
			"UPDATE orders SET is_split = 1 WHERE id = ? AND is_split = 0",
			id,
		)
		if err != nil {
			return &storage.PersistenceError{Op: "mark split", Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return &storage.PersistenceError{Op: "mark split", Err: err}
		}
		if n != 1 {
			return &storage.PersistenceError{
				Op:  "mark split",
				Err: fmt.Errorf("order %d missing or already split", id),
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &storage.PersistenceError{Op: "commit mark split", Err: err}
	}
	return nil
}

// MarkOTPSeen stores the revealed pickup code and flips otp_seen.
func (s *SQLiteStore) MarkOTPSeen(ctx context.Context, orderID int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET otp = ?, otp_seen = 1 WHERE id = ?",
		code, orderID,
	)
	if err != nil {
		return &storage.PersistenceError{Op: "mark otp seen", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &storage.PersistenceError{Op: "mark otp seen", Err: err}
	}
	if n != 1 {
		return &storage.PersistenceError{
			Op:  "mark otp seen",
			Err: fmt.Errorf("order not found: %d", orderID),
		}
	}
	return nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT item_id, name, unit_price, quantity, veg FROM order_items WHERE order_id = ? ORDER BY item_id",
		order.ID,
	)
	if err != nil {
		return &storage.PersistenceError{Op: "get order items", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		var veg int
		if err := rows.Scan(&item.ItemID, &item.Name, &item.UnitPrice, &item.Quantity, &veg); err != nil {
			return &storage.PersistenceError{Op: "scan order item", Err: err}
		}
		item.Veg = veg != 0
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return &storage.PersistenceError{Op: "iterate order items", Err: err}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
