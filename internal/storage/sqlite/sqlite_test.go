package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tabshare/ordercore/internal/models"
	"github.com/tabshare/ordercore/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "ordercore-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testOrder(id int64) models.Order {
	return models.Order{
		ID:       id,
		VendorID: 7,
		Items: []models.OrderItem{
			{ItemID: 1, Name: "Masala Dosa", UnitPrice: 12000, Quantity: 2, Veg: true},
			{ItemID: 2, Name: "Filter Coffee", UnitPrice: 4000, Quantity: 1, Veg: true},
		},
		Total:     28000,
		Status:    models.OrderPreparing,
		CreatedAt: 1700000000 + id,
	}
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("UpsertOrders round-trips order with items", func(t *testing.T) {
		want := testOrder(1)
		if err := store.UpsertOrders(ctx, []models.Order{want}); err != nil {
			t.Fatalf("UpsertOrders failed: %v", err)
		}

		got, err := store.GetOrder(ctx, 1)
		if err != nil {
			t.Fatalf("GetOrder failed: %v", err)
		}
		if got.VendorID != want.VendorID || got.Total != want.Total || got.Status != want.Status {
			t.Errorf("GetOrder = %+v, want %+v", got, want)
		}
		if len(got.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(got.Items))
		}
		if got.Items[0].Name != "Masala Dosa" || got.Items[0].UnitPrice != 12000 {
			t.Errorf("unexpected first item: %+v", got.Items[0])
		}
	})

	t.Run("UpsertOrders is last-write-wins on plain fields", func(t *testing.T) {
		updated := testOrder(1)
		updated.Status = models.OrderReady
		updated.Total = 30000
		updated.Items = updated.Items[:1]
		if err := store.UpsertOrders(ctx, []models.Order{updated}); err != nil {
			t.Fatalf("UpsertOrders failed: %v", err)
		}

		got, err := store.GetOrder(ctx, 1)
		if err != nil {
			t.Fatalf("GetOrder failed: %v", err)
		}
		if got.Status != models.OrderReady {
			t.Errorf("status = %v, want ready", got.Status)
		}
		if got.Total != 30000 {
			t.Errorf("total = %d, want 30000", got.Total)
		}
		if len(got.Items) != 1 {
			t.Errorf("expected items replaced, got %d", len(got.Items))
		}
	})

	t.Run("monotonic flags never revert", func(t *testing.T) {
		if err := store.UpsertOrders(ctx, []models.Order{testOrder(2)}); err != nil {
			t.Fatalf("UpsertOrders failed: %v", err)
		}
		if err := store.MarkOTPSeen(ctx, 2, "4912"); err != nil {
			t.Fatalf("MarkOTPSeen failed: %v", err)
		}
		if err := store.MarkSplit(ctx, []int64{2}); err != nil {
			t.Fatalf("MarkSplit failed: %v", err)
		}

		// A later fetch of the same order carries otp_seen=false,
		// is_split=false and an empty code.
		if err := store.UpsertOrders(ctx, []models.Order{testOrder(2)}); err != nil {
			t.Fatalf("UpsertOrders failed: %v", err)
		}

		got, err := store.GetOrder(ctx, 2)
		if err != nil {
			t.Fatalf("GetOrder failed: %v", err)
		}
		if !got.OTPSeen {
			t.Error("OTPSeen reverted to false")
		}
		if !got.IsSplit {
			t.Error("IsSplit reverted to false")
		}
		if got.OTP != "4912" {
			t.Errorf("stored code overwritten, got %q", got.OTP)
		}
	})

	t.Run("MarkSplit is all-or-nothing", func(t *testing.T) {
		if err := store.UpsertOrders(ctx, []models.Order{testOrder(5)}); err != nil {
			t.Fatalf("UpsertOrders failed: %v", err)
		}

		// Order 7 was never cached, so the whole batch must fail.
		err := store.MarkSplit(ctx, []int64{5, 7})
		if err == nil {
			t.Fatal("expected MarkSplit to fail for unknown order")
		}
		var perr *storage.PersistenceError
		if !errors.As(err, &perr) {
			t.Errorf("expected PersistenceError, got %T", err)
		}

		got, err := store.GetOrder(ctx, 5)
		if err != nil {
			t.Fatalf("GetOrder failed: %v", err)
		}
		if got.IsSplit {
			t.Error("order 5 marked split despite failed batch")
		}
	})

	t.Run("MarkSplit rejects an already-split order", func(t *testing.T) {
		for _, id := range []int64{10, 11} {
			if err := store.UpsertOrders(ctx, []models.Order{testOrder(id)}); err != nil {
				t.Fatalf("UpsertOrders failed: %v", err)
			}
		}
		if err := store.MarkSplit(ctx, []int64{10}); err != nil {
			t.Fatalf("MarkSplit failed: %v", err)
		}

		if err := store.MarkSplit(ctx, []int64{11, 10}); err == nil {
			t.Fatal("expected MarkSplit to fail for already-split order")
		}

		got, err := store.GetOrder(ctx, 11)
		if err != nil {
			t.Fatalf("GetOrder failed: %v", err)
		}
		if got.IsSplit {
			t.Error("order 11 marked split despite failed batch")
		}
	})

	t.Run("GetOrders filters by status set", func(t *testing.T) {
		fresh := newTestStore(t)
		completed := testOrder(20)
		completed.Status = models.OrderCompleted
		active := testOrder(21)
		active.Status = models.OrderPreparing
		cancelled := testOrder(22)
		cancelled.Status = models.OrderCancelled
		if err := fresh.UpsertOrders(ctx, []models.Order{completed, active, cancelled}); err != nil {
			t.Fatalf("UpsertOrders failed: %v", err)
		}

		got, err := fresh.GetOrders(ctx, models.OrderCompleted, models.OrderCancelled)
		if err != nil {
			t.Fatalf("GetOrders failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 terminal orders, got %d", len(got))
		}
		// Newest first.
		if got[0].ID != 22 || got[1].ID != 20 {
			t.Errorf("unexpected order: %d, %d", got[0].ID, got[1].ID)
		}

		all, err := fresh.GetOrders(ctx)
		if err != nil {
			t.Fatalf("GetOrders failed: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 orders without filter, got %d", len(all))
		}
	})
}
