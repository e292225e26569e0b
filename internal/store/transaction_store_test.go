package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionStoreInsert(t *testing.T) {
	ctx := context.Background()
	committed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "INSERT INTO transactions") || !strings.Contains(query, "RETURNING timestamp") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 7 {
				t.Fatalf("expected 7 args, got %d", len(args))
			}
			if args[0] != "tx-1" || args[1] != "user-1" || args[3] != TypeTopUp {
				t.Fatalf("unexpected args: %#v", args)
			}
			amount, ok := args[2].(decimal.Decimal)
			if !ok || !amount.Equal(decimal.RequireFromString("25.00")) {
				t.Fatalf("unexpected amount arg: %#v", args[2])
			}
			*dest.(*time.Time) = committed
			return nil
		},
	}
	store := NewTransactionStore(stubDB{})
	got, err := store.Insert(ctx, getter, TransactionInput{
		ID:          "tx-1",
		UserID:      "user-1",
		Amount:      decimal.RequireFromString("25.00"),
		Type:        TypeTopUp,
		Description: "Top-up of $25.00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(committed) {
		t.Fatalf("unexpected timestamp: %v", got)
	}
}

func TestTransactionStoreSumByUser(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "COALESCE(SUM(amount), 0.00)") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 1 || args[0] != "user-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*decimal.Decimal) = decimal.RequireFromString("120.00")
			return nil
		},
	}
	store := NewTransactionStore(stubDB{})
	sum, err := store.SumByUser(ctx, getter, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.Equal(decimal.RequireFromString("120.00")) {
		t.Fatalf("unexpected sum: %v", sum)
	}
}

func TestTransactionStoreListByUserSince(t *testing.T) {
	ctx := context.Background()
	since := time.Now().AddDate(0, 0, -180)
	store := NewTransactionStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE user_id = $1 AND timestamp >= $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			if !strings.Contains(query, "ORDER BY timestamp DESC") || !strings.Contains(query, "LIMIT $3 OFFSET $4") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 4 || args[0] != "user-1" || args[2] != 20 || args[3] != 40 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]Transaction) = []Transaction{{ID: "tx-1"}}
			return nil
		},
	})
	rows, err := store.ListByUserSince(ctx, "user-1", since, 20, 40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "tx-1" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestTransactionStoreCountByUserSince(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "COUNT(*)") || !strings.Contains(query, "timestamp >= $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*int) = 42
			return nil
		},
	})
	count, err := store.CountByUserSince(ctx, "user-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 42 {
		t.Fatalf("unexpected count: %d", count)
	}
}

func TestTransactionStoreCountByQRCountsPayerLegOnly(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE qr_id = $1 AND type = $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != "qr-1" || args[1] != TypeTransferSent {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int) = 3
			return nil
		},
	}
	store := NewTransactionStore(stubDB{})
	count, err := store.CountByQR(ctx, getter, "qr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("unexpected count: %d", count)
	}
}

func TestTransactionStoreListAll(t *testing.T) {
	ctx := context.Background()
	store := NewTransactionStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "ORDER BY timestamp DESC") || !strings.Contains(query, "LIMIT $1 OFFSET $2") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != 100 || args[1] != 0 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]Transaction) = []Transaction{{ID: "tx-1"}, {ID: "tx-2"}}
			return nil
		},
	})
	rows, err := store.ListAll(ctx, 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
