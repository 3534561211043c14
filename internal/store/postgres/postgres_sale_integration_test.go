package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"medishop/backend/internal/domain"
	"medishop/backend/internal/store"
)

func TestCreateSaleDecrementsStockAtomically(t *testing.T) {
	databaseURL := os.Getenv("MEDISHOP_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MEDISHOP_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	itemID := fmt.Sprintf("item-sale-it-%d", stamp)
	batchNo := fmt.Sprintf("BATCH-SALE-IT-%d", stamp)
	invoiceNo := fmt.Sprintf("INV-SALE-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE invoice_no = $1`, invoiceNo)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE invoice_no = $1`, invoiceNo)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	})

	price := decimal.RequireFromString("4.50")
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, batch_no, quantity, price, expiry_date, created_at, updated_at)
		VALUES ($1, 'Integration Syrup', $2, 10, $3, $4, $5, $5)
	`, itemID, batchNo, price, now.AddDate(1, 0, 0), now); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	line := domain.SaleLine{
		ItemID:   itemID,
		Name:     "Integration Syrup",
		Quantity: 4,
		Price:    price,
		Total:    price.Mul(decimal.NewFromInt(4)),
	}
	sale := domain.Sale{
		InvoiceNo:       invoiceNo,
		Items:           []domain.SaleLine{line},
		Subtotal:        line.Total,
		DiscountPercent: decimal.Zero,
		DiscountAmount:  decimal.Zero,
		TotalAmount:     line.Total,
		PaymentStatus:   domain.PaymentStatusSuccess,
		Date:            now,
	}
	if _, err := s.CreateSale(ctx, sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `SELECT quantity FROM items WHERE id = $1`, itemID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if qty != 6 {
		t.Fatalf("expected stock 6 after sale, got %d", qty)
	}

	oversell := sale
	oversell.InvoiceNo = invoiceNo + "-oversell"
	oversell.Items = []domain.SaleLine{{
		ItemID:   itemID,
		Name:     "Integration Syrup",
		Quantity: 50,
		Price:    price,
		Total:    price.Mul(decimal.NewFromInt(50)),
	}}
	if _, err := s.CreateSale(ctx, oversell); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT quantity FROM items WHERE id = $1`, itemID).Scan(&qty); err != nil {
		t.Fatalf("query stock after rollback: %v", err)
	}
	if qty != 6 {
		t.Fatalf("expected stock unchanged at 6 after rolled-back sale, got %d", qty)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sales WHERE invoice_no = $1`, oversell.InvoiceNo).Scan(&count); err != nil {
		t.Fatalf("query rolled-back sale: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted sale row after rollback, got %d", count)
	}
}
