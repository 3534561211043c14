package invoice

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"medishop/backend/internal/domain"
)

func sampleSale(discountPercent string) domain.Sale {
	price := decimal.RequireFromString("2.50")
	pct := decimal.RequireFromString(discountPercent)
	subtotal := price.Mul(decimal.NewFromInt(4))
	discount := subtotal.Mul(pct).Div(decimal.NewFromInt(100))
	return domain.Sale{
		InvoiceNo: "INV-20260828-103000-ab12cd34",
		Items: []domain.SaleLine{
			{ItemID: "item-paracetamol", Name: "Paracetamol 500mg", Quantity: 4, Price: price, Total: subtotal},
		},
		Subtotal:        subtotal,
		DiscountPercent: pct,
		DiscountAmount:  discount,
		TotalAmount:     subtotal.Sub(discount),
		PaymentStatus:   domain.PaymentStatusSuccess,
		Date:            time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC),
	}
}

func TestRenderInvoiceProducesPDF(t *testing.T) {
	payload, err := RenderInvoice(sampleSale("10"))
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("expected PDF payload, got %q", payload[:8])
	}
}

func TestRenderInvoiceWithoutDiscount(t *testing.T) {
	payload, err := RenderInvoice(sampleSale("0"))
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected non-empty PDF")
	}
}

func TestRenderSalesReportPaginatesLongListings(t *testing.T) {
	sales := make([]domain.Sale, 0, 60)
	for i := 0; i < 60; i++ {
		sales = append(sales, sampleSale("5"))
	}
	report := domain.SalesReport{
		Sales: sales,
		Summary: domain.ReportSummary{
			TotalSales: len(sales),
			Filter:     "monthly",
		},
	}

	payload, err := RenderSalesReport(report)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("expected PDF payload")
	}
	// 60 rows at 20pt each cannot fit one A4 page; the renderer must have
	// emitted at least two. "/Type /Pages" (the page tree) also contains the
	// "/Type /Page" substring, so subtract it out.
	pages := bytes.Count(payload, []byte("/Type /Page")) - bytes.Count(payload, []byte("/Type /Pages"))
	if pages < 2 {
		t.Fatalf("expected multiple pages, found %d", pages)
	}
}
