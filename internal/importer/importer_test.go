package importer

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"medishop/backend/internal/domain"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, row := range rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestParseItemsHeaderAliases(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Item Name", "batchNo", "Quantity", "price", "Expiry Date"},
		{"Aspirin 75mg", "ASP001", "50", "2.00", "2027-03-31"},
	})

	rows, rowErrors, err := ParseItems(buf)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rowErrors) != 0 {
		t.Fatalf("expected no row errors, got %v", rowErrors)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Name != "Aspirin 75mg" || row.BatchNo != "ASP001" || row.Quantity != 50 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.Price.StringFixed(2) != "2.00" {
		t.Fatalf("unexpected price: %s", row.Price)
	}
	if row.ExpiryDate.Format("2006-01-02") != "2027-03-31" {
		t.Fatalf("unexpected expiry: %s", row.ExpiryDate)
	}
}

func TestParseItemsCollectsRowErrorsWithoutAborting(t *testing.T) {
	buf := buildWorkbook(t, [][]any{
		{"Item Name", "Batch No", "Quantity", "Price per unit", "Expiry Date"},
		{"Paracetamol 500mg", "PCM001", "not-a-number", "2.50", "2027-06-30"},
		{"", "", "", "", ""},
		{"Ibuprofen 400mg", "IBU022", "30", "3.20", "2027-01-31"},
		{"Cetirizine 10mg", "", "10", "1.80", "2027-09-30"},
	})

	rows, rowErrors, err := ParseItems(buf)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 good row, got %d", len(rows))
	}
	if rows[0].BatchNo != "IBU022" {
		t.Fatalf("unexpected surviving row: %+v", rows[0])
	}
	if len(rowErrors) != 2 {
		t.Fatalf("expected 2 row errors, got %v", rowErrors)
	}
	if rowErrors[0].Row != 2 || rowErrors[1].Row != 5 {
		t.Fatalf("unexpected error rows: %v", rowErrors)
	}
}

func TestParseItemsRejectsEmptyWorkbookStream(t *testing.T) {
	if _, _, err := ParseItems(bytes.NewReader([]byte("not an xlsx"))); err == nil {
		t.Fatalf("expected error for non-xlsx input")
	}
}

func TestBuildSalesReportRoundTrips(t *testing.T) {
	sale := domain.Sale{
		InvoiceNo:     "INV-20260828-103000-ab12cd34",
		PaymentStatus: domain.PaymentStatusSuccess,
	}
	report := domain.SalesReport{
		Sales:   []domain.Sale{sale},
		Summary: domain.ReportSummary{TotalSales: 1, Filter: "daily"},
	}

	payload, err := BuildSalesReport(report)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	got, err := f.GetCellValue("Sales Report", "B7")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if got != sale.InvoiceNo {
		t.Fatalf("expected invoice no in B7, got %q", got)
	}
}
