// Package importer reads bulk stock spreadsheets and writes sales report
// workbooks. Import parsing is row-tolerant: a bad row is reported, never
// fatal for the batch.
package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"medishop/backend/internal/domain"
)

// Row is one parsed stock line. Line is the 1-based spreadsheet row it came
// from, for error reporting.
type Row struct {
	Line       int
	Name       string
	BatchNo    string
	Quantity   int
	Price      decimal.Decimal
	ExpiryDate time.Time
}

// Column header aliases, tried in order. The first header present wins.
var columnAliases = map[string][]string{
	"name":     {"Item Name", "name"},
	"batchNo":  {"Batch No", "batchNo"},
	"quantity": {"Quantity", "quantity"},
	"price":    {"Price per unit", "price"},
	"expiry":   {"Expiry Date", "expiryDate"},
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	time.RFC3339,
}

// ParseItems reads the first sheet of an xlsx stream. Rows that fail to
// parse are collected into the returned error list; only an unreadable
// workbook is a hard error.
func ParseItems(r io.Reader) ([]Row, []domain.ImportRowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	columns := resolveColumns(rows[0])

	parsed := make([]Row, 0, len(rows)-1)
	rowErrors := make([]domain.ImportRowError, 0)
	for i, raw := range rows[1:] {
		line := i + 2
		if isBlankRow(raw) {
			continue
		}
		row, err := parseRow(line, raw, columns)
		if err != nil {
			rowErrors = append(rowErrors, domain.ImportRowError{Row: line, Error: err.Error()})
			continue
		}
		parsed = append(parsed, row)
	}

	return parsed, rowErrors, nil
}

func resolveColumns(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, cell := range header {
		index[strings.TrimSpace(cell)] = i
	}

	columns := make(map[string]int, len(columnAliases))
	for field, aliases := range columnAliases {
		columns[field] = -1
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				columns[field] = i
				break
			}
		}
	}
	return columns
}

func parseRow(line int, raw []string, columns map[string]int) (Row, error) {
	name := cellAt(raw, columns["name"])
	batchNo := cellAt(raw, columns["batchNo"])
	if name == "" {
		return Row{}, fmt.Errorf("missing item name")
	}
	if batchNo == "" {
		return Row{}, fmt.Errorf("missing batch number")
	}

	qtyRaw := cellAt(raw, columns["quantity"])
	qty, err := strconv.Atoi(qtyRaw)
	if err != nil || qty < 0 {
		return Row{}, fmt.Errorf("invalid quantity %q", qtyRaw)
	}

	priceRaw := cellAt(raw, columns["price"])
	price, err := decimal.NewFromString(priceRaw)
	if err != nil || price.IsNegative() {
		return Row{}, fmt.Errorf("invalid price %q", priceRaw)
	}

	expiryRaw := cellAt(raw, columns["expiry"])
	expiry, err := parseDate(expiryRaw)
	if err != nil {
		return Row{}, fmt.Errorf("invalid expiry date %q", expiryRaw)
	}

	return Row{
		Line:       line,
		Name:       name,
		BatchNo:    batchNo,
		Quantity:   qty,
		Price:      price,
		ExpiryDate: expiry,
	}, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	// Excel serial date: days since 1899-12-30.
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		epoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return epoch.Add(time.Duration(serial * 24 * float64(time.Hour))), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date")
}

// BuildSalesReport renders the report as an xlsx workbook: a summary block
// followed by one row per sale.
func BuildSalesReport(report domain.SalesReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Sales Report"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Sales Report")
	_ = f.SetCellValue(sheet, "A2", "Filter")
	_ = f.SetCellValue(sheet, "B2", report.Summary.Filter)
	_ = f.SetCellValue(sheet, "A3", "Total Sales")
	_ = f.SetCellValue(sheet, "B3", report.Summary.TotalSales)
	_ = f.SetCellValue(sheet, "A4", "Total Revenue")
	_ = f.SetCellValue(sheet, "B4", report.Summary.TotalRevenue.StringFixed(2))

	headers := []string{"Date", "Invoice No", "Items", "Subtotal", "Discount %", "Discount", "Total", "Customer Phone"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 6)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, sale := range report.Sales {
		rowNum := 7 + i
		itemCount := 0
		for _, line := range sale.Items {
			itemCount += line.Quantity
		}
		values := []any{
			sale.Date.UTC().Format("2006-01-02 15:04:05"),
			sale.InvoiceNo,
			itemCount,
			sale.Subtotal.StringFixed(2),
			sale.DiscountPercent.StringFixed(0),
			sale.DiscountAmount.StringFixed(2),
			sale.TotalAmount.StringFixed(2),
			sale.CustomerPhone,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
