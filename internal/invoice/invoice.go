// Package invoice renders sale invoices and sales reports as PDF documents.
package invoice

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"medishop/backend/internal/domain"
)

const (
	lineLeft  = 50.0
	lineRight = 550.0
	pageBreak = 700.0
)

// RenderInvoice draws a single-sale invoice. The discount line appears only
// when a discount was actually applied.
func RenderInvoice(sale domain.Sale) ([]byte, error) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(lineLeft, 50)
	pdf.CellFormat(lineRight-lineLeft, 24, "MEDICAL SHOP INVOICE", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(lineLeft, 100, fmt.Sprintf("Invoice No: %s", sale.InvoiceNo))
	pdf.Text(lineLeft, 118, fmt.Sprintf("Date: %s", sale.Date.UTC().Format("2006-01-02")))
	pdf.Text(lineLeft, 136, fmt.Sprintf("Time: %s", sale.Date.UTC().Format("15:04:05")))

	pdf.SetFont("Helvetica", "U", 10)
	pdf.Text(lineLeft, 166, "Items:")

	const (
		itemX  = 50.0
		qtyX   = 250.0
		priceX = 320.0
		totalX = 400.0
	)
	tableTop := 186.0

	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(itemX, tableTop, "Item")
	pdf.Text(qtyX, tableTop, "Qty")
	pdf.Text(priceX, tableTop, "Price")
	pdf.Text(totalX, tableTop, "Total")
	pdf.Line(lineLeft, tableTop+8, lineRight, tableTop+8)

	y := tableTop + 25
	for _, line := range sale.Items {
		if y > pageBreak {
			pdf.AddPage()
			y = 50
		}
		pdf.Text(itemX, y, line.Name)
		pdf.Text(qtyX, y, fmt.Sprintf("%d", line.Quantity))
		pdf.Text(priceX, y, "Rs."+line.Price.StringFixed(2))
		pdf.Text(totalX, y, "Rs."+line.Total.StringFixed(2))
		y += 20
	}

	pdf.Line(lineLeft, y, lineRight, y)
	y += 18

	summaryX := totalX - 80
	pdf.SetFont("Helvetica", "", 11)
	pdf.Text(summaryX, y, "Subtotal: Rs."+sale.Subtotal.StringFixed(2))
	y += 18

	if sale.DiscountPercent.IsPositive() {
		pdf.SetFont("Helvetica", "", 10)
		pdf.Text(summaryX, y, fmt.Sprintf("Discount (%s%%): -Rs.%s", sale.DiscountPercent.StringFixed(0), sale.DiscountAmount.StringFixed(2)))
		y += 18
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Text(summaryX, y, "Total Amount: Rs."+sale.TotalAmount.StringFixed(2))
	y += 40

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(lineLeft, y)
	pdf.CellFormat(lineRight-lineLeft, 14, "Payment Status: PAID", "", 1, "C", false, 0, "")
	pdf.SetX(lineLeft)
	pdf.CellFormat(lineRight-lineLeft, 14, "Thank you for your business!", "", 1, "C", false, 0, "")

	return output(pdf)
}

// RenderSalesReport draws the filtered sales listing with a manual page
// break once the cursor passes the bottom threshold.
func RenderSalesReport(report domain.SalesReport) ([]byte, error) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(lineLeft, 50)
	pdf.CellFormat(lineRight-lineLeft, 24, "SALES REPORT", "", 1, "C", false, 0, "")

	period := "ALL TIME"
	if report.Summary.Filter != "" {
		period = strings.ToUpper(report.Summary.Filter)
	}
	dateRange := "all time"
	if report.Summary.StartDate != nil && report.Summary.EndDate != nil {
		dateRange = fmt.Sprintf("%s - %s",
			report.Summary.StartDate.UTC().Format("2006-01-02"),
			report.Summary.EndDate.UTC().Format("2006-01-02"))
	}

	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(lineLeft, 100, "Period: "+period)
	pdf.Text(lineLeft, 118, "Date Range: "+dateRange)
	pdf.Text(lineLeft, 136, fmt.Sprintf("Total Sales: %d", report.Summary.TotalSales))
	pdf.Text(lineLeft, 154, "Total Revenue: Rs."+report.Summary.TotalRevenue.StringFixed(2))

	pdf.SetFont("Helvetica", "U", 10)
	pdf.Text(lineLeft, 184, "Sales Details:")

	const (
		dateX     = 50.0
		invoiceX  = 130.0
		itemsX    = 230.0
		discountX = 290.0
		amountX   = 400.0
	)
	tableTop := 204.0

	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(dateX, tableTop, "Date")
	pdf.Text(invoiceX, tableTop, "Invoice")
	pdf.Text(itemsX, tableTop, "Items")
	pdf.Text(discountX, tableTop, "Discount")
	pdf.Text(amountX, tableTop, "Amount")
	pdf.Line(lineLeft, tableTop+8, lineRight, tableTop+8)

	y := tableTop + 25
	for _, sale := range report.Sales {
		if y > pageBreak {
			pdf.AddPage()
			y = 50
		}

		discountText := "N/A"
		if sale.DiscountPercent.IsPositive() {
			discountText = fmt.Sprintf("%s%% (-Rs.%s)", sale.DiscountPercent.StringFixed(0), sale.DiscountAmount.StringFixed(2))
		}

		pdf.Text(dateX, y, sale.Date.UTC().Format("2006-01-02"))
		pdf.Text(invoiceX, y, sale.InvoiceNo)
		pdf.Text(itemsX, y, fmt.Sprintf("%d", len(sale.Items)))
		pdf.Text(discountX, y, discountText)
		pdf.Text(amountX, y, "Rs."+sale.TotalAmount.StringFixed(2))
		y += 20
	}

	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
