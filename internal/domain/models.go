package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartTTL bounds how long an untouched session cart survives in the cart
// store. Expired carts are dropped by the store itself, not by a sweeper.
const CartTTL = 24 * time.Hour

const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

type Item struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	BatchNo    string          `json:"batchNo"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExpiryDate time.Time       `json:"expiryDate"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type ItemUpsertRequest struct {
	Name       string          `json:"name"`
	BatchNo    string          `json:"batchNo"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExpiryDate string          `json:"expiryDate"`
}

// CartLine carries the unit price snapshotted at add time; a later price
// change on the item does not reprice lines already in a cart.
type CartLine struct {
	ItemID   string          `json:"itemId"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type Cart struct {
	SessionID  string     `json:"sessionId"`
	Items      []CartLine `json:"items"`
	QRImageRef string     `json:"qrImageRef,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (c Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range c.Items {
		subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return subtotal
}

type SaleLine struct {
	ItemID   string          `json:"itemId"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Total    decimal.Decimal `json:"total"`
}

type Sale struct {
	InvoiceNo       string          `json:"invoiceNo"`
	Items           []SaleLine      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentStatus   string          `json:"paymentStatus"`
	CustomerPhone   string          `json:"customerPhone,omitempty"`
	Date            time.Time       `json:"date"`
}

type CartAddRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type CartUpdateRequest struct {
	Quantity int `json:"quantity"`
}

type PaymentRequest struct {
	Status          string          `json:"status"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	CustomerPhone   string          `json:"customerPhone"`
}

type PaymentResponse struct {
	Success       bool   `json:"success"`
	PaymentStatus string `json:"paymentStatus"`
	InvoiceNo     string `json:"invoiceNo,omitempty"`
	Sale          *Sale  `json:"sale,omitempty"`
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportResult struct {
	SuccessCount int              `json:"successCount"`
	ErrorCount   int              `json:"errorCount"`
	Errors       []ImportRowError `json:"errors,omitempty"`
}

type ReportSummary struct {
	TotalSales   int             `json:"totalSales"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	Filter       string          `json:"filter"`
	StartDate    *time.Time      `json:"startDate,omitempty"`
	EndDate      *time.Time      `json:"endDate,omitempty"`
}

type SalesReport struct {
	Sales   []Sale        `json:"sales"`
	Summary ReportSummary `json:"summary"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expiresAt"`
}

// Actor identifies the authenticated caller. SessionID is minted at login
// and scopes the caller's cart.
type Actor struct {
	Username  string
	Role      string
	SessionID string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
