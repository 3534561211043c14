package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"medishop/backend/internal/cartstore"
	"medishop/backend/internal/domain"
	"medishop/backend/internal/importer"
	"medishop/backend/internal/invoice"
	"medishop/backend/internal/store"
	"medishop/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var phonePattern = regexp.MustCompile(`^\d{10}$`)

const searchLimit = 10

type Service struct {
	repo  store.Repository
	carts cartstore.Store
}

func New(repo store.Repository, carts cartstore.Store) *Service {
	return &Service{
		repo:  repo,
		carts: carts,
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) SearchItems(ctx context.Context, query string) ([]domain.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Item{}, nil
	}
	return s.repo.SearchItems(ctx, query, searchLimit)
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.repo.GetItemByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemUpsertRequest) (domain.Item, error) {
	item, err := itemFromRequest(req)
	if err != nil {
		return domain.Item{}, err
	}

	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}
	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemUpsertRequest) (domain.Item, error) {
	item, err := itemFromRequest(req)
	if err != nil {
		return domain.Item{}, err
	}
	item.ID = strings.TrimSpace(id)

	updated, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.repo.DeleteItem(ctx, strings.TrimSpace(id))
}

// ImportItems upserts stock rows keyed by batch number: an existing batch
// accumulates quantity and takes the incoming price and expiry date, an
// unknown batch becomes a new item. Row failures are collected, never fatal.
func (s *Service) ImportItems(ctx context.Context, r io.Reader) (domain.ImportResult, error) {
	rows, rowErrors, err := importer.ParseItems(r)
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	result := domain.ImportResult{Errors: rowErrors}
	for _, row := range rows {
		if err := s.upsertImportedRow(ctx, row); err != nil {
			result.Errors = append(result.Errors, domain.ImportRowError{Row: row.Line, Error: err.Error()})
			continue
		}
		result.SuccessCount++
	}
	result.ErrorCount = len(result.Errors)
	return result, nil
}

func (s *Service) upsertImportedRow(ctx context.Context, row importer.Row) error {
	existing, err := s.repo.GetItemByBatchNo(ctx, row.BatchNo)
	switch {
	case err == nil:
		updated := *existing
		updated.Name = row.Name
		updated.Quantity += row.Quantity
		updated.Price = row.Price
		updated.ExpiryDate = row.ExpiryDate
		_, err = s.repo.UpdateItem(ctx, updated)
		return err
	case errors.Is(err, store.ErrNotFound):
		_, err = s.repo.CreateItem(ctx, domain.Item{
			Name:       row.Name,
			BatchNo:    row.BatchNo,
			Quantity:   row.Quantity,
			Price:      row.Price,
			ExpiryDate: row.ExpiryDate,
		})
		return err
	default:
		return err
	}
}

// GetCart returns the caller's session cart, creating an empty one (and
// starting its TTL) on first access.
func (s *Service) GetCart(ctx context.Context) (domain.Cart, error) {
	sessionID, err := sessionFromContext(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.getOrCreateCart(ctx, sessionID)
}

func (s *Service) getOrCreateCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	cart, found, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, err
	}
	if found {
		return *cart, nil
	}

	fresh := domain.Cart{
		SessionID: sessionID,
		Items:     []domain.CartLine{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.carts.Save(ctx, fresh); err != nil {
		return domain.Cart{}, err
	}
	return fresh, nil
}

func (s *Service) AddToCart(ctx context.Context, req domain.CartAddRequest) (domain.Cart, error) {
	sessionID, err := sessionFromContext(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	if strings.TrimSpace(req.ItemID) == "" || req.Quantity < 1 {
		return domain.Cart{}, fmt.Errorf("%w: itemId and a positive quantity are required", store.ErrValidation)
	}

	item, err := s.repo.GetItemByID(ctx, req.ItemID)
	if err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.getOrCreateCart(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, err
	}

	lineIdx := -1
	for i, line := range cart.Items {
		if line.ItemID == item.ID {
			lineIdx = i
			break
		}
	}

	requested := req.Quantity
	if lineIdx >= 0 {
		requested += cart.Items[lineIdx].Quantity
	}
	if item.Quantity < requested {
		return domain.Cart{}, fmt.Errorf("%w: only %d units of %s available", store.ErrInsufficientStock, item.Quantity, item.Name)
	}

	if lineIdx >= 0 {
		cart.Items[lineIdx].Quantity = requested
	} else {
		cart.Items = append(cart.Items, domain.CartLine{
			ItemID:   item.ID,
			Name:     item.Name,
			Quantity: req.Quantity,
			Price:    item.Price,
		})
	}

	if err := s.carts.Save(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *Service) UpdateCartItem(ctx context.Context, itemID string, req domain.CartUpdateRequest) (domain.Cart, error) {
	sessionID, err := sessionFromContext(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	if req.Quantity < 1 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}

	cart, found, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !found {
		return domain.Cart{}, fmt.Errorf("%w: cart", store.ErrNotFound)
	}

	lineIdx := -1
	for i, line := range cart.Items {
		if line.ItemID == itemID {
			lineIdx = i
			break
		}
	}
	if lineIdx < 0 {
		return domain.Cart{}, fmt.Errorf("%w: item not in cart", store.ErrNotFound)
	}

	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return domain.Cart{}, err
	}
	if item.Quantity < req.Quantity {
		return domain.Cart{}, fmt.Errorf("%w: only %d units of %s available", store.ErrInsufficientStock, item.Quantity, item.Name)
	}

	cart.Items[lineIdx].Quantity = req.Quantity
	if err := s.carts.Save(ctx, *cart); err != nil {
		return domain.Cart{}, err
	}
	return *cart, nil
}

func (s *Service) RemoveCartItem(ctx context.Context, itemID string) (domain.Cart, error) {
	sessionID, err := sessionFromContext(ctx)
	if err != nil {
		return domain.Cart{}, err
	}

	cart, found, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !found {
		return domain.Cart{}, fmt.Errorf("%w: cart", store.ErrNotFound)
	}

	kept := make([]domain.CartLine, 0, len(cart.Items))
	removed := false
	for _, line := range cart.Items {
		if line.ItemID == itemID {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return domain.Cart{}, fmt.Errorf("%w: item not in cart", store.ErrNotFound)
	}

	cart.Items = kept
	if err := s.carts.Save(ctx, *cart); err != nil {
		return domain.Cart{}, err
	}
	return *cart, nil
}

func (s *Service) AttachCartQR(ctx context.Context, imageRef string) (domain.Cart, error) {
	sessionID, err := sessionFromContext(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	imageRef = strings.TrimSpace(imageRef)
	if imageRef == "" {
		return domain.Cart{}, fmt.Errorf("%w: image reference is required", store.ErrValidation)
	}

	cart, err := s.getOrCreateCart(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.QRImageRef = imageRef
	if err := s.carts.Save(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// ProcessPayment turns the session cart into a sale. The sale insert and
// the per-line stock decrements are one atomic store operation; the cart is
// deleted only after that commits, so a crash in between leaves a stale
// cart whose re-checkout fails safely on the stock re-check.
func (s *Service) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	sessionID, err := sessionFromContext(ctx)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	cart, found, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	if !found || len(cart.Items) == 0 {
		return domain.PaymentResponse{}, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}

	phone := strings.TrimSpace(req.CustomerPhone)
	if phone != "" && !phonePattern.MatchString(phone) {
		return domain.PaymentResponse{}, fmt.Errorf("%w: customer phone must be exactly 10 digits", store.ErrValidation)
	}

	if req.Status != domain.PaymentStatusSuccess {
		return domain.PaymentResponse{
			Success:       false,
			PaymentStatus: domain.PaymentStatusFailed,
		}, nil
	}

	// Checkout-time re-check against live stock. The store enforces the same
	// bound again inside the transaction; this pass exists to fail fast with
	// the offending item's name.
	for _, line := range cart.Items {
		item, err := s.repo.GetItemByID(ctx, line.ItemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.PaymentResponse{}, fmt.Errorf("%w: %s is no longer available", store.ErrNotFound, line.Name)
			}
			return domain.PaymentResponse{}, err
		}
		if item.Quantity < line.Quantity {
			return domain.PaymentResponse{}, fmt.Errorf("%w: only %d units of %s available", store.ErrInsufficientStock, item.Quantity, item.Name)
		}
	}

	subtotal := cart.Subtotal()
	discountPercent := clampPercent(req.DiscountPercent)
	discountAmount := subtotal.Mul(discountPercent).Div(decimal.NewFromInt(100))
	totalAmount := subtotal.Sub(discountAmount)

	now := time.Now().UTC()
	lines := make([]domain.SaleLine, 0, len(cart.Items))
	for _, line := range cart.Items {
		lines = append(lines, domain.SaleLine{
			ItemID:   line.ItemID,
			Name:     line.Name,
			Quantity: line.Quantity,
			Price:    line.Price,
			Total:    line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	sale := domain.Sale{
		InvoiceNo:       xid.Invoice(now),
		Items:           lines,
		Subtotal:        subtotal,
		DiscountPercent: discountPercent,
		DiscountAmount:  discountAmount,
		TotalAmount:     totalAmount,
		PaymentStatus:   domain.PaymentStatusSuccess,
		CustomerPhone:   phone,
		Date:            now,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	if err := s.carts.Delete(ctx, sessionID); err != nil {
		log.Printf("[service] WARN: failed to delete cart session=%s after checkout: %v", sessionID, err)
	}

	return domain.PaymentResponse{
		Success:       true,
		PaymentStatus: created.PaymentStatus,
		InvoiceNo:     created.InvoiceNo,
		Sale:          created,
	}, nil
}

// SalesReport lists successful sales in the filter window. An unknown or
// empty filter means all time.
func (s *Service) SalesReport(ctx context.Context, filter string) (domain.SalesReport, error) {
	now := time.Now().UTC()
	from := reportWindowStart(filter, now)

	sales, err := s.repo.ListSales(ctx, from, &now)
	if err != nil {
		return domain.SalesReport{}, err
	}

	totalRevenue := decimal.Zero
	for _, sale := range sales {
		totalRevenue = totalRevenue.Add(sale.TotalAmount)
	}

	endDate := now
	return domain.SalesReport{
		Sales: sales,
		Summary: domain.ReportSummary{
			TotalSales:   len(sales),
			TotalRevenue: totalRevenue,
			Filter:       filter,
			StartDate:    from,
			EndDate:      &endDate,
		},
	}, nil
}

func (s *Service) InvoicePDF(ctx context.Context, invoiceNo string) ([]byte, error) {
	sale, err := s.repo.GetSaleByInvoiceNo(ctx, strings.TrimSpace(invoiceNo))
	if err != nil {
		return nil, err
	}
	return invoice.RenderInvoice(*sale)
}

func (s *Service) SalesReportPDF(ctx context.Context, filter string) ([]byte, error) {
	report, err := s.SalesReport(ctx, filter)
	if err != nil {
		return nil, err
	}
	return invoice.RenderSalesReport(report)
}

func (s *Service) SalesReportXLSX(ctx context.Context, filter string) ([]byte, error) {
	report, err := s.SalesReport(ctx, filter)
	if err != nil {
		return nil, err
	}
	return importer.BuildSalesReport(report)
}

func sessionFromContext(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.SessionID == "" {
		return "", fmt.Errorf("no session in context")
	}
	return actor.SessionID, nil
}

func itemFromRequest(req domain.ItemUpsertRequest) (domain.Item, error) {
	name := strings.TrimSpace(req.Name)
	batchNo := strings.TrimSpace(req.BatchNo)
	if name == "" || batchNo == "" {
		return domain.Item{}, fmt.Errorf("%w: name and batchNo are required", store.ErrValidation)
	}
	if req.Quantity < 0 {
		return domain.Item{}, fmt.Errorf("%w: quantity must not be negative", store.ErrValidation)
	}
	if req.Price.IsNegative() {
		return domain.Item{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
	}
	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		return domain.Item{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	return domain.Item{
		Name:       name,
		BatchNo:    batchNo,
		Quantity:   req.Quantity,
		Price:      req.Price,
		ExpiryDate: expiry,
	}, nil
}

func parseExpiry(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("expiryDate is required")
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("expiryDate %q is not a valid date", raw)
}

func clampPercent(pct decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// reportWindowStart returns nil for the all-time window.
func reportWindowStart(filter string, now time.Time) *time.Time {
	var start time.Time
	switch filter {
	case "daily":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case "weekly":
		start = now.AddDate(0, 0, -7)
	case "monthly":
		start = now.AddDate(0, -1, 0)
	case "yearly":
		start = now.AddDate(-1, 0, 0)
	default:
		return nil
	}
	return &start
}
