package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"medishop/backend/internal/domain"
	"medishop/backend/internal/store"
	"medishop/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	itemsByID       map[string]domain.Item
	itemIDByBatch   map[string]string
	salesByInvoice  map[string]domain.Sale
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		itemsByID:       make(map[string]domain.Item),
		itemIDByBatch:   make(map[string]string),
		salesByInvoice:  make(map[string]domain.Sale),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()

	now := time.Now().UTC()
	seed := []struct {
		id       string
		name     string
		batchNo  string
		quantity int
		price    string
		expiry   string
	}{
		{"item-paracetamol", "Paracetamol 500mg", "PCM001", 200, "2.50", "2027-06-30"},
		{"item-amoxicillin", "Amoxicillin 250mg", "AMX014", 150, "5.75", "2026-11-15"},
		{"item-ibuprofen", "Ibuprofen 400mg", "IBU022", 120, "3.20", "2027-01-31"},
		{"item-cetirizine", "Cetirizine 10mg", "CTZ008", 90, "1.80", "2027-09-30"},
		{"item-omeprazole", "Omeprazole 20mg", "OMP031", 80, "6.40", "2026-12-31"},
		{"item-aspirin", "Aspirin 75mg", "ASP001", 200, "2.00", "2027-03-31"},
		{"item-metformin", "Metformin 500mg", "MET017", 110, "4.10", "2027-05-31"},
		{"item-cough-syrup", "Cough Syrup 100ml", "CSY005", 60, "8.90", "2026-10-31"},
		{"item-vitamin-c", "Vitamin C 1000mg", "VTC012", 140, "7.25", "2028-02-28"},
		{"item-ors-sachet", "ORS Sachet", "ORS003", 300, "0.90", "2027-08-31"},
	}
	for i, row := range seed {
		price, _ := decimal.NewFromString(row.price)
		expiry, _ := time.Parse("2006-01-02", row.expiry)
		createdAt := now.Add(-time.Duration(len(seed)-i) * time.Minute)
		item := domain.Item{
			ID:         row.id,
			Name:       row.name,
			BatchNo:    row.batchNo,
			Quantity:   row.quantity,
			Price:      price,
			ExpiryDate: expiry,
			CreatedAt:  createdAt,
			UpdatedAt:  createdAt,
		}
		s.itemsByID[item.ID] = item
		s.itemIDByBatch[item.BatchNo] = item.ID
	}

	return s
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.itemsByID))
	for _, item := range s.itemsByID {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) SearchItems(_ context.Context, query string, limit int) ([]domain.Item, error) {
	if limit < 1 {
		limit = 10
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Item, 0, limit)
	for _, item := range s.itemsByID {
		if strings.Contains(strings.ToLower(item.Name), needle) {
			matches = append(matches, item)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Name < matches[j].Name
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) GetItemByID(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) GetItemByBatchNo(_ context.Context, batchNo string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.itemIDByBatch[batchNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	item := s.itemsByID[id]
	return &item, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.Name == "" || item.BatchNo == "" || item.Quantity < 0 || item.Price.IsNegative() {
		return nil, store.ErrValidation
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.itemIDByBatch[item.BatchNo]; exists {
		return nil, store.ErrValidation
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.itemsByID[item.ID] = item
	s.itemIDByBatch[item.BatchNo] = item.ID

	created := item
	return &created, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || item.BatchNo == "" || item.Quantity < 0 || item.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.itemsByID[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if other, exists := s.itemIDByBatch[item.BatchNo]; exists && other != item.ID {
		return nil, store.ErrValidation
	}

	if existing.BatchNo != item.BatchNo {
		delete(s.itemIDByBatch, existing.BatchNo)
		s.itemIDByBatch[item.BatchNo] = item.ID
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	s.itemsByID[item.ID] = item

	updated := item
	return &updated, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.itemsByID, id)
	delete(s.itemIDByBatch, item.BatchNo)
	return nil
}

// CreateSale validates every line against current stock before mutating
// anything, all under a single lock hold, so a failing line leaves stock and
// the sale ledger untouched.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.InvoiceNo == "" || len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByInvoice[sale.InvoiceNo]; exists {
		return nil, store.ErrValidation
	}

	for _, line := range sale.Items {
		if line.Quantity < 1 {
			return nil, store.ErrValidation
		}
		item, ok := s.itemsByID[line.ItemID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if item.Quantity < line.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	for _, line := range sale.Items {
		item := s.itemsByID[line.ItemID]
		item.Quantity -= line.Quantity
		item.UpdatedAt = now
		s.itemsByID[line.ItemID] = item
	}

	if sale.Date.IsZero() {
		sale.Date = now
	}
	s.salesByInvoice[sale.InvoiceNo] = sale

	created := sale
	return &created, nil
}

func (s *Store) GetSaleByInvoiceNo(_ context.Context, invoiceNo string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByInvoice[invoiceNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := sale
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByInvoice))
	for _, sale := range s.salesByInvoice {
		if sale.PaymentStatus != domain.PaymentStatusSuccess {
			continue
		}
		if from != nil && sale.Date.Before(*from) {
			continue
		}
		if to != nil && sale.Date.After(*to) {
			continue
		}
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].Date.After(sales[j].Date)
	})
	return sales, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
