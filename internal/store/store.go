package store

import (
	"context"
	"errors"
	"time"

	"medishop/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation failed")
)

type Repository interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	SearchItems(ctx context.Context, query string, limit int) ([]domain.Item, error)
	GetItemByID(ctx context.Context, id string) (*domain.Item, error)
	GetItemByBatchNo(ctx context.Context, batchNo string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	DeleteItem(ctx context.Context, id string) error
	// CreateSale persists the sale and decrements stock for every line as one
	// atomic unit. If any line would drive stock negative, nothing is written
	// and ErrInsufficientStock is returned.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByInvoiceNo(ctx context.Context, invoiceNo string) (*domain.Sale, error)
	ListSales(ctx context.Context, from *time.Time, to *time.Time) ([]domain.Sale, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
