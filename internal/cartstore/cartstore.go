// Package cartstore keeps session carts in a TTL-backed store. A cart left
// untouched for domain.CartTTL disappears on its own; mutations keep the
// remaining TTL rather than extending it.
package cartstore

import (
	"context"

	"medishop/backend/internal/domain"
)

type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, bool, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, sessionID string) error
}
