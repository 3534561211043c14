package cartstore

import (
	"context"
	"testing"
	"time"

	"medishop/backend/internal/domain"
)

func TestMemoryStoreExpiresCartsLazily(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	cart := domain.Cart{SessionID: "sess-ttl", Items: []domain.CartLine{}, CreatedAt: clock}
	if err := store.Save(context.Background(), cart); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	clock = clock.Add(domain.CartTTL - time.Minute)
	if _, found, err := store.Get(context.Background(), "sess-ttl"); err != nil || !found {
		t.Fatalf("expected cart to survive inside the TTL window, found=%v err=%v", found, err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, found, err := store.Get(context.Background(), "sess-ttl"); err != nil || found {
		t.Fatalf("expected cart to expire after the TTL window, found=%v err=%v", found, err)
	}
}

func TestMemoryStoreSaveKeepsOriginalDeadline(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	cart := domain.Cart{SessionID: "sess-deadline", Items: []domain.CartLine{}, CreatedAt: clock}
	if err := store.Save(context.Background(), cart); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Mutating the cart close to expiry must not push the deadline out.
	clock = clock.Add(domain.CartTTL - time.Minute)
	cart.QRImageRef = "/uploads/qr-1-code.png"
	if err := store.Save(context.Background(), cart); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, found, _ := store.Get(context.Background(), "sess-deadline"); found {
		t.Fatalf("expected original deadline to hold after a late save")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()

	cart := domain.Cart{SessionID: "sess-del", Items: []domain.CartLine{}, CreatedAt: time.Now().UTC()}
	if err := store.Save(context.Background(), cart); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Delete(context.Background(), "sess-del"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, found, _ := store.Get(context.Background(), "sess-del"); found {
		t.Fatalf("expected cart gone after delete")
	}
}
