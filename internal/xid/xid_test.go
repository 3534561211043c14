package xid

import (
	"strings"
	"testing"
	"time"
)

func TestNewCarriesPrefix(t *testing.T) {
	id := New("item")
	if !strings.HasPrefix(id, "item-") {
		t.Fatalf("expected item- prefix, got %s", id)
	}
}

func TestInvoiceFormat(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 35, 1, 0, time.UTC)
	inv := Invoice(at)
	if !strings.HasPrefix(inv, "INV-20260828-143501-") {
		t.Fatalf("unexpected invoice number %s", inv)
	}
	parts := strings.Split(inv, "-")
	if len(parts) != 4 || len(parts[3]) != 8 {
		t.Fatalf("expected 8-hex suffix, got %s", inv)
	}
}

func TestInvoiceDistinctWithinSameSecond(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 35, 1, 0, time.UTC)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		inv := Invoice(at)
		if seen[inv] {
			t.Fatalf("duplicate invoice number %s after %d generations", inv, i)
		}
		seen[inv] = true
	}
}
