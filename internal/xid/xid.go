package xid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// Invoice builds a human-readable invoice number, e.g. INV-20260828-143501-9f3c21d4.
// The random suffix keeps two invoices issued within the same second distinct.
func Invoice(at time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		binary.BigEndian.PutUint32(buf, uint32(time.Now().UnixNano()))
	}
	return fmt.Sprintf("INV-%s-%s", at.UTC().Format("20060102-150405"), hex.EncodeToString(buf))
}
