package util

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// NewID returns a compact, storage-safe identifier. The leading 48 bits are a
// millisecond timestamp and the rest is random, rendered in lowercase base36.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		var fallback [16]byte
		_, _ = rand.Read(fallback[:])
		return new(big.Int).SetBytes(fallback[:]).Text(36)
	}
	return new(big.Int).SetBytes(id[:]).Text(36)
}
