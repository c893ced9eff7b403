// Package idgen produces identifiers: short random hex suffixes for
// capture artifact filenames and UUIDv7 values for request and event IDs.
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Hex returns a Generator of n-byte random values rendered as 2n lowercase
// hex characters.
func Hex(n int) Generator {
	return func() string {
		b := make([]byte, n)
		if _, err := rand.Read(b); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return hex.EncodeToString(b)
	}
}

// UUIDv7 returns a Generator of time-sortable RFC 9562 UUIDs.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID produced by gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID with Default.
func New() string {
	return Default()
}
