package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestHex_Length(t *testing.T) {
	gen := Hex(4)
	id := gen()
	if len(id) != 8 {
		t.Fatalf("len = %d, want 8", len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("non-hex char %q in %q", c, id)
		}
	}
}

func TestHex_Uniqueness(t *testing.T) {
	gen := Hex(4)
	seen := make(map[string]bool)
	for range 1000 {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestUUIDv7(t *testing.T) {
	id := UUIDv7()()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("parse %q: %v", id, err)
	}
	if u.Version() != 7 {
		t.Fatalf("version = %d, want 7", u.Version())
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("req_", Hex(2))()
	if !strings.HasPrefix(id, "req_") || len(id) != 8 {
		t.Fatalf("got %q", id)
	}
}
