package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNanoID(t *testing.T) {
	gen := NanoID(12)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := gen()
		if len(id) != 12 {
			t.Fatalf("length: got %d, want 12", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate ID after %d draws: %s", i, id)
		}
		seen[id] = true
	}
}

func TestUUIDv7(t *testing.T) {
	id := UUIDv7()()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Version() != 7 {
		t.Fatalf("version: got %d, want 7", u.Version())
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("ses_", NanoID(8))
	id := gen()
	if !strings.HasPrefix(id, "ses_") {
		t.Fatalf("missing prefix: %s", id)
	}
	if len(id) != len("ses_")+8 {
		t.Fatalf("length: got %d", len(id))
	}
}

func TestDefaultIsUUID(t *testing.T) {
	if _, err := uuid.Parse(New()); err != nil {
		t.Fatalf("default generator: %v", err)
	}
}
