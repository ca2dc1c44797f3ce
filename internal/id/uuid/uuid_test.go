package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestNewIDVersion ensures generated IDs are version 7, so pause tokens and
// request IDs sort by creation time.
func TestNewIDVersion(t *testing.T) {
	t.Parallel()

	gen := New()
	id, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	parsed, err := goUUID.Parse(id)
	if err != nil {
		t.Fatalf("id not a valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

// TestNewIDOrdered verifies successive IDs are distinct and sort in
// generation order.
func TestNewIDOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	second, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if first == second {
		t.Fatalf("expected unique IDs, got %s twice", first)
	}
	if first > second {
		t.Fatalf("expected %s to sort before %s", first, second)
	}
}
