package requestid

import "testing"

func TestNewIsUniqueAndHex(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		id, err := New()
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if len(id) != 32 {
			t.Fatalf("expected 32 hex chars, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
