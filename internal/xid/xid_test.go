package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := New("sess")
		if !strings.HasPrefix(id, "sess-") {
			t.Fatalf("missing prefix: %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	if id := New(""); len(id) != 36 {
		t.Fatalf("expected a bare uuid without prefix, got %s", id)
	}
}
