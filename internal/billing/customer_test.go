package billing

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone(" 98765 43210 ", "IN")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "+919876543210" {
		t.Fatalf("expected +919876543210, got %s", got)
	}

	for _, raw := range []string{"", "12", "not a phone"} {
		if _, err := NormalizePhone(raw, "IN"); !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("phone %q: expected ErrInvalidPhone, got %v", raw, err)
		}
	}
}
