package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is a backend primary key. The backend emits integers, but slugs and
// quoted integers are accepted too. Canonical integers are sent back as
// numbers; anything else, including zero-padded digits, stays a string.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

func (id ID) MarshalJSON() ([]byte, error) {
	if isCanonicalInt(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("invalid id %s", string(trimmed))
	}
	*id = ID(n.String())
	return nil
}

func isCanonicalInt(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// InvoiceCustomer accepts either an embedded customer object or a bare id.
type InvoiceCustomer struct {
	ID ID `json:"id,omitempty"`
	Customer
}

func (c *InvoiceCustomer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = InvoiceCustomer{}
		return nil
	}
	if trimmed[0] != '{' {
		var id ID
		if err := id.UnmarshalJSON(trimmed); err != nil {
			return err
		}
		*c = InvoiceCustomer{ID: id}
		return nil
	}
	var raw struct {
		ID    ID     `json:"id"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Email string `json:"email"`
		City  string `json:"city"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	*c = InvoiceCustomer{
		ID:       raw.ID,
		Customer: Customer{Name: raw.Name, Phone: raw.Phone, Email: raw.Email, City: raw.City},
	}
	return nil
}
