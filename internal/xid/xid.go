package xid

import (
	"github.com/google/uuid"
)

// New returns a prefixed, time-ordered unique id such as "hold-0190c5...".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}
