package billing

import (
	"errors"
	"strings"

	"github.com/ttacon/libphonenumber"
)

var ErrInvalidPhone = errors.New("customer phone number is not valid")

// NormalizePhone validates a customer phone number for the given region and
// returns it in E.164 form.
func NormalizePhone(raw string, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}
	if region == "" {
		region = "IN"
	}
	number, err := libphonenumber.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !libphonenumber.IsValidNumber(number) {
		return "", ErrInvalidPhone
	}
	return libphonenumber.Format(number, libphonenumber.E164), nil
}
