package trip

import (
	"errors"
	"strings"
)

// PaymentMethod is how the client pays for the trip.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "CASH"
	PaymentWave        PaymentMethod = "WAVE"
	PaymentOrangeMoney PaymentMethod = "ORANGE_MONEY"
)

var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// ParsePaymentMethod normalizes (uppercases+trims) and validates a payment method string.
func ParsePaymentMethod(in string) (PaymentMethod, error) {
	pm := PaymentMethod(strings.ToUpper(strings.TrimSpace(in)))
	if pm.Valid() {
		return pm, nil
	}
	return "", ErrInvalidPaymentMethod
}

// Valid reports whether pm is one of the allowed payment method constants.
func (pm PaymentMethod) Valid() bool {
	switch pm {
	case PaymentCash, PaymentWave, PaymentOrangeMoney:
		return true
	default:
		return false
	}
}

// String returns the string representation of the PaymentMethod.
func (pm PaymentMethod) String() string {
	return string(pm)
}
