package trip

import "math"

// FallbackFare returns the settlement fare used when no fare was agreed up
// front: distance times a per-kind rate, floored at a per-kind minimum.
// Amounts are in XOF.
func FallbackFare(kind Kind, distanceKM float64) float64 {
	type rates struct {
		perKM   float64
		minimum float64
	}

	var rate rates
	switch kind {
	case KindDelivery:
		rate = rates{perKM: 200, minimum: 750}
	default:
		rate = rates{perKM: 250, minimum: 1000}
	}

	if distanceKM < 0 {
		distanceKM = 0
	}

	fare := math.Round(rate.perKM * distanceKM)
	if fare < rate.minimum {
		return rate.minimum
	}
	return fare
}
