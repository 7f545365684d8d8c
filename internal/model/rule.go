package model

import "time"

// MerchantRule maps a cleaned merchant pattern to a category with a
// confidence derived from how consistently reviewed history agrees on it.
type MerchantRule struct {
	LastSeen    time.Time
	Pattern     string
	Category    string
	Confidence  float64
	Occurrences int
}
