package domain

import "fmt"

// Cents is a monetary amount in minor units. All arithmetic on money stays in
// integers; floating point is only produced for display or progress ratios.
type Cents int64

func (c Cents) String() string {
	sign := ""
	v := c
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Currency is an ISO 4217 code such as "USD". Items snapshotted into a cart or
// campaign carry their currency and it never changes afterwards.
type Currency string

const CurrencyUSD Currency = "USD"
