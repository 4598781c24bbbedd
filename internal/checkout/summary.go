// Package checkout prices a cart and runs the simulated order and contact
// submissions. No payment is processed and nothing is stored.
package checkout

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

var (
	// FreeShippingThreshold is the subtotal above which shipping is free.
	FreeShippingThreshold = decimal.NewFromInt(50)
	// ShippingFee applies to subtotals up to the threshold.
	ShippingFee = decimal.RequireFromString("9.99")
	// TaxRate is applied to the subtotal.
	TaxRate = decimal.RequireFromString("0.10")
)

// Summary is the price breakdown of a cart.
type Summary struct {
	Subtotal     decimal.Decimal
	Shipping     decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	Remaining    decimal.Decimal
	FreeShipping bool
	ItemsCount   int
}

// Compute prices a cart with the given subtotal. Shipping is free strictly
// above the threshold; Remaining is what is left to reach it.
func Compute(subtotal decimal.Decimal, itemsCount int) Summary {
	shipping := ShippingFee
	free := subtotal.GreaterThan(FreeShippingThreshold)
	if free {
		shipping = decimal.Zero
	}

	remaining := decimal.Zero
	if subtotal.LessThan(FreeShippingThreshold) {
		remaining = FreeShippingThreshold.Sub(subtotal)
	}

	tax := subtotal.Mul(TaxRate)

	return Summary{
		Subtotal:     subtotal,
		Shipping:     shipping,
		Tax:          tax,
		Total:        subtotal.Add(shipping).Add(tax),
		Remaining:    remaining,
		FreeShipping: free,
		ItemsCount:   itemsCount,
	}
}

type summaryJSON struct {
	Subtotal     string `json:"subtotal"`
	Shipping     string `json:"shipping"`
	Tax          string `json:"tax"`
	Total        string `json:"total"`
	Remaining    string `json:"remainingForFreeShipping"`
	FreeShipping bool   `json:"freeShipping"`
	ItemsCount   int    `json:"itemsCount"`
}

// MarshalJSON renders amounts rounded to cents.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Subtotal:     s.Subtotal.StringFixed(2),
		Shipping:     s.Shipping.StringFixed(2),
		Tax:          s.Tax.StringFixed(2),
		Total:        s.Total.StringFixed(2),
		Remaining:    s.Remaining.StringFixed(2),
		FreeShipping: s.FreeShipping,
		ItemsCount:   s.ItemsCount,
	})
}
