// Package pricing computes order totals. All amounts are decimal GBP;
// ComputeTotals is the single place totals come from, every call site
// goes through it.
package pricing

import (
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

var (
	freeShippingThreshold = decimal.NewFromInt(50)
	vatRate               = decimal.NewFromFloat(0.20)
	hundred               = decimal.NewFromInt(100)

	shippingRates = map[string]decimal.Decimal{
		models.DeliveryStandard: decimal.NewFromFloat(4.99),
		models.DeliveryExpress:  decimal.NewFromFloat(8.99),
		models.DeliveryNextDay:  decimal.NewFromFloat(12.99),
	}
)

func Subtotal(lines []Line) decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return subtotal.Round(2)
}

// ShippingFee is zero when the subtotal meets the free-shipping threshold,
// otherwise the flat rate for the delivery option. Unknown options fall
// back to standard delivery.
func ShippingFee(subtotal decimal.Decimal, deliveryOption string) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(freeShippingThreshold) {
		return decimal.Zero
	}

	rate, ok := shippingRates[deliveryOption]
	if !ok {
		rate = shippingRates[models.DeliveryStandard]
	}
	return rate
}

// ComputeTotals applies the canonical tax rule: 20% VAT over the
// discounted subtotal plus shipping.
func ComputeTotals(lines []Line, discount decimal.Decimal, deliveryOption string) Totals {
	subtotal := Subtotal(lines)

	if discount.LessThan(decimal.Zero) {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	discount = discount.Round(2)

	shipping := ShippingFee(subtotal, deliveryOption)
	tax := subtotal.Sub(discount).Add(shipping).Mul(vatRate).Round(2)
	total := subtotal.Sub(discount).Add(shipping).Add(tax)

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Tax:      tax,
		Total:    total,
	}
}

// Pence converts a GBP amount to integer minor units for the payment
// provider.
func Pence(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
