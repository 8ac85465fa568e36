// Package promo validates discount codes against their eligibility rules.
package promo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
)

type Result struct {
	Valid    bool
	Discount decimal.Decimal
	Reason   string
}

func invalid(reason string) Result {
	return Result{Valid: false, Discount: decimal.Zero, Reason: reason}
}

// Evaluate runs the eligibility checks in order; the first failing check
// short-circuits with its reason. A zero usage limit means unlimited.
func Evaluate(pc *models.PromoCode, subtotal decimal.Decimal, now time.Time) Result {
	if !pc.Active {
		return invalid("This promo code is no longer active")
	}
	if now.Before(pc.ValidFrom) {
		return invalid("This promo code is not valid yet")
	}
	if now.After(pc.ValidUntil) {
		return invalid("This promo code has expired")
	}
	if subtotal.LessThan(pc.MinAmount) {
		return invalid(fmt.Sprintf("Minimum order amount of £%s required", pc.MinAmount.StringFixed(2)))
	}
	if pc.UsageLimit > 0 && pc.UsageCount >= pc.UsageLimit {
		return invalid("This promo code has reached its usage limit")
	}

	return Result{Valid: true, Discount: discountFor(pc, subtotal)}
}

func discountFor(pc *models.PromoCode, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal

	switch pc.DiscountType {
	case models.DiscountTypePercentage:
		discount = subtotal.Mul(pc.DiscountValue).Div(decimal.NewFromInt(100))
		if pc.MaxDiscount.Valid && discount.GreaterThan(pc.MaxDiscount.Decimal) {
			discount = pc.MaxDiscount.Decimal
		}
	default:
		discount = pc.DiscountValue
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount.Round(2)
}

// Validate looks up a code and evaluates it against the subtotal. An
// unknown code is an invalid result, not an error.
func Validate(ctx context.Context, db *sql.DB, code string, subtotal decimal.Decimal, now time.Time) (Result, error) {
	pc, err := store.GetPromoCode(ctx, db, code)
	if err != nil {
		if errors.Is(err, database.ErrPromoNotFound) {
			return invalid("Invalid promo code"), nil
		}
		return Result{}, err
	}

	return Evaluate(pc, subtotal, now), nil
}
