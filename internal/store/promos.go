package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

const promoColumns = `id, code, discount_type, discount_value, min_amount, max_discount,
	valid_from, valid_until, usage_limit, usage_count, active, created_at, updated_at`

func scanPromo(row *sql.Row) (*models.PromoCode, error) {
	pc := &models.PromoCode{}
	err := row.Scan(
		&pc.ID,
		&pc.Code,
		&pc.DiscountType,
		&pc.DiscountValue,
		&pc.MinAmount,
		&pc.MaxDiscount,
		&pc.ValidFrom,
		&pc.ValidUntil,
		&pc.UsageLimit,
		&pc.UsageCount,
		&pc.Active,
		&pc.CreatedAt,
		&pc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func GetPromoCode(ctx context.Context, db *sql.DB, code string) (*models.PromoCode, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`,
		strings.ToUpper(strings.TrimSpace(code)))

	pc, err := scanPromo(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrPromoNotFound
		}
		return nil, fmt.Errorf("get promo code: %w", err)
	}

	return pc, nil
}

type CreatePromoParams struct {
	Code          string
	DiscountType  string
	DiscountValue decimal.Decimal
	MinAmount     decimal.Decimal
	MaxDiscount   decimal.NullDecimal
	ValidFrom     time.Time
	ValidUntil    time.Time
	UsageLimit    int
}

func CreatePromoCode(ctx context.Context, db *sql.DB, p CreatePromoParams) (*models.PromoCode, error) {
	row := db.QueryRowContext(ctx,
		`INSERT INTO promo_codes (code, discount_type, discount_value, min_amount, max_discount,
		                          valid_from, valid_until, usage_limit, usage_count, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, TRUE, NOW(), NOW())
		 RETURNING `+promoColumns,
		strings.ToUpper(strings.TrimSpace(p.Code)), p.DiscountType, p.DiscountValue,
		p.MinAmount, p.MaxDiscount, p.ValidFrom, p.ValidUntil, p.UsageLimit)

	pc, err := scanPromo(row)
	if err != nil {
		return nil, fmt.Errorf("create promo code: %w", err)
	}

	return pc, nil
}

// RedeemPromoCode increments usage_count, refusing once the limit is hit.
// The conditional update keeps concurrent redemptions from overshooting
// the limit.
func RedeemPromoCode(ctx context.Context, tx *sql.Tx, code string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE promo_codes
		 SET usage_count = usage_count + 1,
		     updated_at = NOW()
		 WHERE code = $1
		   AND active
		   AND (usage_limit = 0 OR usage_count < usage_limit)`,
		strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Errorf("redeem promo code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrPromoExhausted
	}

	return nil
}
