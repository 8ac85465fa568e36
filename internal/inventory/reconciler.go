// Package inventory mutates variant stock and keeps the movement ledger in
// step with it. Every mutation locks the variant row and writes its
// movement in the same transaction, so concurrent orders for the same
// variant cannot lose updates and the ledger always sums to the stock.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

// RecordSale decrements stock for a paid line item. When stock covers the
// quantity a single conditional UPDATE takes the decrement; when it does
// not, the row is locked and the decrement clamped at zero, with the
// movement recording the change actually applied. Either way
// new_quantity = previous_quantity + quantity_change holds.
func RecordSale(ctx context.Context, tx *sql.Tx, variantID int64, quantity int, reference string) (*models.InventoryMovement, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("sale quantity must be positive, got %d", quantity)
	}

	newQuantity, err := store.DecrementStock(ctx, tx, variantID, quantity)
	if err == nil {
		movement := &models.InventoryMovement{
			VariantID:        variantID,
			MovementType:     models.MovementTypeSale,
			QuantityChange:   -quantity,
			PreviousQuantity: newQuantity + quantity,
			NewQuantity:      newQuantity,
			Reference:        reference,
		}
		if err := store.InsertMovement(ctx, tx, movement); err != nil {
			return nil, err
		}
		return movement, nil
	}
	if !errors.Is(err, database.ErrInsufficientStock) {
		return nil, err
	}

	variant, err := store.LockVariant(ctx, tx, variantID)
	if err != nil {
		return nil, err
	}

	change := -quantity
	if variant.StockQuantity < quantity {
		change = -variant.StockQuantity
	}
	newQuantity = variant.StockQuantity + change

	if err := store.UpdateVariantStock(ctx, tx, variantID, newQuantity); err != nil {
		return nil, err
	}

	movement := &models.InventoryMovement{
		VariantID:        variantID,
		MovementType:     models.MovementTypeSale,
		QuantityChange:   change,
		PreviousQuantity: variant.StockQuantity,
		NewQuantity:      newQuantity,
		Reference:        reference,
	}
	if err := store.InsertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}

	return movement, nil
}

// RecordReturn puts stock back when a paid order is cancelled or refunded.
func RecordReturn(ctx context.Context, tx *sql.Tx, variantID int64, quantity int, reference string) (*models.InventoryMovement, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("return quantity must be positive, got %d", quantity)
	}

	variant, err := store.LockVariant(ctx, tx, variantID)
	if err != nil {
		return nil, err
	}

	newQuantity := variant.StockQuantity + quantity

	if err := store.UpdateVariantStock(ctx, tx, variantID, newQuantity); err != nil {
		return nil, err
	}

	movement := &models.InventoryMovement{
		VariantID:        variantID,
		MovementType:     models.MovementTypeReturn,
		QuantityChange:   quantity,
		PreviousQuantity: variant.StockQuantity,
		NewQuantity:      newQuantity,
		Reference:        reference,
	}
	if err := store.InsertMovement(ctx, tx, movement); err != nil {
		return nil, err
	}

	return movement, nil
}

// Adjust sets a variant's stock to an absolute quantity, recording the
// delta as a manual adjustment.
func Adjust(ctx context.Context, db *sql.DB, variantID int64, newQuantity int, reference string) (*models.InventoryMovement, error) {
	if newQuantity < 0 {
		return nil, fmt.Errorf("stock quantity cannot be negative, got %d", newQuantity)
	}

	var movement *models.InventoryMovement

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		variant, err := store.LockVariant(ctx, tx, variantID)
		if err != nil {
			return err
		}

		if variant.StockQuantity == newQuantity {
			movement = nil
			return nil
		}

		if err := store.UpdateVariantStock(ctx, tx, variantID, newQuantity); err != nil {
			return err
		}

		movement = &models.InventoryMovement{
			VariantID:        variantID,
			MovementType:     models.MovementTypeAdjustment,
			QuantityChange:   newQuantity - variant.StockQuantity,
			PreviousQuantity: variant.StockQuantity,
			NewQuantity:      newQuantity,
			Reference:        reference,
		}
		return store.InsertMovement(ctx, tx, movement)
	})
	if err != nil {
		return nil, err
	}

	return movement, nil
}

// CheckLedger reports variants whose stock has drifted from the sum of
// their movements.
func CheckLedger(ctx context.Context, db *sql.DB) ([]store.StockDiscrepancy, error) {
	return store.FindStockDiscrepancies(ctx, db)
}
