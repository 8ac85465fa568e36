package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-storefront/internal/models"
)

func InsertMovement(ctx context.Context, tx *sql.Tx, m *models.InventoryMovement) error {
	query := `
		INSERT INTO inventory_movements (variant_id, movement_type, quantity_change, previous_quantity, new_quantity, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`

	err := tx.QueryRowContext(ctx, query,
		m.VariantID,
		m.MovementType,
		m.QuantityChange,
		m.PreviousQuantity,
		m.NewQuantity,
		m.Reference,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}

	return nil
}

func ListMovements(ctx context.Context, db *sql.DB, variantID int64) ([]models.InventoryMovement, error) {
	query := `
		SELECT id, variant_id, movement_type, quantity_change, previous_quantity, new_quantity, reference, created_at
		FROM inventory_movements
		WHERE variant_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, query, variantID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var movements []models.InventoryMovement
	for rows.Next() {
		var m models.InventoryMovement
		err := rows.Scan(
			&m.ID,
			&m.VariantID,
			&m.MovementType,
			&m.QuantityChange,
			&m.PreviousQuantity,
			&m.NewQuantity,
			&m.Reference,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return movements, nil
}

// StockDiscrepancy reports a variant whose stock_quantity no longer equals
// the sum of its movement ledger.
type StockDiscrepancy struct {
	VariantID     int64 `json:"variant_id"`
	StockQuantity int   `json:"stock_quantity"`
	MovementSum   int   `json:"movement_sum"`
}

func FindStockDiscrepancies(ctx context.Context, db *sql.DB) ([]StockDiscrepancy, error) {
	query := `
		SELECT v.id, v.stock_quantity, COALESCE(SUM(m.quantity_change), 0) AS movement_sum
		FROM product_variants v
		LEFT JOIN inventory_movements m ON m.variant_id = v.id
		GROUP BY v.id, v.stock_quantity
		HAVING v.stock_quantity <> COALESCE(SUM(m.quantity_change), 0)
		ORDER BY v.id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find stock discrepancies: %w", err)
	}
	defer rows.Close()

	var discrepancies []StockDiscrepancy
	for rows.Next() {
		var d StockDiscrepancy
		if err := rows.Scan(&d.VariantID, &d.StockQuantity, &d.MovementSum); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		discrepancies = append(discrepancies, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return discrepancies, nil
}
