package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

func CreateProduct(ctx context.Context, db *sql.DB, slug, name, description, category string) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (slug, name, description, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, slug, name, description, category, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, slug, name, description, category).Scan(
		&product.ID,
		&product.Slug,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

// CreateVariant inserts the variant together with an opening adjustment
// movement, so the movement ledger sums to the stock quantity from day one.
func CreateVariant(ctx context.Context, db *sql.DB, productID int64, sku, size, colour string, price decimal.Decimal, stock int) (*models.Variant, error) {
	variant := &models.Variant{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		query := `
			INSERT INTO product_variants (product_id, sku, size, colour, price, stock_quantity, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
			RETURNING id, product_id, sku, size, colour, price, stock_quantity, created_at, updated_at, version`

		err := tx.QueryRowContext(ctx, query, productID, sku, size, colour, price, stock).Scan(
			&variant.ID,
			&variant.ProductID,
			&variant.SKU,
			&variant.Size,
			&variant.Colour,
			&variant.Price,
			&variant.StockQuantity,
			&variant.CreatedAt,
			&variant.UpdatedAt,
			&variant.Version,
		)
		if err != nil {
			return fmt.Errorf("create variant: %w", err)
		}

		if stock != 0 {
			return InsertMovement(ctx, tx, &models.InventoryMovement{
				VariantID:        variant.ID,
				MovementType:     models.MovementTypeAdjustment,
				QuantityChange:   stock,
				PreviousQuantity: 0,
				NewQuantity:      stock,
				Reference:        "initial stock",
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return variant, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, slug, name, description, category, created_at, updated_at
		FROM products
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Slug,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	variants, err := listVariants(ctx, db, id)
	if err != nil {
		return nil, err
	}
	product.Variants = variants

	return product, nil
}

func listVariants(ctx context.Context, db *sql.DB, productID int64) ([]models.Variant, error) {
	query := `
		SELECT id, product_id, sku, size, colour, price, stock_quantity, created_at, updated_at, version
		FROM product_variants
		WHERE product_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []models.Variant
	for rows.Next() {
		var v models.Variant
		err := rows.Scan(
			&v.ID,
			&v.ProductID,
			&v.SKU,
			&v.Size,
			&v.Colour,
			&v.Price,
			&v.StockQuantity,
			&v.CreatedAt,
			&v.UpdatedAt,
			&v.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return variants, nil
}

// ListProducts filters by category slug and/or a case-insensitive name
// substring, both optional.
func ListProducts(ctx context.Context, db *sql.DB, category, search string, page, pageSize int) (*OffsetPage, error) {
	where := "WHERE ($1 = '' OR category = $1) AND ($2 = '' OR name ILIKE '%' || $2 || '%')"

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products `+where, category, search).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, slug, name, description, category, created_at, updated_at
		FROM products ` + where + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := db.QueryContext(ctx, query, category, search, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(
			&product.ID,
			&product.Slug,
			&product.Name,
			&product.Description,
			&product.Category,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

// VariantDetail carries the product name alongside the variant for order
// line snapshots and stock error messages.
type VariantDetail struct {
	models.Variant
	ProductName string
}

func GetVariantDetail(ctx context.Context, db *sql.DB, variantID int64) (*VariantDetail, error) {
	v := &VariantDetail{}

	query := `
		SELECT v.id, v.product_id, v.sku, v.size, v.colour, v.price, v.stock_quantity,
		       v.created_at, v.updated_at, v.version, p.name
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`

	err := db.QueryRowContext(ctx, query, variantID).Scan(
		&v.ID,
		&v.ProductID,
		&v.SKU,
		&v.Size,
		&v.Colour,
		&v.Price,
		&v.StockQuantity,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.Version,
		&v.ProductName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}

	return v, nil
}

func LockVariant(ctx context.Context, tx *sql.Tx, variantID int64) (*models.Variant, error) {
	v := &models.Variant{}

	query := `
		SELECT id, product_id, sku, size, colour, price, stock_quantity, created_at, updated_at, version
		FROM product_variants
		WHERE id = $1
		FOR UPDATE`

	err := tx.QueryRowContext(ctx, query, variantID).Scan(
		&v.ID,
		&v.ProductID,
		&v.SKU,
		&v.Size,
		&v.Colour,
		&v.Price,
		&v.StockQuantity,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.Version,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "55P03" {
			return nil, database.ErrLockTimeout
		}
		if err == sql.ErrNoRows {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("lock variant: %w", err)
	}

	return v, nil
}

func UpdateVariantStock(ctx context.Context, tx *sql.Tx, variantID int64, newStock int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock_quantity = $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2`,
		newStock, variantID)
	if err != nil {
		return fmt.Errorf("update variant stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrVariantNotFound
	}

	return nil
}

// DecrementStock is the single-statement conditional decrement: the
// guarded UPDATE takes the row lock and the stock check together, and
// returns the quantity left. No matching row means the remaining stock
// cannot cover the quantity.
func DecrementStock(ctx context.Context, tx *sql.Tx, variantID int64, quantity int) (int, error) {
	var newQuantity int
	err := tx.QueryRowContext(ctx,
		`UPDATE product_variants
		 SET stock_quantity = stock_quantity - $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1
		 RETURNING stock_quantity`,
		quantity, variantID).Scan(&newQuantity)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, database.ErrInsufficientStock
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	return newQuantity, nil
}
