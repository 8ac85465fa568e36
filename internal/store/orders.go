package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

// OrderLine is a snapshot of a variant at purchase time; prices come from
// the catalog, never from the client.
type OrderLine struct {
	VariantID   int64
	ProductName string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type CreateOrderParams struct {
	OrderNumber    string
	CustomerEmail  string
	DeliveryOption string
	PromoCode      string
	PaymentRef     string
	Subtotal       decimal.Decimal
	Shipping       decimal.Decimal
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	ShippingName   string
	ShippingLine1  string
	ShippingLine2  string
	ShippingCity   string
	ShippingPost   string
	Lines          []OrderLine
}

func CreateOrder(ctx context.Context, db *sql.DB, p CreateOrderParams) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order = &models.Order{}

		query := `
			INSERT INTO orders (order_number, customer_email, status, payment_status, delivery_option,
			                    subtotal, shipping, tax, discount, total, promo_code, payment_ref,
			                    shipping_name, shipping_line1, shipping_line2, shipping_city, shipping_postcode,
			                    created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
			RETURNING id, order_number, customer_email, status, payment_status, delivery_option,
			          subtotal, shipping, tax, discount, total, promo_code, payment_ref, created_at, updated_at`

		err := tx.QueryRowContext(ctx, query,
			p.OrderNumber, p.CustomerEmail, models.OrderStatusPending, models.PaymentStatusPending,
			p.DeliveryOption, p.Subtotal, p.Shipping, p.Tax, p.Discount, p.Total,
			p.PromoCode, p.PaymentRef,
			p.ShippingName, p.ShippingLine1, p.ShippingLine2, p.ShippingCity, p.ShippingPost,
		).Scan(
			&order.ID,
			&order.OrderNumber,
			&order.CustomerEmail,
			&order.Status,
			&order.PaymentStatus,
			&order.DeliveryOption,
			&order.Subtotal,
			&order.Shipping,
			&order.Tax,
			&order.Discount,
			&order.Total,
			&order.PromoCode,
			&order.PaymentRef,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, line := range p.Lines {
			lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))

			var item models.OrderItem
			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, variant_id, product_name, sku, quantity, unit_price, line_total, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				 RETURNING id, order_id, variant_id, product_name, sku, quantity, unit_price, line_total, created_at`,
				order.ID, line.VariantID, line.ProductName, line.SKU, line.Quantity, line.UnitPrice, lineTotal,
			).Scan(
				&item.ID,
				&item.OrderID,
				&item.VariantID,
				&item.ProductName,
				&item.SKU,
				&item.Quantity,
				&item.UnitPrice,
				&item.LineTotal,
				&item.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			order.Items = append(order.Items, item)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

const orderColumns = `id, order_number, customer_email, status, payment_status, delivery_option,
	subtotal, shipping, tax, discount, total, promo_code, payment_ref,
	shipping_name, shipping_line1, shipping_line2, shipping_city, shipping_postcode,
	created_at, updated_at`

func scanOrder(row *sql.Row) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerEmail,
		&order.Status,
		&order.PaymentStatus,
		&order.DeliveryOption,
		&order.Subtotal,
		&order.Shipping,
		&order.Tax,
		&order.Discount,
		&order.Total,
		&order.PromoCode,
		&order.PaymentRef,
		&order.ShippingName,
		&order.ShippingLine1,
		&order.ShippingLine2,
		&order.ShippingCity,
		&order.ShippingPost,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func GetOrder(ctx context.Context, db *sql.DB, orderNumber string) (*models.Order, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := orderItems(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func orderItems(ctx context.Context, q querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, variant_id, product_name, sku, quantity, unit_price, line_total, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.VariantID,
			&item.ProductName,
			&item.SKU,
			&item.Quantity,
			&item.UnitPrice,
			&item.LineTotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderItem, error) {
	return orderItems(ctx, tx, orderID)
}

// transitionOrder runs a state-guarded update. The guard makes webhook
// replays no-ops: a second delivery finds the order already transitioned
// and affects zero rows.
func transitionOrder(ctx context.Context, tx *sql.Tx, orderNumber, setClause, guardClause string) (*models.Order, bool, error) {
	row := tx.QueryRowContext(ctx,
		`UPDATE orders SET `+setClause+`, updated_at = NOW()
		 WHERE order_number = $1 AND `+guardClause+`
		 RETURNING `+orderColumns, orderNumber)

	order, err := scanOrder(row)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, false, fmt.Errorf("transition order: %w", err)
		}

		var exists bool
		checkErr := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)`, orderNumber).Scan(&exists)
		if checkErr != nil {
			return nil, false, fmt.Errorf("check order exists: %w", checkErr)
		}
		if !exists {
			return nil, false, database.ErrOrderNotFound
		}
		return nil, false, nil
	}

	return order, true, nil
}

func MarkOrderPaid(ctx context.Context, tx *sql.Tx, orderNumber string) (*models.Order, bool, error) {
	return transitionOrder(ctx, tx, orderNumber,
		`payment_status = 'paid', status = 'processing'`,
		`payment_status = 'pending'`)
}

func CancelPendingOrder(ctx context.Context, tx *sql.Tx, orderNumber string) (*models.Order, bool, error) {
	return transitionOrder(ctx, tx, orderNumber,
		`payment_status = 'failed', status = 'cancelled'`,
		`payment_status = 'pending'`)
}

func RefundPaidOrder(ctx context.Context, tx *sql.Tx, orderNumber string) (*models.Order, bool, error) {
	return transitionOrder(ctx, tx, orderNumber,
		`payment_status = 'refunded', status = 'cancelled'`,
		`payment_status = 'paid' AND status IN ('processing', 'fulfilled')`)
}

func MarkOrderFulfilled(ctx context.Context, db *sql.DB, orderNumber string) (*models.Order, bool, error) {
	var order *models.Order
	var transitioned bool

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, transitioned, err = transitionOrder(ctx, tx, orderNumber,
			`status = 'fulfilled'`,
			`status = 'processing' AND payment_status = 'paid'`)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	return order, transitioned, nil
}
