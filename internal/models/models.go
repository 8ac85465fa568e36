package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Variants    []Variant `json:"variants,omitempty"`
}

type Variant struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	SKU           string          `json:"sku"`
	Size          string          `json:"size"`
	Colour        string          `json:"colour"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Order struct {
	ID             int64           `json:"id"`
	OrderNumber    string          `json:"order_number"`
	CustomerEmail  string          `json:"customer_email"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"payment_status"`
	DeliveryOption string          `json:"delivery_option"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Shipping       decimal.Decimal `json:"shipping"`
	Tax            decimal.Decimal `json:"tax"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	PromoCode      string          `json:"promo_code,omitempty"`
	PaymentRef     string          `json:"payment_ref,omitempty"`
	ShippingName   string          `json:"shipping_name,omitempty"`
	ShippingLine1  string          `json:"shipping_line1,omitempty"`
	ShippingLine2  string          `json:"shipping_line2,omitempty"`
	ShippingCity   string          `json:"shipping_city,omitempty"`
	ShippingPost   string          `json:"shipping_postcode,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	VariantID   int64           `json:"variant_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PromoCode struct {
	ID            int64               `json:"id"`
	Code          string              `json:"code"`
	DiscountType  string              `json:"discount_type"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	MinAmount     decimal.Decimal     `json:"min_amount"`
	MaxDiscount   decimal.NullDecimal `json:"max_discount"`
	ValidFrom     time.Time           `json:"valid_from"`
	ValidUntil    time.Time           `json:"valid_until"`
	UsageLimit    int                 `json:"usage_limit"`
	UsageCount    int                 `json:"usage_count"`
	Active        bool                `json:"active"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// InventoryMovement is an append-only ledger entry. NewQuantity is always
// PreviousQuantity + QuantityChange, so the variant's stock equals the sum
// of its movements.
type InventoryMovement struct {
	ID               int64     `json:"id"`
	VariantID        int64     `json:"variant_id"`
	MovementType     string    `json:"movement_type"`
	QuantityChange   int       `json:"quantity_change"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
	Reference        string    `json:"reference"`
	CreatedAt        time.Time `json:"created_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Marketing bool      `json:"marketing_opt_in"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Address struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	Postcode   string    `json:"postcode"`
	Country    string    `json:"country"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Review struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	CustomerName string    `json:"customer_name"`
	Rating       int       `json:"rating"`
	Title        string    `json:"title,omitempty"`
	Comment      string    `json:"comment"`
	Approved     bool      `json:"approved"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusFulfilled  = "fulfilled"
	OrderStatusCancelled  = "cancelled"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

const (
	MovementTypeSale       = "sale"
	MovementTypeReturn     = "return"
	MovementTypeAdjustment = "adjustment"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

const (
	DeliveryStandard = "standard"
	DeliveryExpress  = "express"
	DeliveryNextDay  = "next_day"
)
