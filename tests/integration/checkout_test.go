package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/payment"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
)

// fakeProvider stands in for the hosted payment API.
type fakeProvider struct {
	sessions int
	intents  int
	lastErr  error
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, p payment.SessionParams) (*payment.Session, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	f.sessions++
	return &payment.Session{
		ID:  fmt.Sprintf("cs_test_%d", f.sessions),
		URL: "https://checkout.example.com/pay/cs_test",
	}, nil
}

func (f *fakeProvider) CreatePaymentIntent(ctx context.Context, p payment.IntentParams) (*payment.Intent, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	f.intents++
	return &payment.Intent{
		ID:           fmt.Sprintf("pi_test_%d", f.intents),
		ClientSecret: "pi_test_secret",
	}, nil
}

func newTestOrchestrator(t *testing.T, db *sql.DB) (*checkout.Orchestrator, *fakeProvider) {
	t.Helper()
	provider := &fakeProvider{}
	logger := slog.New(slog.DiscardHandler)
	return checkout.NewOrchestrator(db, provider, nil, nil, logger), provider
}

func seedVariant(t *testing.T, db *sql.DB, sku string, price string, stock int) *models.Variant {
	t.Helper()
	ctx := context.Background()

	product, err := store.CreateProduct(ctx, db, "tee-"+sku, "Test Tee "+sku, "A plain tee", "tops")
	if err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}

	variant, err := store.CreateVariant(ctx, db, product.ID, sku, "M", "black",
		decimal.RequireFromString(price), stock)
	if err != nil {
		t.Fatalf("Failed to create variant: %v", err)
	}

	return variant
}

func paidEvent(orderNumber, eventID string) *payment.Event {
	event := &payment.Event{ID: eventID, Type: "checkout.session.completed"}
	event.Data.Object = json.RawMessage(fmt.Sprintf(`{"client_reference_id":%q}`, orderNumber))
	return event
}

func variantStock(t *testing.T, db *sql.DB, variantID int64) int {
	t.Helper()
	var stock int
	err := db.QueryRow(`SELECT stock_quantity FROM product_variants WHERE id = $1`, variantID).Scan(&stock)
	if err != nil {
		t.Fatalf("Failed to read stock: %v", err)
	}
	return stock
}

func TestCheckoutCreatesPendingOrderWithComputedTotals(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	orchestrator, provider := newTestOrchestrator(t, db)
	variant := seedVariant(t, db, "TEE-001", "24.99", 5)

	result, err := orchestrator.Checkout(context.Background(), checkout.CheckoutInput{
		CustomerEmail:  "Alice@Example.com",
		DeliveryOption: "standard",
		Lines:          []checkout.CartLine{{VariantID: variant.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	if provider.sessions != 1 {
		t.Errorf("Expected 1 session created, got %d", provider.sessions)
	}
	if result.URL == "" {
		t.Error("Expected a hosted payment URL")
	}

	order, err := store.GetOrder(context.Background(), db, result.OrderNumber)
	if err != nil {
		t.Fatalf("Failed to fetch order: %v", err)
	}

	if order.Status != models.OrderStatusPending {
		t.Errorf("Expected status pending, got %s", order.Status)
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("Expected payment_status pending, got %s", order.PaymentStatus)
	}
	if order.CustomerEmail != "alice@example.com" {
		t.Errorf("Expected normalised email, got %s", order.CustomerEmail)
	}

	expect := map[string]decimal.Decimal{
		"subtotal": decimal.RequireFromString("49.98"),
		"shipping": decimal.RequireFromString("4.99"),
		"tax":      decimal.RequireFromString("10.99"),
		"total":    decimal.RequireFromString("65.96"),
	}
	got := map[string]decimal.Decimal{
		"subtotal": order.Subtotal,
		"shipping": order.Shipping,
		"tax":      order.Tax,
		"total":    order.Total,
	}
	for field, want := range expect {
		if !got[field].Equal(want) {
			t.Errorf("Expected %s %s, got %s", field, want, got[field])
		}
	}

	if len(order.Items) != 1 {
		t.Fatalf("Expected 1 order item, got %d", len(order.Items))
	}
	if order.Items[0].Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", order.Items[0].Quantity)
	}

	// Stock is only taken on payment, not at checkout.
	if stock := variantStock(t, db, variant.ID); stock != 5 {
		t.Errorf("Expected stock still 5 before payment, got %d", stock)
	}
}

func TestCheckoutRejectsInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	orchestrator, _ := newTestOrchestrator(t, db)
	variant := seedVariant(t, db, "TEE-002", "19.99", 1)

	_, err := orchestrator.Checkout(context.Background(), checkout.CheckoutInput{
		CustomerEmail: "bob@example.com",
		Lines:         []checkout.CartLine{{VariantID: variant.ID, Quantity: 3}},
	})

	var stockErr *checkout.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if stockErr.Available != 1 {
		t.Errorf("Expected 1 available, got %d", stockErr.Available)
	}
}

func TestPaymentWebhookSettlesOrderOnce(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	orchestrator, _ := newTestOrchestrator(t, db)
	variant := seedVariant(t, db, "TEE-003", "24.99", 5)

	result, err := orchestrator.Checkout(context.Background(), checkout.CheckoutInput{
		CustomerEmail: "carol@example.com",
		Lines:         []checkout.CartLine{{VariantID: variant.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	event := paidEvent(result.OrderNumber, "evt_paid_1")
	if err := orchestrator.HandleWebhookEvent(context.Background(), event); err != nil {
		t.Fatalf("Webhook handling failed: %v", err)
	}

	order, err := store.GetOrder(context.Background(), db, result.OrderNumber)
	if err != nil {
		t.Fatalf("Failed to fetch order: %v", err)
	}
	if order.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Expected payment_status paid, got %s", order.PaymentStatus)
	}
	if order.Status != models.OrderStatusProcessing {
		t.Errorf("Expected status processing, got %s", order.Status)
	}
	if stock := variantStock(t, db, variant.ID); stock != 3 {
		t.Errorf("Expected stock 3 after sale, got %d", stock)
	}

	movements, err := store.ListMovements(context.Background(), db, variant.ID)
	if err != nil {
		t.Fatalf("Failed to list movements: %v", err)
	}
	// Opening adjustment plus the sale.
	if len(movements) != 2 {
		t.Fatalf("Expected 2 movements, got %d", len(movements))
	}
	sale := movements[1]
	if sale.MovementType != models.MovementTypeSale || sale.QuantityChange != -2 {
		t.Errorf("Expected sale of -2, got %s %d", sale.MovementType, sale.QuantityChange)
	}
	if sale.NewQuantity != sale.PreviousQuantity+sale.QuantityChange {
		t.Error("Movement quantities do not reconcile")
	}

	// Replaying the same event must not decrement stock again.
	if err := orchestrator.HandleWebhookEvent(context.Background(), paidEvent(result.OrderNumber, "evt_paid_1")); err != nil {
		t.Fatalf("Webhook replay failed: %v", err)
	}
	if stock := variantStock(t, db, variant.ID); stock != 3 {
		t.Errorf("Expected stock unchanged at 3 after replay, got %d", stock)
	}
}

func TestPaymentFailureCancelsOrderWithoutTouchingStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	orchestrator, _ := newTestOrchestrator(t, db)
	variant := seedVariant(t, db, "TEE-004", "24.99", 5)

	result, err := orchestrator.Checkout(context.Background(), checkout.CheckoutInput{
		CustomerEmail: "dave@example.com",
		Lines:         []checkout.CartLine{{VariantID: variant.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	event := &payment.Event{ID: "evt_fail_1", Type: "checkout.session.expired"}
	event.Data.Object = json.RawMessage(fmt.Sprintf(`{"client_reference_id":%q}`, result.OrderNumber))
	if err := orchestrator.HandleWebhookEvent(context.Background(), event); err != nil {
		t.Fatalf("Webhook handling failed: %v", err)
	}

	order, err := store.GetOrder(context.Background(), db, result.OrderNumber)
	if err != nil {
		t.Fatalf("Failed to fetch order: %v", err)
	}
	if order.Status != models.OrderStatusCancelled {
		t.Errorf("Expected status cancelled, got %s", order.Status)
	}
	if order.PaymentStatus != models.PaymentStatusFailed {
		t.Errorf("Expected payment_status failed, got %s", order.PaymentStatus)
	}
	if stock := variantStock(t, db, variant.ID); stock != 5 {
		t.Errorf("Expected stock untouched at 5, got %d", stock)
	}
}

func TestCheckoutWithPromoRedeemsOnPayment(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	orchestrator, _ := newTestOrchestrator(t, db)
	variant := seedVariant(t, db, "TEE-005", "30.00", 10)

	_, err := store.CreatePromoCode(context.Background(), db, store.CreatePromoParams{
		Code:          "SAVE10",
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: decimal.RequireFromString("10"),
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidUntil:    time.Now().Add(time.Hour),
		UsageLimit:    1,
	})
	if err != nil {
		t.Fatalf("Failed to create promo: %v", err)
	}

	result, err := orchestrator.Checkout(context.Background(), checkout.CheckoutInput{
		CustomerEmail: "erin@example.com",
		PromoCode:     "save10",
		Lines:         []checkout.CartLine{{VariantID: variant.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}

	order, err := store.GetOrder(context.Background(), db, result.OrderNumber)
	if err != nil {
		t.Fatalf("Failed to fetch order: %v", err)
	}

	// 60.00 subtotal, 10% off, free shipping over the threshold,
	// 20% VAT on 54.00.
	if !order.Discount.Equal(decimal.RequireFromString("6.00")) {
		t.Errorf("Expected discount 6.00, got %s", order.Discount)
	}
	if !order.Shipping.Equal(decimal.Zero) {
		t.Errorf("Expected free shipping, got %s", order.Shipping)
	}
	if !order.Total.Equal(decimal.RequireFromString("64.80")) {
		t.Errorf("Expected total 64.80, got %s", order.Total)
	}
	if order.PromoCode != "SAVE10" {
		t.Errorf("Expected promo code SAVE10 on order, got %q", order.PromoCode)
	}

	if err := orchestrator.HandleWebhookEvent(context.Background(), paidEvent(result.OrderNumber, "evt_promo_1")); err != nil {
		t.Fatalf("Webhook handling failed: %v", err)
	}

	promoCode, err := store.GetPromoCode(context.Background(), db, "SAVE10")
	if err != nil {
		t.Fatalf("Failed to fetch promo: %v", err)
	}
	if promoCode.UsageCount != 1 {
		t.Errorf("Expected usage_count 1 after payment, got %d", promoCode.UsageCount)
	}
}

func TestCreatePaymentIntentPersistsOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	orchestrator, provider := newTestOrchestrator(t, db)
	variant := seedVariant(t, db, "TEE-006", "12.50", 4)

	result, err := orchestrator.CreatePaymentIntent(context.Background(), checkout.CheckoutInput{
		CustomerEmail: "frank@example.com",
		Lines:         []checkout.CartLine{{VariantID: variant.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreatePaymentIntent failed: %v", err)
	}

	if provider.intents != 1 {
		t.Errorf("Expected 1 intent created, got %d", provider.intents)
	}
	if result.ClientSecret == "" {
		t.Error("Expected a client secret")
	}

	if _, err := store.GetOrder(context.Background(), db, result.OrderNumber); err != nil {
		t.Fatalf("Expected persisted order, got %v", err)
	}
}
