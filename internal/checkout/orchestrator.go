// Package checkout composes pricing, promo validation, the payment
// provider and the inventory reconciler into the order lifecycle:
//
//	pending -> (paid -> processing -> fulfilled) | cancelled
//
// Orders are created pending at checkout; webhook events drive every
// later transition.
package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/inventory"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/payment"
	"github.com/safar/go-storefront/internal/pricing"
	"github.com/safar/go-storefront/internal/promo"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
)

type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, p payment.SessionParams) (*payment.Session, error)
	CreatePaymentIntent(ctx context.Context, p payment.IntentParams) (*payment.Intent, error)
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event events.OrderEvent) error
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type Orchestrator struct {
	db        *sql.DB
	provider  PaymentProvider
	publisher EventPublisher
	idem      IdempotencyStore
	logger    *slog.Logger
}

// NewOrchestrator wires the checkout flow. publisher and idem may be nil
// when Kafka or Redis are not configured.
func NewOrchestrator(db *sql.DB, provider PaymentProvider, publisher EventPublisher, idem IdempotencyStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		db:        db,
		provider:  provider,
		publisher: publisher,
		idem:      idem,
		logger:    logger,
	}
}

type CartLine struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type CheckoutInput struct {
	CustomerEmail    string
	DeliveryOption   string
	PromoCode        string
	IdempotencyKey   string
	Lines            []CartLine
	ShippingName     string
	ShippingLine1    string
	ShippingLine2    string
	ShippingCity     string
	ShippingPostcode string
}

type CheckoutResult struct {
	OrderNumber string `json:"order_number"`
	URL         string `json:"url"`
}

type IntentResult struct {
	OrderNumber  string `json:"order_number"`
	ClientSecret string `json:"client_secret"`
}

type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// InsufficientStockError names the item and how many are left, so the
// storefront can show it inline.
type InsufficientStockError struct {
	ProductName string
	SKU         string
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s (%s): only %d available", e.ProductName, e.SKU, e.Available)
}

type PromoRejectedError struct {
	Reason string
}

func (e *PromoRejectedError) Error() string { return e.Reason }

var ErrDuplicateCheckout = errors.New("a checkout with this idempotency key is already in progress")

func generateOrderNumber() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

type preparedCart struct {
	lines     []store.OrderLine
	totals    pricing.Totals
	promoCode string
}

// prepareCart revalidates the cart against the catalog: prices come from
// storage, stock is checked up front, and the promo code is evaluated
// against the recomputed subtotal.
func (o *Orchestrator) prepareCart(ctx context.Context, in CheckoutInput) (*preparedCart, error) {
	if len(in.Lines) == 0 {
		return nil, ValidationError("Cart is empty")
	}
	if strings.TrimSpace(in.CustomerEmail) == "" {
		return nil, ValidationError("Customer email is required")
	}

	var orderLines []store.OrderLine
	var priceLines []pricing.Line

	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return nil, ValidationError(fmt.Sprintf("Invalid quantity %d for variant %d", line.Quantity, line.VariantID))
		}

		variant, err := store.GetVariantDetail(ctx, o.db, line.VariantID)
		if err != nil {
			return nil, err
		}

		if variant.StockQuantity < line.Quantity {
			return nil, &InsufficientStockError{
				ProductName: variant.ProductName,
				SKU:         variant.SKU,
				Available:   variant.StockQuantity,
			}
		}

		orderLines = append(orderLines, store.OrderLine{
			VariantID:   variant.ID,
			ProductName: variant.ProductName,
			SKU:         variant.SKU,
			Quantity:    line.Quantity,
			UnitPrice:   variant.Price,
		})
		priceLines = append(priceLines, pricing.Line{
			UnitPrice: variant.Price,
			Quantity:  line.Quantity,
		})
	}

	var promoCode string
	promoDiscount := decimal.Zero
	if strings.TrimSpace(in.PromoCode) != "" {
		subtotal := pricing.Subtotal(priceLines)
		result, err := promo.Validate(ctx, o.db, in.PromoCode, subtotal, time.Now())
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			return nil, &PromoRejectedError{Reason: result.Reason}
		}
		promoCode = strings.ToUpper(strings.TrimSpace(in.PromoCode))
		promoDiscount = result.Discount
	}

	return &preparedCart{
		lines:     orderLines,
		totals:    pricing.ComputeTotals(priceLines, promoDiscount, in.DeliveryOption),
		promoCode: promoCode,
	}, nil
}

// Checkout creates a hosted payment session and persists the pending
// order that the session will settle.
func (o *Orchestrator) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if cached, err := recallResult[CheckoutResult](ctx, o.idem, "checkout", in.IdempotencyKey); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	result, err := o.createSession(ctx, in)
	if err != nil {
		// A failed attempt must not burn the key: the customer is told
		// to try again, and the retry carries the same key.
		o.releaseLock(ctx, "checkout", in.IdempotencyKey)
		return nil, err
	}

	o.rememberResult(ctx, "checkout", in.IdempotencyKey, result)
	return result, nil
}

func (o *Orchestrator) createSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	cart, err := o.prepareCart(ctx, in)
	if err != nil {
		return nil, err
	}

	orderNumber := generateOrderNumber()

	sessionParams := payment.SessionParams{
		OrderNumber:   orderNumber,
		CustomerEmail: in.CustomerEmail,
		ShippingPence: pricing.Pence(cart.totals.Shipping),
		TaxPence:      pricing.Pence(cart.totals.Tax),
		DiscountPence: pricing.Pence(cart.totals.Discount),
	}
	for _, line := range cart.lines {
		sessionParams.LineItems = append(sessionParams.LineItems, payment.LineItem{
			Name:        line.ProductName,
			AmountPence: pricing.Pence(line.UnitPrice),
			Quantity:    line.Quantity,
		})
	}

	session, err := o.provider.CreateCheckoutSession(ctx, sessionParams)
	if err != nil {
		return nil, err
	}

	if err := o.persistOrder(ctx, orderNumber, in, cart, session.ID); err != nil {
		o.logger.Error("orphaned payment session: order persist failed",
			"order_number", orderNumber, "session_id", session.ID, "error", err)
		return nil, err
	}

	return &CheckoutResult{OrderNumber: orderNumber, URL: session.URL}, nil
}

// CreatePaymentIntent is the embedded-payment-form variant of Checkout.
func (o *Orchestrator) CreatePaymentIntent(ctx context.Context, in CheckoutInput) (*IntentResult, error) {
	if cached, err := recallResult[IntentResult](ctx, o.idem, "intent", in.IdempotencyKey); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	result, err := o.createIntent(ctx, in)
	if err != nil {
		o.releaseLock(ctx, "intent", in.IdempotencyKey)
		return nil, err
	}

	o.rememberResult(ctx, "intent", in.IdempotencyKey, result)
	return result, nil
}

func (o *Orchestrator) createIntent(ctx context.Context, in CheckoutInput) (*IntentResult, error) {
	cart, err := o.prepareCart(ctx, in)
	if err != nil {
		return nil, err
	}

	orderNumber := generateOrderNumber()

	intent, err := o.provider.CreatePaymentIntent(ctx, payment.IntentParams{
		OrderNumber:   orderNumber,
		CustomerEmail: in.CustomerEmail,
		AmountPence:   pricing.Pence(cart.totals.Total),
	})
	if err != nil {
		return nil, err
	}

	if err := o.persistOrder(ctx, orderNumber, in, cart, intent.ID); err != nil {
		o.logger.Error("orphaned payment intent: order persist failed",
			"order_number", orderNumber, "intent_id", intent.ID, "error", err)
		return nil, err
	}

	return &IntentResult{OrderNumber: orderNumber, ClientSecret: intent.ClientSecret}, nil
}

func (o *Orchestrator) persistOrder(ctx context.Context, orderNumber string, in CheckoutInput, cart *preparedCart, paymentRef string) error {
	_, err := store.CreateOrder(ctx, o.db, store.CreateOrderParams{
		OrderNumber:    orderNumber,
		CustomerEmail:  strings.ToLower(strings.TrimSpace(in.CustomerEmail)),
		DeliveryOption: deliveryOrDefault(in.DeliveryOption),
		PromoCode:      cart.promoCode,
		PaymentRef:     paymentRef,
		Subtotal:       cart.totals.Subtotal,
		Shipping:       cart.totals.Shipping,
		Tax:            cart.totals.Tax,
		Discount:       cart.totals.Discount,
		Total:          cart.totals.Total,
		ShippingName:   in.ShippingName,
		ShippingLine1:  in.ShippingLine1,
		ShippingLine2:  in.ShippingLine2,
		ShippingCity:   in.ShippingCity,
		ShippingPost:   in.ShippingPostcode,
		Lines:          cart.lines,
	})
	return err
}

func deliveryOrDefault(option string) string {
	switch option {
	case models.DeliveryExpress, models.DeliveryNextDay:
		return option
	default:
		return models.DeliveryStandard
	}
}

// HandleWebhookEvent applies a verified provider event to the order state
// machine. Unknown event types are acknowledged without effect.
func (o *Orchestrator) HandleWebhookEvent(ctx context.Context, event *payment.Event) error {
	switch event.Type {
	case "checkout.session.completed", "payment_intent.succeeded":
		return o.handlePaymentSucceeded(ctx, event)
	case "checkout.session.expired", "payment_intent.payment_failed":
		return o.handlePaymentFailed(ctx, event)
	case "charge.refunded":
		return o.handleRefund(ctx, event)
	default:
		o.logger.Info("ignoring webhook event", "event_id", event.ID, "type", event.Type)
		return nil
	}
}

func (o *Orchestrator) handlePaymentSucceeded(ctx context.Context, event *payment.Event) error {
	orderNumber := orderNumberFromEvent(event)
	if orderNumber == "" {
		o.logger.Warn("webhook event without order reference", "event_id", event.ID, "type", event.Type)
		return nil
	}

	var order *models.Order
	var transitioned bool

	err := database.WithRetry(ctx, o.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, transitioned, err = store.MarkOrderPaid(ctx, tx, orderNumber)
		if err != nil || !transitioned {
			return err
		}

		items, err := store.GetOrderItemsTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		for _, item := range items {
			movement, err := inventory.RecordSale(ctx, tx, item.VariantID, item.Quantity, order.OrderNumber)
			if err != nil {
				return err
			}
			if movement.QuantityChange != -item.Quantity {
				o.logger.Warn("stock bottomed out during sale",
					"order_number", order.OrderNumber,
					"variant_id", item.VariantID,
					"requested", item.Quantity,
					"applied", -movement.QuantityChange)
			}
		}

		if order.PromoCode != "" {
			if err := store.RedeemPromoCode(ctx, tx, order.PromoCode); err != nil {
				// The payment is already captured; an exhausted code at
				// this point is recorded but must not fail the order.
				if errors.Is(err, database.ErrPromoExhausted) {
					o.logger.Warn("promo code exhausted at redemption",
						"order_number", order.OrderNumber, "code", order.PromoCode)
					return nil
				}
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if !transitioned {
		o.logger.Info("webhook replay: order already settled", "order_number", orderNumber, "event_id", event.ID)
		return nil
	}

	o.logger.Info("order paid", "order_number", orderNumber, "event_id", event.ID)
	o.publish(ctx, events.TypeOrderPaid, order)
	return nil
}

func (o *Orchestrator) handlePaymentFailed(ctx context.Context, event *payment.Event) error {
	orderNumber := orderNumberFromEvent(event)
	if orderNumber == "" {
		o.logger.Warn("webhook event without order reference", "event_id", event.ID, "type", event.Type)
		return nil
	}

	var order *models.Order
	var transitioned bool

	err := database.WithRetry(ctx, o.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, transitioned, err = store.CancelPendingOrder(ctx, tx, orderNumber)
		return err
	})
	if err != nil {
		return err
	}

	if !transitioned {
		return nil
	}

	o.logger.Info("order cancelled", "order_number", orderNumber, "type", event.Type)
	o.publish(ctx, events.TypeOrderCancelled, order)
	return nil
}

func (o *Orchestrator) handleRefund(ctx context.Context, event *payment.Event) error {
	orderNumber := orderNumberFromEvent(event)
	if orderNumber == "" {
		o.logger.Warn("webhook event without order reference", "event_id", event.ID, "type", event.Type)
		return nil
	}

	var order *models.Order
	var transitioned bool

	err := database.WithRetry(ctx, o.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, transitioned, err = store.RefundPaidOrder(ctx, tx, orderNumber)
		if err != nil || !transitioned {
			return err
		}

		items, err := store.GetOrderItemsTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		for _, item := range items {
			if _, err := inventory.RecordReturn(ctx, tx, item.VariantID, item.Quantity, order.OrderNumber); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if !transitioned {
		return nil
	}

	o.logger.Info("order refunded", "order_number", orderNumber, "event_id", event.ID)
	o.publish(ctx, events.TypeOrderRefunded, order)
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, order *models.Order) {
	if o.publisher == nil || order == nil {
		return
	}

	err := o.publisher.PublishOrderEvent(ctx, events.OrderEvent{
		Type:          eventType,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		TotalPence:    pricing.Pence(order.Total),
	})
	if err != nil {
		o.logger.Error("publish order event", "order_number", order.OrderNumber, "error", err)
	}
}

// orderNumberFromEvent digs the order reference out of the event object:
// sessions carry it as client_reference_id, intents and charges in
// metadata.
func orderNumberFromEvent(event *payment.Event) string {
	var object struct {
		ClientReferenceID string `json:"client_reference_id"`
		Metadata          struct {
			OrderNumber string `json:"order_number"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		return ""
	}

	if object.ClientReferenceID != "" {
		return object.ClientReferenceID
	}
	return object.Metadata.OrderNumber
}

func recallResult[T any](ctx context.Context, idem IdempotencyStore, scope, key string) (*T, error) {
	if idem == nil || key == "" {
		return nil, nil
	}

	if value, ok, err := idem.Recall(ctx, scope, key); err == nil && ok {
		result := new(T)
		if json.Unmarshal([]byte(value), result) == nil {
			return result, nil
		}
	}

	ok, err := idem.TryLock(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDuplicateCheckout
	}
	return nil, nil
}

func (o *Orchestrator) releaseLock(ctx context.Context, scope, key string) {
	if o.idem == nil || key == "" {
		return
	}
	if err := o.idem.Release(ctx, scope, key); err != nil {
		o.logger.Warn("release idempotency lock", "scope", scope, "error", err)
	}
}

func (o *Orchestrator) rememberResult(ctx context.Context, scope, key string, result any) {
	if o.idem == nil || key == "" {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.idem.Remember(ctx, scope, key, string(data)); err != nil {
		o.logger.Warn("remember idempotent result", "scope", scope, "error", err)
	}
}
