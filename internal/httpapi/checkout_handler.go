package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/httpapi/middleware"
	"github.com/safar/go-storefront/internal/payment"
)

type checkoutRequest struct {
	CustomerEmail  string              `json:"customer_email" binding:"required,email"`
	DeliveryOption string              `json:"delivery_option"`
	PromoCode      string              `json:"promo_code"`
	Items          []checkout.CartLine `json:"items" binding:"required"`
	Shipping       struct {
		Name     string `json:"name"`
		Line1    string `json:"line1"`
		Line2    string `json:"line2"`
		City     string `json:"city"`
		Postcode string `json:"postcode"`
	} `json:"shipping_address"`
}

func (r *checkoutRequest) toInput(idempotencyKey string) checkout.CheckoutInput {
	return checkout.CheckoutInput{
		CustomerEmail:    r.CustomerEmail,
		DeliveryOption:   r.DeliveryOption,
		PromoCode:        r.PromoCode,
		IdempotencyKey:   idempotencyKey,
		Lines:            r.Items,
		ShippingName:     r.Shipping.Name,
		ShippingLine1:    r.Shipping.Line1,
		ShippingLine2:    r.Shipping.Line2,
		ShippingCity:     r.Shipping.City,
		ShippingPostcode: r.Shipping.Postcode,
	}
}

// Checkout turns a cart into a hosted payment session.
func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	result, err := h.orchestrator.Checkout(ctx, req.toInput(c.GetHeader("X-Idempotency-Key")))
	if err != nil {
		middleware.CountCheckout(checkoutOutcome(err))
		h.respondDomainError(c, err)
		return
	}

	middleware.CountCheckout("accepted")
	c.JSON(http.StatusCreated, result)
}

// CreatePaymentIntent is the embedded payment form flow; the client
// confirms the intent with the publishable key and the returned secret.
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	result, err := h.orchestrator.CreatePaymentIntent(ctx, req.toInput(c.GetHeader("X-Idempotency-Key")))
	if err != nil {
		middleware.CountCheckout(checkoutOutcome(err))
		h.respondDomainError(c, err)
		return
	}

	middleware.CountCheckout("accepted")
	c.JSON(http.StatusCreated, result)
}

func checkoutOutcome(err error) string {
	var validationErr checkout.ValidationError
	var stockErr *checkout.InsufficientStockError
	var promoErr *checkout.PromoRejectedError
	var providerErr *payment.ProviderError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &stockErr), errors.As(err, &promoErr):
		return "rejected"
	case errors.As(err, &providerErr):
		return "provider_error"
	default:
		return "error"
	}
}
