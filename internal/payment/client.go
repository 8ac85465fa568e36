// Package payment is a thin client for the hosted payment provider. The
// client is constructed once at startup and injected into the checkout
// layer; it holds no package-level state.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/safar/go-storefront/internal/config"
)

type Client struct {
	baseURL    string
	secretKey  string
	currency   string
	successURL string
	cancelURL  string
	httpClient *http.Client
}

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		currency:   cfg.Currency,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type LineItem struct {
	Name        string
	AmountPence int64
	Quantity    int
}

type SessionParams struct {
	OrderNumber   string
	CustomerEmail string
	LineItems     []LineItem
	ShippingPence int64
	TaxPence      int64
	DiscountPence int64
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type IntentParams struct {
	OrderNumber   string
	CustomerEmail string
	AmountPence   int64
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// ProviderError is a rejection from the payment provider, carrying its
// HTTP status so the boundary can decide between 400 and 502.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider error (%d): %s", e.StatusCode, e.Message)
}

// CreateCheckoutSession creates a hosted checkout session. The order
// number travels as client_reference_id and as payment intent metadata so
// every downstream webhook object can be traced back to the order.
func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", p.OrderNumber)
	form.Set("customer_email", p.CustomerEmail)
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	form.Set("payment_intent_data[metadata][order_number]", p.OrderNumber)

	idx := 0
	addLine := func(name string, pence int64, quantity int) {
		if pence == 0 {
			return
		}
		prefix := fmt.Sprintf("line_items[%d]", idx)
		form.Set(prefix+"[price_data][currency]", c.currency)
		form.Set(prefix+"[price_data][product_data][name]", name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(pence, 10))
		form.Set(prefix+"[quantity]", strconv.Itoa(quantity))
		idx++
	}

	for _, item := range p.LineItems {
		addLine(item.Name, item.AmountPence, item.Quantity)
	}
	addLine("Shipping", p.ShippingPence, 1)
	addLine("VAT", p.TaxPence, 1)
	if p.DiscountPence > 0 {
		addLine("Discount", -p.DiscountPence, 1)
	}

	session := &Session{}
	if err := c.post(ctx, "/v1/checkout/sessions", form, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.AmountPence, 10))
	form.Set("currency", c.currency)
	form.Set("receipt_email", p.CustomerEmail)
	form.Set("metadata[order_number]", p.OrderNumber)
	form.Set("automatic_payment_methods[enabled]", "true")

	intent := &Intent{}
	if err := c.post(ctx, "/v1/payment_intents", form, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call payment provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		message := "request rejected"
		if json.Unmarshal(body, &errBody) == nil && errBody.Error.Message != "" {
			message = errBody.Error.Message
		}
		return &ProviderError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
