package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/safar/go-storefront/internal/config"
)

func testConfig(baseURL string) config.PaymentConfig {
	return config.PaymentConfig{
		SecretKey:  "sk_test_123",
		BaseURL:    baseURL,
		Currency:   "gbp",
		SuccessURL: "https://shop.example/success",
		CancelURL:  "https://shop.example/cancel",
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test_123" {
			t.Errorf("Unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Parse form: %v", err)
		}
		if got := r.PostForm.Get("client_reference_id"); got != "ORD-TEST1" {
			t.Errorf("Unexpected client_reference_id: %s", got)
		}
		if got := r.PostForm.Get("payment_intent_data[metadata][order_number]"); got != "ORD-TEST1" {
			t.Errorf("Order number missing from intent metadata: %s", got)
		}
		if got := r.PostForm.Get("line_items[0][price_data][unit_amount]"); got != "2499" {
			t.Errorf("Unexpected unit amount: %s", got)
		}
		if got := r.PostForm.Get("line_items[0][quantity]"); got != "2" {
			t.Errorf("Unexpected quantity: %s", got)
		}
		// Shipping then VAT as extra lines.
		if got := r.PostForm.Get("line_items[1][price_data][product_data][name]"); got != "Shipping" {
			t.Errorf("Unexpected second line: %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://pay.example/cs_test_1"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))

	session, err := client.CreateCheckoutSession(context.Background(), SessionParams{
		OrderNumber:   "ORD-TEST1",
		CustomerEmail: "shopper@example.com",
		LineItems:     []LineItem{{Name: "Oxford Shirt", AmountPence: 2499, Quantity: 2}},
		ShippingPence: 499,
		TaxPence:      1099,
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.ID != "cs_test_1" {
		t.Errorf("Unexpected session id: %s", session.ID)
	}
	if session.URL != "https://pay.example/cs_test_1" {
		t.Errorf("Unexpected session url: %s", session.URL)
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Parse form: %v", err)
		}
		if got := r.PostForm.Get("amount"); got != "6596" {
			t.Errorf("Unexpected amount: %s", got)
		}
		if got := r.PostForm.Get("currency"); got != "gbp" {
			t.Errorf("Unexpected currency: %s", got)
		}
		if got := r.PostForm.Get("metadata[order_number]"); got != "ORD-TEST2" {
			t.Errorf("Unexpected metadata: %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_test_1","client_secret":"pi_test_1_secret_abc"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))

	intent, err := client.CreatePaymentIntent(context.Background(), IntentParams{
		OrderNumber:   "ORD-TEST2",
		CustomerEmail: "shopper@example.com",
		AmountPence:   6596,
	})
	if err != nil {
		t.Fatalf("CreatePaymentIntent: %v", err)
	}
	if intent.ClientSecret != "pi_test_1_secret_abc" {
		t.Errorf("Unexpected client secret: %s", intent.ClientSecret)
	}
}

func TestProviderErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Amount must be at least 30 pence"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))

	_, err := client.CreatePaymentIntent(context.Background(), IntentParams{
		OrderNumber: "ORD-TEST3",
		AmountPence: 1,
	})

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got: %v", err)
	}
	if provErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Unexpected status: %d", provErr.StatusCode)
	}
	if provErr.Message != "Amount must be at least 30 pence" {
		t.Errorf("Unexpected message: %s", provErr.Message)
	}
}
