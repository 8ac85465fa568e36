package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/httpapi/middleware"
	"github.com/safar/go-storefront/internal/payment"
)

const testWebhookSecret = "whsec_test_secret"

func newWebhookTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.DiscardHandler)
	orchestrator := checkout.NewOrchestrator(nil, nil, nil, nil, logger)
	handler := NewHandler(nil, orchestrator, testWebhookSecret)

	router := gin.New()
	router.Use(middleware.Logging(logger))
	router.POST("/webhook/stripe", handler.StripeWebhook)
	return router
}

func postWebhook(router *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	router := newWebhookTestRouter(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)

	cases := map[string]string{
		"missing header": "",
		"garbage header": "not-a-signature",
		"wrong secret":   payment.SignPayload(payload, "whsec_other", time.Now()),
		"stale":          payment.SignPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour)),
	}

	for name, signature := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postWebhook(router, payload, signature)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestStripeWebhookAcknowledgesUnknownEventType(t *testing.T) {
	router := newWebhookTestRouter(t)
	payload := []byte(`{"id":"evt_2","type":"customer.created","data":{"object":{}}}`)

	rec := postWebhook(router, payload, payment.SignPayload(payload, testWebhookSecret, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !body["received"] {
		t.Error("expected received: true")
	}
}

func TestStripeWebhookRejectsTamperedPayload(t *testing.T) {
	router := newWebhookTestRouter(t)
	payload := []byte(`{"id":"evt_3","type":"charge.refunded","data":{"object":{}}}`)
	signature := payment.SignPayload(payload, testWebhookSecret, time.Now())

	tampered := bytes.Replace(payload, []byte("evt_3"), []byte("evt_X"), 1)
	rec := postWebhook(router, tampered, signature)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
