package payment

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "whsec_test_secret"

func TestVerifySignatureValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	if err := VerifySignature(payload, header, testSecret, now, DefaultTolerance); err != nil {
		t.Errorf("Expected valid signature, got: %v", err)
	}
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_other", now)

	err := VerifySignature(payload, header, testSecret, now, DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got: %v", err)
	}
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	err := VerifySignature([]byte(`{"id":"evt_2"}`), header, testSecret, now, DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got: %v", err)
	}
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signedAt := time.Now().Add(-10 * time.Minute)
	header := SignPayload(payload, testSecret, signedAt)

	err := VerifySignature(payload, header, testSecret, time.Now(), DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for stale timestamp, got: %v", err)
	}
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	for _, header := range []string{"", "garbage", "t=abc,v1=deadbeef", "v1=deadbeef", "t=1714000000"} {
		err := VerifySignature(payload, header, testSecret, time.Now(), DefaultTolerance)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("Header %q: expected ErrInvalidSignature, got: %v", header, err)
		}
	}
}

func TestVerifySignatureMultipleSignatures(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now) + ",v1=0000000000000000"

	if err := VerifySignature(payload, header, testSecret, now, DefaultTolerance); err != nil {
		t.Errorf("Any matching v1 entry should verify, got: %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_123","client_reference_id":"ORD-1"}}}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	event, err := ParseEvent(payload, header, testSecret, now)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.Type != "checkout.session.completed" {
		t.Errorf("Unexpected type: %s", event.Type)
	}
	if event.ID != "evt_1" {
		t.Errorf("Unexpected id: %s", event.ID)
	}
	if len(event.Data.Object) == 0 {
		t.Error("Expected data.object to be populated")
	}
}

func TestParseEventRejectsBadSignatureBeforeDecoding(t *testing.T) {
	payload := []byte(`not even json`)

	_, err := ParseEvent(payload, "t=1,v1=bad", testSecret, time.Now())
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature, got: %v", err)
	}
}

func TestParseEventMissingType(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, testSecret, now)

	if _, err := ParseEvent(payload, header, testSecret, now); err == nil {
		t.Error("Expected error for event without type")
	}
}
