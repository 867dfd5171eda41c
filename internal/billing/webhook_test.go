package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func signPayload(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	good := signPayload(payload, "whsec", now)
	if !VerifySignature(payload, good, "whsec", now) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(payload, good, "other", now) {
		t.Fatal("signature accepted with wrong secret")
	}
	if VerifySignature([]byte("tampered"), good, "whsec", now) {
		t.Fatal("signature accepted for tampered payload")
	}
	stale := signPayload(payload, "whsec", now.Add(-time.Hour))
	if VerifySignature(payload, stale, "whsec", now) {
		t.Fatal("stale timestamp accepted")
	}
	if VerifySignature(payload, "garbage", "whsec", now) {
		t.Fatal("malformed header accepted")
	}
}

func postWebhook(t *testing.T, h http.HandlerFunc, payload, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler(t *testing.T) {
	cache := newTestCache(t)
	syncer := NewSyncer(cache, &fakeSource{snap: &Snapshot{Status: "active"}})
	h := WebhookHandler(syncer, "whsec")

	tracked := `{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{"customer":"cus_9"}}}`

	// Missing signature.
	if rec := postWebhook(t, h, tracked, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing signature: status %d, want 400", rec.Code)
	}

	// Bad signature.
	if rec := postWebhook(t, h, tracked, "t=1,v1=deadbeef"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad signature: status %d, want 400", rec.Code)
	}

	// Untracked event type is acknowledged without a sync.
	untracked := `{"id":"evt_2","type":"charge.refunded","data":{"object":{"customer":"cus_9"}}}`
	rec := postWebhook(t, h, untracked, signPayload([]byte(untracked), "whsec", time.Now()))
	if rec.Code != http.StatusOK || rec.Body.String() != "received" {
		t.Fatalf("untracked event: status %d body %q", rec.Code, rec.Body.String())
	}

	// Tracked event triggers a background sync.
	rec = postWebhook(t, h, tracked, signPayload([]byte(tracked), "whsec", time.Now()))
	if rec.Code != http.StatusOK {
		t.Fatalf("tracked event: status %d, want 200", rec.Code)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := cache.GetSnapshot(t.Context(), "cus_9")
		if err == nil && snap != nil && snap.Status == "active" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background sync never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Tracked event without a customer id is a client error.
	noCustomer := `{"id":"evt_3","type":"invoice.paid","data":{"object":{}}}`
	rec = postWebhook(t, h, noCustomer, signPayload([]byte(noCustomer), "whsec", time.Now()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no customer: status %d, want 400", rec.Code)
	}
}
