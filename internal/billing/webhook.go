package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/corvuslabs/notebase/internal/logging"
	"github.com/corvuslabs/notebase/internal/metrics"
)

// signatureTolerance bounds the accepted clock skew on webhook timestamps.
const signatureTolerance = 5 * time.Minute

// allowedEvents is the subscription-lifecycle subset worth a cache sync.
// Everything else is acknowledged and ignored.
var allowedEvents = map[string]bool{
	"checkout.session.completed":                      true,
	"customer.subscription.created":                   true,
	"customer.subscription.updated":                   true,
	"customer.subscription.deleted":                   true,
	"customer.subscription.paused":                    true,
	"customer.subscription.resumed":                   true,
	"customer.subscription.pending_update_applied":    true,
	"customer.subscription.pending_update_expired":    true,
	"customer.subscription.trial_will_end":            true,
	"invoice.paid":                                    true,
	"invoice.payment_failed":                          true,
	"invoice.payment_action_required":                 true,
	"invoice.upcoming":                                true,
	"invoice.marked_uncollectible":                    true,
	"invoice.payment_succeeded":                       true,
	"payment_intent.succeeded":                        true,
	"payment_intent.payment_failed":                   true,
	"payment_intent.canceled":                         true,
}

// VerifySignature checks a "t=<ts>,v1=<hex hmac>" signature header against
// the payload. The signed message is "<ts>.<payload>".
func VerifySignature(payload []byte, header, secret string, now time.Time) bool {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if d := now.Sub(time.Unix(unix, 0)); d > signatureTolerance || d < -signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			Customer string `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

// WebhookHandler verifies the processor's signature, filters to tracked
// events, and kicks off a background cache sync for the event's customer.
// The response never waits for the sync.
func WebhookHandler(syncer *Syncer, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}

		signature := r.Header.Get("Stripe-Signature")
		if signature == "" {
			http.Error(w, "No signature", http.StatusBadRequest)
			return
		}
		if secret != "" && !VerifySignature(payload, signature, secret, time.Now()) {
			metrics.WebhookEvents.WithLabelValues("bad_signature").Inc()
			http.Error(w, "Invalid signature", http.StatusBadRequest)
			return
		}

		var event webhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			http.Error(w, "malformed event", http.StatusBadRequest)
			return
		}

		if !allowedEvents[event.Type] {
			metrics.WebhookEvents.WithLabelValues("ignored").Inc()
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("received"))
			return
		}
		if event.Data.Object.Customer == "" {
			metrics.WebhookEvents.WithLabelValues("no_customer").Inc()
			http.Error(w, "event has no customer", http.StatusBadRequest)
			return
		}

		metrics.WebhookEvents.WithLabelValues("synced").Inc()
		ctx := logging.WithRequestID(context.Background(), chimiddleware.GetReqID(r.Context()))
		customerID := event.Data.Object.Customer
		go func() {
			if _, err := syncer.Sync(ctx, customerID); err != nil {
				log.Printf("billing: background sync for %s failed: %v", customerID, err)
			}
		}()

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("received"))
	}
}

// SuccessHandler performs a synchronous best-effort sync for the signed-in
// caller after checkout completes.
func SuccessHandler(syncer *Syncer, cache *Cache, userIDFrom func(r *http.Request) (uint, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userIDFrom(r)
		if !ok {
			http.Error(w, "not login", http.StatusUnauthorized)
			return
		}
		customerID, err := cache.CustomerID(r.Context(), uid)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if customerID == "" {
			http.Error(w, "no record", http.StatusNotFound)
			return
		}
		if _, err := syncer.Sync(r.Context(), customerID); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
