package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SubscriptionSource fetches the newest subscription state for a customer.
// It returns nil when the customer has no subscriptions at all.
type SubscriptionSource interface {
	LatestSubscription(ctx context.Context, customerID string) (*Snapshot, error)
}

const defaultStripeBaseURL = "https://api.stripe.com"

// RESTSource reads subscriptions from the processor's REST API. The wire
// protocol itself is the processor's concern; this client only extracts the
// fields the Snapshot carries.
type RESTSource struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewRESTSource(apiKey string) *RESTSource {
	return &RESTSource{
		apiKey:  apiKey,
		baseURL: defaultStripeBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type subscriptionList struct {
	Data []struct {
		ID                 string `json:"id"`
		Status             string `json:"status"`
		CurrentPeriodStart int64  `json:"current_period_start"`
		CurrentPeriodEnd   int64  `json:"current_period_end"`
		CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
		Items              struct {
			Data []struct {
				Price struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
		DefaultPaymentMethod *struct {
			Card *struct {
				Brand string `json:"brand"`
				Last4 string `json:"last4"`
			} `json:"card"`
		} `json:"default_payment_method"`
	} `json:"data"`
}

func (s *RESTSource) LatestSubscription(ctx context.Context, customerID string) (*Snapshot, error) {
	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("limit", "1")
	q.Set("status", "all")
	q.Add("expand[]", "data.default_payment_method")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/subscriptions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("billing: subscription list returned %d", resp.StatusCode)
	}

	var list subscriptionList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("billing: decode subscription list: %w", err)
	}
	if len(list.Data) == 0 {
		return nil, nil
	}

	sub := list.Data[0]
	snap := &Snapshot{
		SubscriptionID:     sub.ID,
		Status:             sub.Status,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if len(sub.Items.Data) > 0 {
		snap.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.DefaultPaymentMethod != nil && sub.DefaultPaymentMethod.Card != nil {
		snap.PaymentMethod = &PaymentMethod{
			Brand: sub.DefaultPaymentMethod.Card.Brand,
			Last4: sub.DefaultPaymentMethod.Card.Last4,
		}
	}
	return snap, nil
}
