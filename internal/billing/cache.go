// Package billing mirrors the payment processor's subscription state into a
// Redis key-value cache. The mirror is best-effort: one fetch, one store, no
// reconciliation and no retry.
package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StatusNone marks a customer with no subscription on record.
const StatusNone = "none"

// PaymentMethod is the card summary kept alongside a subscription.
type PaymentMethod struct {
	Brand string `json:"brand"` // e.g. "visa", "mastercard"
	Last4 string `json:"last4"`
}

// Snapshot is the cached view of a customer's newest subscription.
type Snapshot struct {
	SubscriptionID     string         `json:"subscriptionId,omitempty"`
	Status             string         `json:"status"`
	PriceID            string         `json:"priceId,omitempty"`
	CurrentPeriodStart int64          `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   int64          `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd  bool           `json:"cancelAtPeriodEnd,omitempty"`
	PaymentMethod      *PaymentMethod `json:"paymentMethod,omitempty"`
}

// Premium reports whether the snapshot entitles the customer to paid features.
func (s Snapshot) Premium() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// Cache stores customer-id mappings and subscription snapshots in Redis.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func userKey(userID uint) string {
	return fmt.Sprintf("stripe:user:%d", userID)
}

func customerKey(customerID string) string {
	return "stripe:customer:" + customerID
}

// SetCustomerID records the processor customer id for a user.
func (c *Cache) SetCustomerID(ctx context.Context, userID uint, customerID string) error {
	return c.client.Set(ctx, userKey(userID), customerID, 0).Err()
}

// CustomerID returns the processor customer id for a user, or "" when the
// user has never been billed.
func (c *Cache) CustomerID(ctx context.Context, userID uint) (string, error) {
	val, err := c.client.Get(ctx, userKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetSnapshot stores the subscription snapshot for a customer.
func (c *Cache) SetSnapshot(ctx context.Context, customerID string, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("billing: marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, customerKey(customerID), data, 0).Err()
}

// GetSnapshot returns the cached snapshot, or nil when none is cached.
func (c *Cache) GetSnapshot(ctx context.Context, customerID string) (*Snapshot, error) {
	val, err := c.client.Get(ctx, customerKey(customerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("billing: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
