package billing

import (
	"context"
	"log"

	"github.com/corvuslabs/notebase/internal/logging"
)

// Pay levels derived from the cached snapshot.
const (
	PayLevelFree    = 0
	PayLevelPremium = 1
)

// Syncer mirrors remote subscription state into the cache.
type Syncer struct {
	cache  *Cache
	source SubscriptionSource
}

func NewSyncer(cache *Cache, source SubscriptionSource) *Syncer {
	return &Syncer{cache: cache, source: source}
}

// Sync fetches the customer's newest subscription and stores it. A customer
// without subscriptions is cached with status "none" so repeated lookups stay
// cheap.
func (s *Syncer) Sync(ctx context.Context, customerID string) (Snapshot, error) {
	sub, err := s.source.LatestSubscription(ctx, customerID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Status: StatusNone}
	if sub != nil {
		snap = *sub
	}
	if err := s.cache.SetSnapshot(ctx, customerID, snap); err != nil {
		return Snapshot{}, err
	}
	if rid := logging.GetRequestID(ctx); rid != "" {
		log.Printf("[%s] billing: synced customer %s (status=%s)", rid, customerID, snap.Status)
	}
	return snap, nil
}

// PayLevel reads the cached entitlement for a user. Unknown customers and
// missing snapshots are free tier.
func (s *Syncer) PayLevel(ctx context.Context, userID uint) (int, error) {
	customerID, err := s.cache.CustomerID(ctx, userID)
	if err != nil {
		return PayLevelFree, err
	}
	if customerID == "" {
		return PayLevelFree, nil
	}
	snap, err := s.cache.GetSnapshot(ctx, customerID)
	if err != nil {
		return PayLevelFree, err
	}
	if snap != nil && snap.Premium() {
		return PayLevelPremium, nil
	}
	return PayLevelFree, nil
}
