package entitlement

import (
	"context"
	"time"
)

// Repository persists entitlements. Save is conditional on the aggregate
// version so concurrent webhook and verify writers cannot clobber each other;
// DowngradeExpired is a single conditional UPDATE, never read-then-write.
type Repository interface {
	// GetByUserID returns the user's entitlement, or ErrNotFound.
	GetByUserID(ctx context.Context, userID uint) (*Entitlement, error)
	GetByExternalSubscriptionID(ctx context.Context, subscriptionID string) (*Entitlement, error)
	// GetByExternalCustomerID maps provider webhooks back to a user after a
	// local downgrade cleared the subscription id. The customer id survives
	// every transition.
	GetByExternalCustomerID(ctx context.Context, customerID string) (*Entitlement, error)
	Create(ctx context.Context, ent *Entitlement) error
	Save(ctx context.Context, ent *Entitlement) error
	// DowngradeExpired atomically collapses a lapsed trial/premium row to
	// free. Returns true when a row was downgraded by this call.
	DowngradeExpired(ctx context.Context, userID uint, now time.Time) (bool, error)
}
