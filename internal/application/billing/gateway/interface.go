// Package gateway defines the billing provider boundary. The provider hosts
// checkout, owns the authoritative subscription status, and pushes webhook
// events; this interface is everything the application consumes from it.
package gateway

import (
	"context"
	"time"
)

// Provider-side subscription statuses.
const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Checkout session payment statuses.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
	PaymentStatusUnpaid            = "unpaid"
)

// Billing intervals accepted by CreateCheckoutSession.
const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

type BillingGateway interface {
	CreateCheckoutSession(ctx context.Context, req CreateSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	// CancelSubscription is best-effort cleanup; callers must not block local
	// downgrades on its failure.
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// VerifyWebhookSignature checks the signature header over the raw body
	// using the shared secret, in constant time.
	VerifyWebhookSignature(payload []byte, signatureHeader string) error
}

type CreateSessionRequest struct {
	UserID       uint
	Email        string
	Interval     string
	IncludeTrial bool
}

// CheckoutSession mirrors the provider's hosted checkout session object.
type CheckoutSession struct {
	ID                string
	URL               string
	Status            string
	PaymentStatus     string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string
	Metadata          map[string]string
	CreatedAt         time.Time
}

// Subscription mirrors the provider's subscription object; its Status is
// authoritative for tier transitions.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CurrentPeriodEnd  time.Time
	TrialEnd          *time.Time
	CancelAtPeriodEnd bool
}
