package entitlement

import (
	"fmt"
	"time"
)

// Entitlement is the per-user subscription state aggregate. It records the
// tier, its validity window, trial flags and the external billing provider
// identifiers. EXPIRED is never stored: expiry is detected lazily and
// collapsed to free.
type Entitlement struct {
	id                      uint
	userID                  uint
	tier                    Tier
	subscriptionStart       *time.Time
	subscriptionEnd         *time.Time
	externalCustomerID      string
	externalSubscriptionID  string
	trialEndsAt             *time.Time
	trialActivated          bool
	cancelledSubscriptionID string
	lastEventAt             *time.Time
	version                 int
	createdAt               time.Time
	updatedAt               time.Time
}

// NewEntitlement creates the initial free entitlement for a user. It is
// created once at registration and never deleted, only transitioned.
func NewEntitlement(userID uint) (*Entitlement, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user ID is required")
	}

	now := time.Now().UTC()
	return &Entitlement{
		userID:    userID,
		tier:      TierFree,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructEntitlement rebuilds an entitlement from persistence.
func ReconstructEntitlement(
	id, userID uint,
	tier Tier,
	subscriptionStart, subscriptionEnd *time.Time,
	externalCustomerID, externalSubscriptionID string,
	trialEndsAt *time.Time,
	trialActivated bool,
	cancelledSubscriptionID string,
	lastEventAt *time.Time,
	version int,
	createdAt, updatedAt time.Time,
) (*Entitlement, error) {
	if id == 0 {
		return nil, fmt.Errorf("entitlement ID cannot be zero")
	}
	if userID == 0 {
		return nil, fmt.Errorf("user ID is required")
	}
	if !validTiers[tier] {
		return nil, fmt.Errorf("invalid tier: %s", tier)
	}

	return &Entitlement{
		id:                      id,
		userID:                  userID,
		tier:                    tier,
		subscriptionStart:       subscriptionStart,
		subscriptionEnd:         subscriptionEnd,
		externalCustomerID:      externalCustomerID,
		externalSubscriptionID:  externalSubscriptionID,
		trialEndsAt:             trialEndsAt,
		trialActivated:          trialActivated,
		cancelledSubscriptionID: cancelledSubscriptionID,
		lastEventAt:             lastEventAt,
		version:                 version,
		createdAt:               createdAt,
		updatedAt:               updatedAt,
	}, nil
}

func (e *Entitlement) ID() uint                         { return e.id }
func (e *Entitlement) UserID() uint                     { return e.userID }
func (e *Entitlement) Tier() Tier                       { return e.tier }
func (e *Entitlement) SubscriptionStart() *time.Time    { return e.subscriptionStart }
func (e *Entitlement) SubscriptionEnd() *time.Time      { return e.subscriptionEnd }
func (e *Entitlement) ExternalCustomerID() string       { return e.externalCustomerID }
func (e *Entitlement) ExternalSubscriptionID() string   { return e.externalSubscriptionID }
func (e *Entitlement) TrialEndsAt() *time.Time          { return e.trialEndsAt }
func (e *Entitlement) TrialActivated() bool             { return e.trialActivated }
func (e *Entitlement) CancelledSubscriptionID() string  { return e.cancelledSubscriptionID }
func (e *Entitlement) LastEventAt() *time.Time          { return e.lastEventAt }
func (e *Entitlement) Version() int                     { return e.version }
func (e *Entitlement) CreatedAt() time.Time             { return e.createdAt }
func (e *Entitlement) UpdatedAt() time.Time             { return e.updatedAt }

// SetID sets the entitlement ID (only for persistence layer use)
func (e *Entitlement) SetID(id uint) error {
	if e.id != 0 {
		return fmt.Errorf("entitlement ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("entitlement ID cannot be zero")
	}
	e.id = id
	return nil
}

// Limits returns the tier policy for the current tier.
func (e *Entitlement) Limits() TierLimits {
	return LimitsFor(e.tier)
}

// IsExpired reports whether the subscription window has lapsed.
func (e *Entitlement) IsExpired(now time.Time) bool {
	return e.tier.IsPaid() && e.subscriptionEnd != nil && now.After(*e.subscriptionEnd)
}

// TrialEligible reports whether the user may still receive a trial. The
// trialActivated flag is monotone: once a trial has been granted it never
// becomes eligible again.
func (e *Entitlement) TrialEligible() bool {
	return !e.trialActivated
}

// checkEvent enforces the transition authority rule: whichever observer
// (synchronous verify or webhook) applies a newer provider event first wins,
// and a cancelled external subscription id is terminal.
func (e *Entitlement) checkEvent(externalSubscriptionID string, eventAt time.Time) error {
	if externalSubscriptionID != "" && externalSubscriptionID == e.cancelledSubscriptionID {
		return ErrSubscriptionTerminated
	}
	if e.lastEventAt != nil && !eventAt.After(*e.lastEventAt) {
		return ErrStaleEvent
	}
	return nil
}

func (e *Entitlement) touch(eventAt time.Time) {
	at := eventAt
	e.lastEventAt = &at
	e.updatedAt = time.Now().UTC()
	e.version++
}

// StartTrial transitions free -> trial from a verified checkout whose
// provider subscription is in trialing status.
func (e *Entitlement) StartTrial(customerID, subscriptionID string, trialEnd, eventAt time.Time) error {
	if err := e.checkEvent(subscriptionID, eventAt); err != nil {
		return err
	}
	if e.tier == TierPremium {
		return ErrAlreadyPremium
	}
	if subscriptionID == "" {
		return fmt.Errorf("external subscription ID is required")
	}

	start := eventAt
	end := trialEnd
	e.tier = TierTrial
	e.subscriptionStart = &start
	e.subscriptionEnd = &end
	e.trialEndsAt = &end
	e.trialActivated = true
	e.externalCustomerID = customerID
	e.externalSubscriptionID = subscriptionID
	e.touch(eventAt)

	return nil
}

// ActivatePremium transitions free/trial -> premium (checkout verified or
// webhook payment success with provider status active). A trial converting
// to paid clears trialEndsAt.
func (e *Entitlement) ActivatePremium(customerID, subscriptionID string, periodEnd, eventAt time.Time) error {
	if err := e.checkEvent(subscriptionID, eventAt); err != nil {
		return err
	}
	if subscriptionID == "" {
		return fmt.Errorf("external subscription ID is required")
	}

	start := eventAt
	end := periodEnd
	if e.subscriptionStart != nil && e.tier.IsPaid() {
		start = *e.subscriptionStart
	}
	e.tier = TierPremium
	e.subscriptionStart = &start
	e.subscriptionEnd = &end
	e.trialEndsAt = nil
	e.externalCustomerID = customerID
	e.externalSubscriptionID = subscriptionID
	e.touch(eventAt)

	return nil
}

// Cancel transitions trial/premium -> free in response to an explicit cancel
// or a subscription.deleted webhook. The external subscription id becomes
// terminal: a stale "active" event for the same id must not resurrect it.
func (e *Entitlement) Cancel(eventAt time.Time) error {
	if e.tier == TierFree {
		return nil
	}
	if e.lastEventAt != nil && !eventAt.After(*e.lastEventAt) {
		return ErrStaleEvent
	}

	if e.externalSubscriptionID != "" {
		e.cancelledSubscriptionID = e.externalSubscriptionID
	}
	e.tier = TierFree
	e.subscriptionStart = nil
	e.subscriptionEnd = nil
	e.trialEndsAt = nil
	e.externalSubscriptionID = ""
	e.touch(eventAt)

	return nil
}

// Renew extends a premium subscription by one calendar month from the
// current end, or from now when the previous window already lapsed. Used for
// invoice.payment_succeeded renewal events.
func (e *Entitlement) Renew(newEnd, eventAt time.Time) error {
	if err := e.checkEvent(e.externalSubscriptionID, eventAt); err != nil {
		return err
	}
	if e.tier != TierPremium {
		return fmt.Errorf("cannot renew subscription with tier %s", e.tier)
	}
	if e.subscriptionEnd != nil && newEnd.Before(*e.subscriptionEnd) {
		return fmt.Errorf("new end date must be after current end date")
	}

	end := newEnd
	e.subscriptionEnd = &end
	e.touch(eventAt)

	return nil
}

// Validate performs domain-level validation.
func (e *Entitlement) Validate() error {
	if e.userID == 0 {
		return fmt.Errorf("user ID is required")
	}
	if !validTiers[e.tier] {
		return fmt.Errorf("invalid tier: %s", e.tier)
	}
	// subscriptionEnd == nil exactly when tier == free
	if (e.subscriptionEnd == nil) != (e.tier == TierFree) {
		return fmt.Errorf("subscription end must be set for paid tiers and empty for free")
	}
	return nil
}
