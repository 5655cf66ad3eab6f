package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"captionly/internal/application/billing/gateway"
	"captionly/internal/domain/entitlement"
	"captionly/internal/domain/usage"
	"captionly/internal/infrastructure/cache"
	"captionly/internal/infrastructure/email"
	"captionly/internal/shared/biztime"
	"captionly/internal/shared/goroutine"
	"captionly/internal/shared/logger"
)

// SubscriptionStateApplier maps the provider's authoritative subscription
// status onto a user's entitlement. Both observers of provider state, the
// synchronous checkout verify and the async webhook, funnel through here so
// the transition rules live in exactly one place.
type SubscriptionStateApplier struct {
	entitlementRepo  entitlement.Repository
	ledgerRepo       usage.LedgerRepository
	entitlementCache cache.EntitlementCache
	emailSender      email.Sender
	logger           logger.Interface
}

func NewSubscriptionStateApplier(
	entitlementRepo entitlement.Repository,
	ledgerRepo usage.LedgerRepository,
	entitlementCache cache.EntitlementCache,
	emailSender email.Sender,
	logger logger.Interface,
) *SubscriptionStateApplier {
	return &SubscriptionStateApplier{
		entitlementRepo:  entitlementRepo,
		ledgerRepo:       ledgerRepo,
		entitlementCache: entitlementCache,
		emailSender:      emailSender,
		logger:           logger,
	}
}

// Apply transitions the user's entitlement to match the provider
// subscription. Stale events (older than the last applied one) and events for
// a cancelled subscription id are ignored without error: whichever observer
// got there first has already won.
func (a *SubscriptionStateApplier) Apply(ctx context.Context, userID uint, userEmail string, sub *gateway.Subscription, eventAt time.Time) error {
	ent, err := a.loadOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	versionBefore := ent.Version()

	var notify func() error

	switch sub.Status {
	case gateway.SubscriptionStatusTrialing:
		trialEnd := sub.CurrentPeriodEnd
		if sub.TrialEnd != nil {
			trialEnd = *sub.TrialEnd
		}
		err = ent.StartTrial(sub.CustomerID, sub.ID, trialEnd, eventAt)
		if userEmail != "" {
			days := int(time.Until(trialEnd).Hours() / 24)
			if days < 1 {
				days = 1
			}
			notify = func() error { return a.emailSender.SendTrialStarted(userEmail, days) }
		}

	case gateway.SubscriptionStatusActive:
		err = ent.ActivatePremium(sub.CustomerID, sub.ID, sub.CurrentPeriodEnd, eventAt)
		if userEmail != "" {
			notify = func() error { return a.emailSender.SendPremiumActivated(userEmail) }
		}

	case gateway.SubscriptionStatusPastDue:
		// provider retries payment on its own; entitlement stays as is
		a.logger.Infow("subscription past due, entitlement unchanged",
			"user_id", userID,
			"subscription_id", sub.ID,
		)
		return nil

	case gateway.SubscriptionStatusCanceled:
		err = ent.Cancel(eventAt)
		if userEmail != "" {
			notify = func() error { return a.emailSender.SendSubscriptionCancelled(userEmail) }
		}

	default:
		a.logger.Warnw("unknown subscription status ignored",
			"user_id", userID,
			"subscription_id", sub.ID,
			"status", sub.Status,
		)
		return nil
	}

	if a.isIgnorable(err) {
		a.logger.Infow("out-of-date subscription event ignored",
			"user_id", userID,
			"subscription_id", sub.ID,
			"status", sub.Status,
			"reason", err.Error(),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply subscription state: %w", err)
	}
	if ent.Version() == versionBefore {
		// cancelling an already-free row changes nothing
		return nil
	}

	if err := a.persist(ctx, ent); err != nil {
		return err
	}

	a.logger.Infow("entitlement updated from provider subscription",
		"user_id", userID,
		"subscription_id", sub.ID,
		"status", sub.Status,
		"tier", ent.Tier(),
	)

	a.sendNotification(notify)

	return nil
}

// ApplyToOwner applies a provider subscription to whichever user holds it.
// Used by webhook events that carry no user reference beyond the provider
// ids. Unknown subscriptions are ignored: the checkout completion event is
// the one that establishes the mapping.
func (a *SubscriptionStateApplier) ApplyToOwner(ctx context.Context, sub *gateway.Subscription, eventAt time.Time) error {
	ent, err := a.lookup(ctx, sub.ID, sub.CustomerID)
	if errors.Is(err, entitlement.ErrNotFound) {
		a.logger.Infow("subscription event for unknown subscription ignored",
			"subscription_id", sub.ID,
			"customer_id", sub.CustomerID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	return a.Apply(ctx, ent.UserID(), "", sub, eventAt)
}

// ApplyRenewal extends the subscription window after a recurring payment.
// The new end is one calendar month past the previous end, or past the event
// time when the previous window already lapsed. A row that was locally
// collapsed to free is restored to premium.
func (a *SubscriptionStateApplier) ApplyRenewal(ctx context.Context, subscriptionID, customerID string, eventAt time.Time) error {
	ent, err := a.lookup(ctx, subscriptionID, customerID)
	if errors.Is(err, entitlement.ErrNotFound) {
		a.logger.Infow("renewal for unknown subscription ignored",
			"subscription_id", subscriptionID,
			"customer_id", customerID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	if ent.Tier() == entitlement.TierPremium {
		anchor := eventAt
		if end := ent.SubscriptionEnd(); end != nil && end.After(eventAt) {
			anchor = *end
		}
		err = ent.Renew(biztime.AddCalendarMonth(anchor), eventAt)
	} else {
		// late renewal after a local expiry: the payment restores premium
		err = ent.ActivatePremium(customerID, subscriptionID, biztime.AddCalendarMonth(eventAt), eventAt)
	}

	if a.isIgnorable(err) {
		a.logger.Infow("out-of-date renewal event ignored",
			"user_id", ent.UserID(),
			"subscription_id", subscriptionID,
			"reason", err.Error(),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply renewal: %w", err)
	}

	if err := a.persist(ctx, ent); err != nil {
		return err
	}

	a.logger.Infow("subscription renewed",
		"user_id", ent.UserID(),
		"subscription_id", subscriptionID,
		"new_end", ent.SubscriptionEnd(),
	)

	return nil
}

// ApplyCancellationBySubscription handles a subscription.deleted webhook,
// which carries no user reference beyond the provider ids.
func (a *SubscriptionStateApplier) ApplyCancellationBySubscription(ctx context.Context, subscriptionID, customerID string, eventAt time.Time) error {
	ent, err := a.lookup(ctx, subscriptionID, customerID)
	if errors.Is(err, entitlement.ErrNotFound) {
		a.logger.Infow("cancellation for unknown subscription ignored",
			"subscription_id", subscriptionID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	versionBefore := ent.Version()
	err = ent.Cancel(eventAt)
	if a.isIgnorable(err) {
		a.logger.Infow("out-of-date cancellation event ignored",
			"user_id", ent.UserID(),
			"subscription_id", subscriptionID,
			"reason", err.Error(),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply cancellation: %w", err)
	}
	if ent.Version() == versionBefore {
		return nil
	}

	if err := a.persist(ctx, ent); err != nil {
		return err
	}

	a.logger.Infow("entitlement cancelled from provider event",
		"user_id", ent.UserID(),
		"subscription_id", subscriptionID,
	)

	return nil
}

func (a *SubscriptionStateApplier) loadOrCreate(ctx context.Context, userID uint) (*entitlement.Entitlement, error) {
	ent, err := a.entitlementRepo.GetByUserID(ctx, userID)
	if errors.Is(err, entitlement.ErrNotFound) {
		ent, err = entitlement.NewEntitlement(userID)
		if err != nil {
			return nil, err
		}
		if createErr := a.entitlementRepo.Create(ctx, ent); createErr != nil {
			if existing, getErr := a.entitlementRepo.GetByUserID(ctx, userID); getErr == nil {
				return existing, nil
			}
			return nil, fmt.Errorf("failed to create entitlement: %w", createErr)
		}
		return ent, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	return ent, nil
}

func (a *SubscriptionStateApplier) lookup(ctx context.Context, subscriptionID, customerID string) (*entitlement.Entitlement, error) {
	ent, err := a.entitlementRepo.GetByExternalSubscriptionID(ctx, subscriptionID)
	if err == nil {
		return ent, nil
	}
	if !errors.Is(err, entitlement.ErrNotFound) {
		return nil, err
	}
	if customerID == "" {
		return nil, entitlement.ErrNotFound
	}
	return a.entitlementRepo.GetByExternalCustomerID(ctx, customerID)
}

func (a *SubscriptionStateApplier) persist(ctx context.Context, ent *entitlement.Entitlement) error {
	if err := ent.Validate(); err != nil {
		return fmt.Errorf("entitlement failed validation: %w", err)
	}
	if err := a.entitlementRepo.Save(ctx, ent); err != nil {
		return fmt.Errorf("failed to save entitlement: %w", err)
	}

	period := usage.CurrentPeriod(biztime.NowUTC())
	if err := a.ledgerRepo.ResyncLimit(ctx, ent.UserID(), period, ent.Limits().MonthlyLimit); err != nil {
		a.logger.Warnw("failed to resync usage limit", "error", err, "user_id", ent.UserID())
	}

	if a.entitlementCache != nil {
		if err := a.entitlementCache.Invalidate(ctx, ent.UserID()); err != nil {
			a.logger.Warnw("failed to invalidate entitlement cache", "error", err, "user_id", ent.UserID())
		}
	}

	return nil
}

func (a *SubscriptionStateApplier) isIgnorable(err error) bool {
	return errors.Is(err, entitlement.ErrStaleEvent) || errors.Is(err, entitlement.ErrSubscriptionTerminated)
}

// NotifyPaymentFailed sends the dunning heads-up for a failed invoice.
// Entitlement is untouched; the provider keeps retrying on its own schedule.
func (a *SubscriptionStateApplier) NotifyPaymentFailed(userEmail string) {
	if userEmail == "" {
		return
	}
	a.sendNotification(func() error { return a.emailSender.SendPaymentFailed(userEmail) })
}

func (a *SubscriptionStateApplier) sendNotification(notify func() error) {
	if notify == nil || a.emailSender == nil {
		return
	}
	goroutine.SafeGo(a.logger, "entitlement-email", func() {
		if err := notify(); err != nil {
			a.logger.Warnw("failed to send entitlement email", "error", err)
		}
	})
}
