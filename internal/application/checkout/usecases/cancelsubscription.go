package usecases

import (
	"context"

	"captionly/internal/application/billing/gateway"
	billingUC "captionly/internal/application/billing/usecases"
	entitlementUC "captionly/internal/application/entitlement/usecases"
	"captionly/internal/domain/entitlement"
	"captionly/internal/shared/biztime"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

type CancelSubscriptionCommand struct {
	UserID uint
	Email  string
}

// CancelSubscriptionUseCase cancels the user's subscription immediately. The
// local downgrade is authoritative; the provider-side cancellation is
// best-effort cleanup and its failure never blocks the downgrade.
type CancelSubscriptionUseCase struct {
	reconcileExpiry *entitlementUC.ReconcileExpiryUseCase
	stateApplier    *billingUC.SubscriptionStateApplier
	billingGateway  gateway.BillingGateway
	logger          logger.Interface
}

func NewCancelSubscriptionUseCase(
	reconcileExpiry *entitlementUC.ReconcileExpiryUseCase,
	stateApplier *billingUC.SubscriptionStateApplier,
	billingGateway gateway.BillingGateway,
	logger logger.Interface,
) *CancelSubscriptionUseCase {
	return &CancelSubscriptionUseCase{
		reconcileExpiry: reconcileExpiry,
		stateApplier:    stateApplier,
		billingGateway:  billingGateway,
		logger:          logger,
	}
}

func (uc *CancelSubscriptionUseCase) Execute(ctx context.Context, cmd CancelSubscriptionCommand) error {
	ent, err := uc.reconcileExpiry.Execute(ctx, cmd.UserID)
	if err != nil {
		return err
	}

	if ent.Tier() == entitlement.TierFree {
		return apperrors.NewConflictError("no active subscription to cancel")
	}

	subscriptionID := ent.ExternalSubscriptionID()
	if subscriptionID != "" {
		if err := uc.billingGateway.CancelSubscription(ctx, subscriptionID); err != nil {
			uc.logger.Warnw("provider-side cancellation failed, proceeding with local downgrade",
				"error", err,
				"user_id", cmd.UserID,
				"subscription_id", subscriptionID,
			)
		}
	}

	sub := &gateway.Subscription{
		ID:         subscriptionID,
		CustomerID: ent.ExternalCustomerID(),
		Status:     gateway.SubscriptionStatusCanceled,
	}
	if err := uc.stateApplier.Apply(ctx, cmd.UserID, cmd.Email, sub, biztime.NowUTC()); err != nil {
		return err
	}

	uc.logger.Infow("subscription cancelled by user",
		"user_id", cmd.UserID,
		"subscription_id", subscriptionID,
	)

	return nil
}
