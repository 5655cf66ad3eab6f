package usecases

import (
	"context"
	"fmt"

	"captionly/internal/application/billing/gateway"
	entitlementUC "captionly/internal/application/entitlement/usecases"
	"captionly/internal/domain/entitlement"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

type CreateCheckoutSessionCommand struct {
	UserID   uint
	Email    string
	Interval string
}

type CreateCheckoutSessionResult struct {
	SessionID    string
	CheckoutURL  string
	IncludeTrial bool
}

// CreateCheckoutSessionUseCase starts the upgrade flow by creating a hosted
// checkout session at the billing provider. The trial offer is attached only
// for users who have never had one; the flag is monotone.
type CreateCheckoutSessionUseCase struct {
	reconcileExpiry *entitlementUC.ReconcileExpiryUseCase
	billingGateway  gateway.BillingGateway
	logger          logger.Interface
}

func NewCreateCheckoutSessionUseCase(
	reconcileExpiry *entitlementUC.ReconcileExpiryUseCase,
	billingGateway gateway.BillingGateway,
	logger logger.Interface,
) *CreateCheckoutSessionUseCase {
	return &CreateCheckoutSessionUseCase{
		reconcileExpiry: reconcileExpiry,
		billingGateway:  billingGateway,
		logger:          logger,
	}
}

func (uc *CreateCheckoutSessionUseCase) Execute(ctx context.Context, cmd CreateCheckoutSessionCommand) (*CreateCheckoutSessionResult, error) {
	if cmd.Interval != gateway.IntervalMonthly && cmd.Interval != gateway.IntervalYearly {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid billing interval: %s", cmd.Interval))
	}

	ent, err := uc.reconcileExpiry.Execute(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if ent.Tier() == entitlement.TierPremium {
		return nil, apperrors.NewConflictError("user already has an active premium subscription")
	}

	includeTrial := ent.TrialEligible()
	session, err := uc.billingGateway.CreateCheckoutSession(ctx, gateway.CreateSessionRequest{
		UserID:       cmd.UserID,
		Email:        cmd.Email,
		Interval:     cmd.Interval,
		IncludeTrial: includeTrial,
	})
	if err != nil {
		uc.logger.Errorw("failed to create checkout session", "error", err, "user_id", cmd.UserID)
		return nil, apperrors.NewPaymentError("failed to create checkout session")
	}

	uc.logger.Infow("checkout session created",
		"user_id", cmd.UserID,
		"session_id", session.ID,
		"interval", cmd.Interval,
		"trial_included", includeTrial,
	)

	return &CreateCheckoutSessionResult{
		SessionID:    session.ID,
		CheckoutURL:  session.URL,
		IncludeTrial: includeTrial,
	}, nil
}
