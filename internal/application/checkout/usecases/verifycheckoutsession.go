package usecases

import (
	"context"
	"strconv"
	"time"

	"captionly/internal/application/billing/gateway"
	billingUC "captionly/internal/application/billing/usecases"
	"captionly/internal/domain/entitlement"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

type VerifyCheckoutSessionCommand struct {
	UserID    uint
	Email     string
	SessionID string
}

type VerifyCheckoutSessionResult struct {
	Activated         bool
	Tier              string
	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	TrialEndsAt       *time.Time
}

// VerifyCheckoutSessionUseCase is the synchronous return path after hosted
// checkout. It polls the session, and when payment went through, applies the
// provider subscription state without waiting for the webhook. Whichever of
// the two observers runs first wins; the other becomes a no-op.
type VerifyCheckoutSessionUseCase struct {
	billingGateway  gateway.BillingGateway
	stateApplier    *billingUC.SubscriptionStateApplier
	entitlementRepo entitlement.Repository
	logger          logger.Interface
}

func NewVerifyCheckoutSessionUseCase(
	billingGateway gateway.BillingGateway,
	stateApplier *billingUC.SubscriptionStateApplier,
	entitlementRepo entitlement.Repository,
	logger logger.Interface,
) *VerifyCheckoutSessionUseCase {
	return &VerifyCheckoutSessionUseCase{
		billingGateway:  billingGateway,
		stateApplier:    stateApplier,
		entitlementRepo: entitlementRepo,
		logger:          logger,
	}
}

func (uc *VerifyCheckoutSessionUseCase) Execute(ctx context.Context, cmd VerifyCheckoutSessionCommand) (*VerifyCheckoutSessionResult, error) {
	if cmd.SessionID == "" {
		return nil, apperrors.NewValidationError("session ID is required")
	}

	session, err := uc.billingGateway.GetCheckoutSession(ctx, cmd.SessionID)
	if err != nil {
		uc.logger.Errorw("failed to fetch checkout session", "error", err, "session_id", cmd.SessionID)
		return nil, apperrors.NewExternalServiceError("failed to fetch checkout session")
	}

	// the session must belong to the caller
	if ref, parseErr := strconv.ParseUint(session.ClientReferenceID, 10, 64); parseErr != nil || uint(ref) != cmd.UserID {
		return nil, apperrors.NewUnauthorizedError("checkout session does not belong to this user")
	}

	if session.PaymentStatus != gateway.PaymentStatusPaid &&
		session.PaymentStatus != gateway.PaymentStatusNoPaymentRequired {
		uc.logger.Infow("checkout session not settled",
			"session_id", cmd.SessionID,
			"payment_status", session.PaymentStatus,
		)
		return nil, apperrors.NewExternalServiceError("checkout session is not completed")
	}

	if session.SubscriptionID == "" {
		return nil, apperrors.NewExternalServiceError("checkout session has no subscription")
	}

	sub, err := uc.billingGateway.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		uc.logger.Errorw("failed to fetch subscription", "error", err, "subscription_id", session.SubscriptionID)
		return nil, apperrors.NewExternalServiceError("failed to fetch subscription")
	}

	if err := uc.stateApplier.Apply(ctx, cmd.UserID, cmd.Email, sub, session.CreatedAt); err != nil {
		return nil, err
	}

	// Report the stored state, not the raw provider status: a newer webhook
	// may already have applied a later transition.
	ent, err := uc.entitlementRepo.GetByUserID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	return &VerifyCheckoutSessionResult{
		Activated:         ent.Tier() != entitlement.TierFree,
		Tier:              string(ent.Tier()),
		SubscriptionStart: ent.SubscriptionStart(),
		SubscriptionEnd:   ent.SubscriptionEnd(),
		TrialEndsAt:       ent.TrialEndsAt(),
	}, nil
}
