package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"captionly/internal/application/billing/gateway"
	billingUC "captionly/internal/application/billing/usecases"
	entitlementUC "captionly/internal/application/entitlement/usecases"
	"captionly/internal/domain/entitlement"
	"captionly/internal/infrastructure/email"
	"captionly/internal/infrastructure/persistence/models"
	"captionly/internal/infrastructure/repository"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

type checkoutFixture struct {
	entitlementRepo entitlement.Repository
	gateway         *gateway.MockGateway
	applier         *billingUC.SubscriptionStateApplier
	create          *CreateCheckoutSessionUseCase
	verify          *VerifyCheckoutSessionUseCase
	cancel          *CancelSubscriptionUseCase
}

func setupCheckoutFixture(t *testing.T) *checkoutFixture {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.EntitlementModel{},
		&models.UsageLedgerModel{},
	))

	log := logger.NewNop()
	entRepo := repository.NewEntitlementRepository(db, log)
	ledgerRepo := repository.NewUsageLedgerRepository(db, log)

	gw := gateway.NewMockGateway()
	reconcile := entitlementUC.NewReconcileExpiryUseCase(entRepo, ledgerRepo, nil, log)
	applier := billingUC.NewSubscriptionStateApplier(entRepo, ledgerRepo, nil, email.NopSender{}, log)

	return &checkoutFixture{
		entitlementRepo: entRepo,
		gateway:         gw,
		applier:         applier,
		create:          NewCreateCheckoutSessionUseCase(reconcile, gw, log),
		verify:          NewVerifyCheckoutSessionUseCase(gw, applier, entRepo, log),
		cancel:          NewCancelSubscriptionUseCase(reconcile, applier, gw, log),
	}
}

func (f *checkoutFixture) checkout(t *testing.T, ctx context.Context, userID uint) *VerifyCheckoutSessionResult {
	created, err := f.create.Execute(ctx, CreateCheckoutSessionCommand{
		UserID:   userID,
		Email:    "user@example.com",
		Interval: gateway.IntervalMonthly,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.CheckoutURL)

	result, err := f.verify.Execute(ctx, VerifyCheckoutSessionCommand{
		UserID:    userID,
		Email:     "user@example.com",
		SessionID: created.SessionID,
	})
	require.NoError(t, err)
	return result
}

func TestCheckout_FirstUpgradeGetsTrial(t *testing.T) {
	f := setupCheckoutFixture(t)
	ctx := context.Background()

	result := f.checkout(t, ctx, 1)
	assert.True(t, result.Activated)
	assert.Equal(t, "trial", result.Tier)

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierTrial, ent.Tier())
	assert.True(t, ent.TrialActivated())
	assert.NotNil(t, ent.TrialEndsAt())
	assert.Equal(t, int64(100), ent.Limits().MonthlyLimit)
}

func TestCheckout_SecondUpgradeSkipsTrial(t *testing.T) {
	f := setupCheckoutFixture(t)
	ctx := context.Background()

	// first round: trial, then cancel
	f.checkout(t, ctx, 1)
	require.NoError(t, f.cancel.Execute(ctx, CancelSubscriptionCommand{UserID: 1, Email: "user@example.com"}))

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, entitlement.TierFree, ent.Tier())
	require.True(t, ent.TrialActivated(), "trial flag survives cancellation")

	// second round: no trial this time
	result := f.checkout(t, ctx, 1)
	assert.True(t, result.Activated)
	assert.Equal(t, "premium", result.Tier)

	ent, err = f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, ent.Tier())
	assert.Nil(t, ent.TrialEndsAt())
}

func TestCreateCheckoutSession_AlreadyPremiumIsConflict(t *testing.T) {
	f := setupCheckoutFixture(t)
	ctx := context.Background()

	f.checkout(t, ctx, 1)
	require.NoError(t, f.cancel.Execute(ctx, CancelSubscriptionCommand{UserID: 1}))
	f.checkout(t, ctx, 1) // now premium

	_, err := f.create.Execute(ctx, CreateCheckoutSessionCommand{
		UserID:   1,
		Interval: gateway.IntervalMonthly,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
}

func TestCreateCheckoutSession_InvalidInterval(t *testing.T) {
	f := setupCheckoutFixture(t)

	_, err := f.create.Execute(context.Background(), CreateCheckoutSessionCommand{
		UserID:   1,
		Interval: "weekly",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestCreateCheckoutSession_ReportsTrialOffer(t *testing.T) {
	f := setupCheckoutFixture(t)
	ctx := context.Background()

	created, err := f.create.Execute(ctx, CreateCheckoutSessionCommand{
		UserID:   1,
		Email:    "user@example.com",
		Interval: gateway.IntervalMonthly,
	})
	require.NoError(t, err)
	assert.True(t, created.IncludeTrial, "first checkout carries the trial offer")

	// burn the trial, then cancel; the next offer must not carry it
	_, err = f.verify.Execute(ctx, VerifyCheckoutSessionCommand{UserID: 1, SessionID: created.SessionID})
	require.NoError(t, err)
	require.NoError(t, f.cancel.Execute(ctx, CancelSubscriptionCommand{UserID: 1}))

	created, err = f.create.Execute(ctx, CreateCheckoutSessionCommand{
		UserID:   1,
		Interval: gateway.IntervalMonthly,
	})
	require.NoError(t, err)
	assert.False(t, created.IncludeTrial)
}

// unpaidSessionGateway reports every checkout session as unpaid.
type unpaidSessionGateway struct {
	*gateway.MockGateway
}

func (g *unpaidSessionGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
	session, err := g.MockGateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unsettled := *session
	unsettled.PaymentStatus = gateway.PaymentStatusUnpaid
	return &unsettled, nil
}

func TestVerifyCheckoutSession_UnsettledSessionIsRejected(t *testing.T) {
	f := setupCheckoutFixture(t)
	ctx := context.Background()

	created, err := f.create.Execute(ctx, CreateCheckoutSessionCommand{
		UserID:   1,
		Interval: gateway.IntervalMonthly,
	})
	require.NoError(t, err)

	verify := NewVerifyCheckoutSessionUseCase(&unpaidSessionGateway{f.gateway}, f.applier, f.entitlementRepo, logger.NewNop())
	_, err = verify.Execute(ctx, VerifyCheckoutSessionCommand{UserID: 1, SessionID: created.SessionID})
	require.Error(t, err)
	assert.True(t, apperrors.IsExternalServiceError(err))

	// no transition happened
	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierFree, ent.Tier())
}

func TestVerifyCheckoutSession_WrongUserIsRejected(t *testing.T) {
	f := setupCheckoutFixture(t)
	ctx := context.Background()

	created, err := f.create.Execute(ctx, CreateCheckoutSessionCommand{
		UserID:   1,
		Interval: gateway.IntervalMonthly,
	})
	require.NoError(t, err)

	_, err = f.verify.Execute(ctx, VerifyCheckoutSessionCommand{
		UserID:    2,
		SessionID: created.SessionID,
	})
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrorTypeUnauthorized, appErr.Type)
}

func TestCancelSubscription_FreeUserIsConflict(t *testing.T) {
	f := setupCheckoutFixture(t)

	err := f.cancel.Execute(context.Background(), CancelSubscriptionCommand{UserID: 7})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
}

func TestCancelSubscription_IsTerminalForSubscriptionID(t *testing.T) {
	f := setupCheckoutFixture(t)
	ctx := context.Background()

	f.checkout(t, ctx, 1)

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	cancelledSubID := ent.ExternalSubscriptionID()

	require.NoError(t, f.cancel.Execute(ctx, CancelSubscriptionCommand{UserID: 1}))

	ent, err = f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierFree, ent.Tier())
	assert.Empty(t, ent.ExternalSubscriptionID())
	assert.Equal(t, cancelledSubID, ent.CancelledSubscriptionID())
}
