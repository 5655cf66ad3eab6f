package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"captionly/internal/application/billing/gateway"
	billingUC "captionly/internal/application/billing/usecases"
	"captionly/internal/domain/entitlement"
	"captionly/internal/infrastructure/email"
	"captionly/internal/infrastructure/persistence/models"
	"captionly/internal/infrastructure/repository"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

type webhookFixture struct {
	db              *gorm.DB
	entitlementRepo entitlement.Repository
	gateway         *gateway.MockGateway
	process         *ProcessWebhookUseCase
}

func setupWebhookFixture(t *testing.T) *webhookFixture {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.EntitlementModel{},
		&models.UsageLedgerModel{},
		&models.WebhookEventModel{},
	))

	log := logger.NewNop()
	entRepo := repository.NewEntitlementRepository(db, log)
	ledgerRepo := repository.NewUsageLedgerRepository(db, log)
	eventRepo := repository.NewWebhookEventRepository(db, log)

	gw := gateway.NewMockGateway()
	applier := billingUC.NewSubscriptionStateApplier(entRepo, ledgerRepo, nil, email.NopSender{}, log)

	return &webhookFixture{
		db:              db,
		entitlementRepo: entRepo,
		gateway:         gw,
		process:         NewProcessWebhookUseCase(eventRepo, gw, applier, log),
	}
}

// seedPremium walks a user through checkout so the mock gateway holds a
// subscription and the local entitlement is premium.
func (f *webhookFixture) seedPremium(t *testing.T, ctx context.Context, userID uint, eventAt time.Time) (string, string) {
	session, err := f.gateway.CreateCheckoutSession(ctx, gateway.CreateSessionRequest{
		UserID:   userID,
		Email:    "user@example.com",
		Interval: gateway.IntervalMonthly,
	})
	require.NoError(t, err)

	payload := checkoutCompletedPayload(fmt.Sprintf("evt_seed_%d", userID), session, eventAt)
	require.NoError(t, f.process.Execute(ctx, payload, "sig"))

	ent, err := f.entitlementRepo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, entitlement.TierPremium, ent.Tier())

	return session.SubscriptionID, session.CustomerID
}

func checkoutCompletedPayload(eventID string, session *gateway.CheckoutSession, eventAt time.Time) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    "checkout.session.completed",
		"created": eventAt.Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":                  session.ID,
				"client_reference_id": session.ClientReferenceID,
				"customer":            session.CustomerID,
				"subscription":        session.SubscriptionID,
				"metadata":            session.Metadata,
			},
		},
	})
	return payload
}

func subscriptionEventPayload(eventID, eventType, subID, customerID, status string, periodEnd, eventAt time.Time) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    eventType,
		"created": eventAt.Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":                 subID,
				"customer":           customerID,
				"status":             status,
				"current_period_end": periodEnd.Unix(),
			},
		},
	})
	return payload
}

func invoicePayload(eventID, subID, customerID, billingReason string, eventAt time.Time) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    "invoice.payment_succeeded",
		"created": eventAt.Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "in_" + eventID,
				"customer":       customerID,
				"subscription":   subID,
				"billing_reason": billingReason,
			},
		},
	})
	return payload
}

func TestProcessWebhook_CheckoutCompletedActivatesPremium(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	f.seedPremium(t, ctx, 1, time.Now().UTC())

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, ent.Tier())
	assert.NotNil(t, ent.SubscriptionEnd())
	assert.NotEmpty(t, ent.ExternalSubscriptionID())
}

func TestProcessWebhook_DuplicateDeliveryIsIgnored(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	session, err := f.gateway.CreateCheckoutSession(ctx, gateway.CreateSessionRequest{UserID: 1})
	require.NoError(t, err)

	payload := checkoutCompletedPayload("evt_dup", session, now)
	require.NoError(t, f.process.Execute(ctx, payload, "sig"))

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	versionAfterFirst := ent.Version()

	// same provider event id redelivered
	require.NoError(t, f.process.Execute(ctx, payload, "sig"))

	ent, err = f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, versionAfterFirst, ent.Version(), "redelivery must not re-apply the transition")
}

func TestProcessWebhook_OutOfOrderEventsFirstWins(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	subID, customerID := f.seedPremium(t, ctx, 1, now)

	// cancellation observed at t+2m
	deleted := subscriptionEventPayload("evt_del", "customer.subscription.deleted",
		subID, customerID, "canceled", now, now.Add(2*time.Minute))
	require.NoError(t, f.process.Execute(ctx, deleted, "sig"))

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, entitlement.TierFree, ent.Tier())

	// stale "active" update from t+1m arrives afterwards; the cancelled
	// subscription id is terminal
	stale := subscriptionEventPayload("evt_stale", "customer.subscription.updated",
		subID, customerID, "active", now.AddDate(0, 1, 0), now.Add(time.Minute))
	require.NoError(t, f.process.Execute(ctx, stale, "sig"))

	ent, err = f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierFree, ent.Tier())

	// even a "newer" event cannot resurrect the same subscription id
	late := subscriptionEventPayload("evt_late", "customer.subscription.updated",
		subID, customerID, "active", now.AddDate(0, 1, 0), now.Add(10*time.Minute))
	require.NoError(t, f.process.Execute(ctx, late, "sig"))

	ent, err = f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierFree, ent.Tier())
}

func TestProcessWebhook_RenewalExtendsByOneCalendarMonth(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	subID, customerID := f.seedPremium(t, ctx, 1, now)

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, ent.SubscriptionEnd())
	endBefore := *ent.SubscriptionEnd()

	renewal := invoicePayload("evt_renew", subID, customerID, "subscription_cycle", now.Add(time.Minute))
	require.NoError(t, f.process.Execute(ctx, renewal, "sig"))

	ent, err = f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, ent.SubscriptionEnd())
	assert.True(t, ent.SubscriptionEnd().After(endBefore), "renewal must extend the window")
}

func TestProcessWebhook_InitialInvoiceIsAcknowledgedWithoutTransition(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	subID, customerID := f.seedPremium(t, ctx, 1, now)

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	versionBefore := ent.Version()

	initial := invoicePayload("evt_initial", subID, customerID, "subscription_create", now.Add(time.Minute))
	require.NoError(t, f.process.Execute(ctx, initial, "sig"))

	ent, err = f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, versionBefore, ent.Version())
}

func TestProcessWebhook_UnknownEventTypeIsAcknowledged(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]any{
		"id":      "evt_unknown",
		"type":    "customer.created",
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": map[string]any{}},
	})

	assert.NoError(t, f.process.Execute(ctx, payload, "sig"))
}

func TestProcessWebhook_UnknownSubscriptionIsIgnored(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	deleted := subscriptionEventPayload("evt_orphan", "customer.subscription.deleted",
		"sub_nobody", "cus_nobody", "canceled", now, now)

	assert.NoError(t, f.process.Execute(ctx, deleted, "sig"))
}

func TestProcessWebhook_MalformedPayloadIsRejected(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	err := f.process.Execute(ctx, []byte("not json"), "sig")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))

	err = f.process.Execute(ctx, []byte(`{"type":"checkout.session.completed"}`), "sig")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

// unavailableSubscriptionGateway fails subscription lookups a set number of
// times before delegating, simulating a provider read that lags the event.
type unavailableSubscriptionGateway struct {
	*gateway.MockGateway
	failuresLeft int
}

func (g *unavailableSubscriptionGateway) GetSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	if g.failuresLeft > 0 {
		g.failuresLeft--
		return nil, apperrors.NewExternalServiceError("subscription lookup unavailable")
	}
	return g.MockGateway.GetSubscription(ctx, subscriptionID)
}

func TestProcessWebhook_FailedEventIsReprocessedOnRedelivery(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.EntitlementModel{}, &models.UsageLedgerModel{}, &models.WebhookEventModel{}))

	log := logger.NewNop()
	entRepo := repository.NewEntitlementRepository(db, log)
	ledgerRepo := repository.NewUsageLedgerRepository(db, log)
	eventRepo := repository.NewWebhookEventRepository(db, log)
	gw := &unavailableSubscriptionGateway{MockGateway: gateway.NewMockGateway(), failuresLeft: 1}
	applier := billingUC.NewSubscriptionStateApplier(entRepo, ledgerRepo, nil, email.NopSender{}, log)
	process := NewProcessWebhookUseCase(eventRepo, gw, applier, log)

	ctx := context.Background()
	now := time.Now().UTC()
	session, err := gw.CreateCheckoutSession(ctx, gateway.CreateSessionRequest{UserID: 1, Email: "user@example.com", Interval: gateway.IntervalMonthly})
	require.NoError(t, err)
	payload := checkoutCompletedPayload("evt_transient", session, now)

	// first delivery fails transiently but is acknowledged
	require.NoError(t, process.Execute(ctx, payload, "sig"))
	_, err = entRepo.GetByUserID(ctx, 1)
	require.ErrorIs(t, err, entitlement.ErrNotFound)

	// the provider redelivers the same event id; the stored failure is retried
	require.NoError(t, process.Execute(ctx, payload, "sig"))
	ent, err := entRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, entitlement.TierPremium, ent.Tier())
	versionAfterRetry := ent.Version()

	// once processed, further redeliveries are ignored
	require.NoError(t, process.Execute(ctx, payload, "sig"))
	ent, err = entRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, versionAfterRetry, ent.Version())
}

func TestProcessWebhook_RenewalAfterLocalExpiryRestoresPremium(t *testing.T) {
	f := setupWebhookFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	subID, customerID := f.seedPremium(t, ctx, 1, now.Add(-time.Hour))

	// the window lapses and the lazy downgrade collapses the row to free
	require.NoError(t, f.db.Model(&models.EntitlementModel{}).
		Where("user_id = ?", 1).
		Update("subscription_end", now.Add(-24*time.Hour)).Error)
	downgraded, err := f.entitlementRepo.DowngradeExpired(ctx, 1, now)
	require.NoError(t, err)
	require.True(t, downgraded)

	ent, err := f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, entitlement.TierFree, ent.Tier())

	// a local expiry is not a cancellation: the renewal still applies, found
	// through the retained customer id
	renewal := invoicePayload("evt_late_renewal", subID, customerID, "subscription_cycle", now)
	require.NoError(t, f.process.Execute(ctx, renewal, "sig"))

	ent, err = f.entitlementRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, ent.Tier())
}

// paymentFailureSender records dunning notifications.
type paymentFailureSender struct {
	email.NopSender
	sent chan string
}

func (s *paymentFailureSender) SendPaymentFailed(to string) error {
	s.sent <- to
	return nil
}

func TestProcessWebhook_InvoiceFailureNotifiesWithoutDowngrade(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.EntitlementModel{}, &models.UsageLedgerModel{}, &models.WebhookEventModel{}))

	log := logger.NewNop()
	entRepo := repository.NewEntitlementRepository(db, log)
	ledgerRepo := repository.NewUsageLedgerRepository(db, log)
	eventRepo := repository.NewWebhookEventRepository(db, log)
	gw := gateway.NewMockGateway()
	sender := &paymentFailureSender{sent: make(chan string, 1)}
	applier := billingUC.NewSubscriptionStateApplier(entRepo, ledgerRepo, nil, sender, log)
	process := NewProcessWebhookUseCase(eventRepo, gw, applier, log)

	ctx := context.Background()
	now := time.Now().UTC()
	session, err := gw.CreateCheckoutSession(ctx, gateway.CreateSessionRequest{UserID: 1, Email: "user@example.com", Interval: gateway.IntervalMonthly})
	require.NoError(t, err)
	require.NoError(t, process.Execute(ctx, checkoutCompletedPayload("evt_seed", session, now), "sig"))

	ent, err := entRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	versionBefore := ent.Version()

	failed, _ := json.Marshal(map[string]any{
		"id":      "evt_inv_failed",
		"type":    "invoice.payment_failed",
		"created": now.Add(time.Minute).Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "in_failed",
				"customer":       session.CustomerID,
				"customer_email": "user@example.com",
				"subscription":   session.SubscriptionID,
				"billing_reason": "subscription_cycle",
			},
		},
	})
	require.NoError(t, process.Execute(ctx, failed, "sig"))

	select {
	case to := <-sender.sent:
		assert.Equal(t, "user@example.com", to)
	case <-time.After(2 * time.Second):
		t.Fatal("payment failure notification was not sent")
	}

	// the entitlement rides out the provider's dunning window
	ent, err = entRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierPremium, ent.Tier())
	assert.Equal(t, versionBefore, ent.Version())
}

type rejectingGateway struct {
	*gateway.MockGateway
}

func (g *rejectingGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) error {
	return apperrors.NewExternalServiceError("webhook signature mismatch")
}

func TestProcessWebhook_InvalidSignatureIsRejected(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_busy_timeout=5000"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.EntitlementModel{}, &models.UsageLedgerModel{}, &models.WebhookEventModel{}))

	log := logger.NewNop()
	entRepo := repository.NewEntitlementRepository(db, log)
	ledgerRepo := repository.NewUsageLedgerRepository(db, log)
	eventRepo := repository.NewWebhookEventRepository(db, log)
	gw := &rejectingGateway{gateway.NewMockGateway()}
	applier := billingUC.NewSubscriptionStateApplier(entRepo, ledgerRepo, nil, email.NopSender{}, log)
	process := NewProcessWebhookUseCase(eventRepo, gw, applier, log)

	payload, _ := json.Marshal(map[string]any{
		"id": "evt_bad_sig", "type": "checkout.session.completed", "created": time.Now().Unix(),
	})

	err = process.Execute(context.Background(), payload, "t=0,v1=bad")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
}
