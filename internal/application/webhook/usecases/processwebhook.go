package usecases

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"captionly/internal/application/billing/gateway"
	billingUC "captionly/internal/application/billing/usecases"
	"captionly/internal/domain/billing"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

// eventEnvelope is the provider's outer webhook event shape.
type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// sessionObject is the checkout session payload carried by
// checkout.session.completed events.
type sessionObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// subscriptionObject is the subscription payload carried by
// customer.subscription.* events.
type subscriptionObject struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	TrialEnd          *int64 `json:"trial_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

// invoiceObject is the invoice payload carried by invoice.payment_* events.
type invoiceObject struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
}

type eventHandler func(ctx context.Context, env *eventEnvelope, eventAt time.Time) error

// ProcessWebhookUseCase handles provider webhook deliveries. Delivery is
// at-least-once and possibly out of order, so every event is deduplicated by
// its provider event id, and per-event handler failures are recorded and
// swallowed: the endpoint acknowledges receipt and the provider's retry of
// the same event id covers transient faults. Only events whose handler
// completed are skipped on redelivery.
type ProcessWebhookUseCase struct {
	eventRepo      billing.WebhookEventRepository
	billingGateway gateway.BillingGateway
	stateApplier   *billingUC.SubscriptionStateApplier
	handlers       map[billing.EventKind]eventHandler
	logger         logger.Interface
}

func NewProcessWebhookUseCase(
	eventRepo billing.WebhookEventRepository,
	billingGateway gateway.BillingGateway,
	stateApplier *billingUC.SubscriptionStateApplier,
	logger logger.Interface,
) *ProcessWebhookUseCase {
	uc := &ProcessWebhookUseCase{
		eventRepo:      eventRepo,
		billingGateway: billingGateway,
		stateApplier:   stateApplier,
		logger:         logger,
	}

	uc.handlers = map[billing.EventKind]eventHandler{
		billing.EventCheckoutCompleted:   uc.handleCheckoutCompleted,
		billing.EventSubscriptionUpdated: uc.handleSubscriptionUpdated,
		billing.EventSubscriptionDeleted: uc.handleSubscriptionDeleted,
		billing.EventInvoicePaid:         uc.handleInvoicePaid,
		billing.EventInvoiceFailed:       uc.handleInvoiceFailed,
	}

	return uc
}

// Execute verifies, deduplicates and dispatches one webhook delivery. Only
// signature and parse failures surface as errors (the provider should retry
// those); handler failures are recorded on the event and acknowledged.
func (uc *ProcessWebhookUseCase) Execute(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := uc.billingGateway.VerifyWebhookSignature(payload, signatureHeader); err != nil {
		uc.logger.Warnw("webhook signature rejected", "error", err)
		return apperrors.NewValidationError("invalid webhook signature")
	}

	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return apperrors.NewValidationError("malformed webhook payload")
	}
	if env.ID == "" || env.Type == "" {
		return apperrors.NewValidationError("webhook payload missing event id or type")
	}

	eventAt := time.Unix(env.Created, 0).UTC()

	event, err := billing.NewWebhookEvent(env.ID, env.Type, payload, eventAt)
	if err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	inserted, err := uc.eventRepo.InsertIfAbsent(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := uc.eventRepo.GetByProviderEventID(ctx, env.ID)
		if err != nil {
			return err
		}
		if stored.ProcessedAt() != nil {
			uc.logger.Infow("duplicate webhook delivery ignored",
				"provider_event_id", env.ID,
				"type", env.Type,
			)
			return nil
		}
		// the earlier delivery failed and the provider retried with the same
		// event id; run the handler against the stored record
		uc.logger.Infow("reprocessing previously failed webhook event",
			"provider_event_id", env.ID,
			"type", env.Type,
			"previous_error", stored.ProcessingError(),
		)
		event = stored
	}

	handler, ok := uc.handlers[event.Kind()]
	if !ok {
		uc.logger.Infow("unhandled webhook event type acknowledged",
			"provider_event_id", env.ID,
			"type", env.Type,
		)
		event.MarkProcessed()
		return uc.eventRepo.Update(ctx, event)
	}

	if err := handler(ctx, &env, eventAt); err != nil {
		uc.logger.Errorw("webhook handler failed",
			"error", err,
			"provider_event_id", env.ID,
			"type", env.Type,
		)
		event.MarkFailed(err.Error())
		if updateErr := uc.eventRepo.Update(ctx, event); updateErr != nil {
			uc.logger.Errorw("failed to record webhook failure", "error", updateErr, "provider_event_id", env.ID)
		}
		// acknowledged anyway; a redelivery of this event id is reprocessed
		return nil
	}

	event.MarkProcessed()
	if err := uc.eventRepo.Update(ctx, event); err != nil {
		uc.logger.Errorw("failed to record webhook completion", "error", err, "provider_event_id", env.ID)
	}

	return nil
}

func (uc *ProcessWebhookUseCase) handleCheckoutCompleted(ctx context.Context, env *eventEnvelope, eventAt time.Time) error {
	var session sessionObject
	if err := json.Unmarshal(env.Data.Object, &session); err != nil {
		return apperrors.NewValidationError("malformed checkout session object")
	}

	userID, err := uc.resolveUserID(&session)
	if err != nil {
		return err
	}

	if session.Subscription == "" {
		uc.logger.Infow("checkout completed without subscription, nothing to apply",
			"session_id", session.ID,
			"user_id", userID,
		)
		return nil
	}

	// the session payload carries no status; the subscription object is the
	// authority
	sub, err := uc.billingGateway.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return err
	}

	return uc.stateApplier.Apply(ctx, userID, "", sub, eventAt)
}

func (uc *ProcessWebhookUseCase) handleSubscriptionUpdated(ctx context.Context, env *eventEnvelope, eventAt time.Time) error {
	sub, err := parseSubscriptionObject(env.Data.Object)
	if err != nil {
		return err
	}

	return uc.stateApplier.ApplyToOwner(ctx, sub, eventAt)
}

func (uc *ProcessWebhookUseCase) handleSubscriptionDeleted(ctx context.Context, env *eventEnvelope, eventAt time.Time) error {
	sub, err := parseSubscriptionObject(env.Data.Object)
	if err != nil {
		return err
	}

	return uc.stateApplier.ApplyCancellationBySubscription(ctx, sub.ID, sub.CustomerID, eventAt)
}

func (uc *ProcessWebhookUseCase) handleInvoicePaid(ctx context.Context, env *eventEnvelope, eventAt time.Time) error {
	var invoice invoiceObject
	if err := json.Unmarshal(env.Data.Object, &invoice); err != nil {
		return apperrors.NewValidationError("malformed invoice object")
	}

	// the initial payment is applied via the checkout completion path
	if invoice.BillingReason == "subscription_create" {
		uc.logger.Debugw("initial invoice acknowledged", "invoice_id", invoice.ID)
		return nil
	}
	if invoice.Subscription == "" {
		return nil
	}

	return uc.stateApplier.ApplyRenewal(ctx, invoice.Subscription, invoice.Customer, eventAt)
}

func (uc *ProcessWebhookUseCase) handleInvoiceFailed(ctx context.Context, env *eventEnvelope, eventAt time.Time) error {
	var invoice invoiceObject
	if err := json.Unmarshal(env.Data.Object, &invoice); err != nil {
		return apperrors.NewValidationError("malformed invoice object")
	}

	// entitlement is untouched until the provider gives up and cancels; this
	// is the provider-driven grace period
	uc.logger.Warnw("invoice payment failed",
		"invoice_id", invoice.ID,
		"subscription_id", invoice.Subscription,
		"billing_reason", invoice.BillingReason,
	)

	uc.stateApplier.NotifyPaymentFailed(invoice.CustomerEmail)

	return nil
}

func (uc *ProcessWebhookUseCase) resolveUserID(session *sessionObject) (uint, error) {
	ref := session.ClientReferenceID
	if ref == "" {
		ref = session.Metadata["user_id"]
	}
	if ref == "" {
		return 0, apperrors.NewValidationError("checkout session carries no user reference")
	}

	userID, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || userID == 0 {
		return 0, apperrors.NewValidationError("invalid user reference on checkout session")
	}

	return uint(userID), nil
}

func parseSubscriptionObject(raw json.RawMessage) (*gateway.Subscription, error) {
	var obj subscriptionObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apperrors.NewValidationError("malformed subscription object")
	}

	sub := &gateway.Subscription{
		ID:                obj.ID,
		CustomerID:        obj.Customer,
		Status:            obj.Status,
		CurrentPeriodEnd:  time.Unix(obj.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: obj.CancelAtPeriodEnd,
	}
	if obj.TrialEnd != nil {
		end := time.Unix(*obj.TrialEnd, 0).UTC()
		sub.TrialEnd = &end
	}

	return sub, nil
}
