// Package billing implements the billing provider gateway over its REST API.
// All calls carry the configured timeout; failures surface as external
// service errors and never leave partial local state behind.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"captionly/internal/application/billing/gateway"
	sharedConfig "captionly/internal/shared/config"
	apperrors "captionly/internal/shared/errors"
	"captionly/internal/shared/logger"
)

const defaultTimeout = 10 * time.Second

// Client talks to the hosted-checkout billing provider.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	monthlyPrice  string
	yearlyPrice   string
	successURL    string
	cancelURL     string
	httpClient    *http.Client
	logger        logger.Interface
}

// NewClient creates a provider client from config.
func NewClient(cfg *sharedConfig.BillingConfig, logger logger.Interface) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.APIBaseURL, "/"),
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		monthlyPrice:  cfg.MonthlyPriceID,
		yearlyPrice:   cfg.YearlyPriceID,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

var _ gateway.BillingGateway = (*Client)(nil)

// providerSession is the wire shape of a checkout session.
type providerSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	Created           int64             `json:"created"`
}

// providerSubscription is the wire shape of a subscription.
type providerSubscription struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	TrialEnd          int64  `json:"trial_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

type providerError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req gateway.CreateSessionRequest) (*gateway.CheckoutSession, error) {
	priceID := c.monthlyPrice
	if req.Interval == gateway.IntervalYearly {
		priceID = c.yearlyPrice
	}
	if priceID == "" {
		return nil, apperrors.NewInternalError("billing price ID is not configured", "interval: "+req.Interval)
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer_email", req.Email)
	form.Set("client_reference_id", fmt.Sprintf("%d", req.UserID))
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[user_id]", fmt.Sprintf("%d", req.UserID))
	if req.IncludeTrial {
		// Trial length is owned by the provider-side price configuration.
		form.Set("subscription_data[trial_from_plan]", "true")
	}

	var session providerSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}

	c.logger.Infow("checkout session created",
		"session_id", session.ID,
		"user_id", req.UserID,
		"interval", req.Interval,
		"include_trial", req.IncludeTrial,
	)

	return toGatewaySession(&session), nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
	if sessionID == "" {
		return nil, apperrors.NewValidationError("session ID is required")
	}

	var session providerSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}

	return toGatewaySession(&session), nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*gateway.Subscription, error) {
	if subscriptionID == "" {
		return nil, apperrors.NewValidationError("subscription ID is required")
	}

	var sub providerSubscription
	if err := c.do(ctx, http.MethodGet, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub); err != nil {
		return nil, err
	}

	return toGatewaySubscription(&sub), nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return apperrors.NewValidationError("subscription ID is required")
	}

	var sub providerSubscription
	return c.do(ctx, http.MethodDelete, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.NewExternalServiceError("failed to build billing provider request", err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Errorw("billing provider request failed", "method", method, "path", path, "error", err)
		return apperrors.NewExternalServiceError("billing provider unreachable", err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.NewExternalServiceError("failed to read billing provider response", err.Error())
	}

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NewNotFoundError("billing resource not found", path)
	}
	if resp.StatusCode >= 400 {
		var provErr providerError
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(data, &provErr) == nil && provErr.Error.Message != "" {
			detail = provErr.Error.Message
		}
		c.logger.Errorw("billing provider returned error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"detail", detail,
		)
		return apperrors.NewExternalServiceError("billing provider request rejected", detail)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return apperrors.NewExternalServiceError("failed to decode billing provider response", err.Error())
		}
	}

	return nil
}

func toGatewaySession(s *providerSession) *gateway.CheckoutSession {
	return &gateway.CheckoutSession{
		ID:                s.ID,
		URL:               s.URL,
		Status:            s.Status,
		PaymentStatus:     s.PaymentStatus,
		CustomerID:        s.Customer,
		SubscriptionID:    s.Subscription,
		ClientReferenceID: s.ClientReferenceID,
		Metadata:          s.Metadata,
		CreatedAt:         time.Unix(s.Created, 0).UTC(),
	}
}

func toGatewaySubscription(s *providerSubscription) *gateway.Subscription {
	sub := &gateway.Subscription{
		ID:                s.ID,
		CustomerID:        s.Customer,
		Status:            s.Status,
		CurrentPeriodEnd:  time.Unix(s.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.TrialEnd > 0 {
		trialEnd := time.Unix(s.TrialEnd, 0).UTC()
		sub.TrialEnd = &trialEnd
	}
	return sub
}
