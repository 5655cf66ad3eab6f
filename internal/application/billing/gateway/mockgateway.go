package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockGateway is an in-memory BillingGateway for local development and
// tests that do not care about provider behavior details.
type MockGateway struct {
	mu            sync.Mutex
	sessions      map[string]*CheckoutSession
	subscriptions map[string]*Subscription
	counter       int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		sessions:      make(map[string]*CheckoutSession),
		subscriptions: make(map[string]*Subscription),
	}
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req CreateSessionRequest) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	sessionID := fmt.Sprintf("cs_mock_%d", m.counter)
	subscriptionID := fmt.Sprintf("sub_mock_%d", m.counter)
	customerID := fmt.Sprintf("cus_mock_%d", req.UserID)

	status := SubscriptionStatusActive
	paymentStatus := PaymentStatusPaid
	var trialEnd *time.Time
	if req.IncludeTrial {
		status = SubscriptionStatusTrialing
		paymentStatus = PaymentStatusNoPaymentRequired
		end := time.Now().UTC().AddDate(0, 0, 7)
		trialEnd = &end
	}

	m.subscriptions[subscriptionID] = &Subscription{
		ID:               subscriptionID,
		CustomerID:       customerID,
		Status:           status,
		CurrentPeriodEnd: time.Now().UTC().AddDate(0, 1, 0),
		TrialEnd:         trialEnd,
	}

	session := &CheckoutSession{
		ID:                sessionID,
		URL:               fmt.Sprintf("https://checkout.mock.example.com/pay/%s", sessionID),
		Status:            "complete",
		PaymentStatus:     paymentStatus,
		CustomerID:        customerID,
		SubscriptionID:    subscriptionID,
		ClientReferenceID: fmt.Sprintf("%d", req.UserID),
		Metadata:          map[string]string{"user_id": fmt.Sprintf("%d", req.UserID)},
		CreatedAt:         time.Now().UTC(),
	}
	m.sessions[sessionID] = session

	return session, nil
}

func (m *MockGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("checkout session %s not found", sessionID)
	}
	return session, nil
}

func (m *MockGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", subscriptionID)
	}
	return sub, nil
}

func (m *MockGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subscriptions[subscriptionID]; ok {
		sub.Status = SubscriptionStatusCanceled
	}
	return nil
}

func (m *MockGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) error {
	return nil
}
