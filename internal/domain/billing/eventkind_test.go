package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	tests := []struct {
		raw      string
		expected EventKind
	}{
		{"checkout.session.completed", EventCheckoutCompleted},
		{"customer.subscription.updated", EventSubscriptionUpdated},
		{"customer.subscription.deleted", EventSubscriptionDeleted},
		{"invoice.payment_succeeded", EventInvoicePaid},
		{"invoice.payment_failed", EventInvoiceFailed},
		{"customer.created", EventUnknown},
		{"", EventUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseEventKind(tt.raw))
		})
	}
}

func TestEventKindIsKnown(t *testing.T) {
	assert.True(t, EventInvoicePaid.IsKnown())
	assert.False(t, EventUnknown.IsKnown())
	assert.False(t, EventKind("customer.created").IsKnown())
}

func TestNewWebhookEvent(t *testing.T) {
	ts := time.Unix(1756720000, 0).UTC()

	event, err := NewWebhookEvent("evt_123", "invoice.payment_succeeded", []byte(`{"id":"evt_123"}`), ts)
	require.NoError(t, err)

	assert.Equal(t, "evt_123", event.ProviderEventID())
	assert.Equal(t, EventInvoicePaid, event.Kind())
	assert.Equal(t, "invoice.payment_succeeded", event.RawType())
	assert.Nil(t, event.ProcessedAt())

	event.MarkProcessed()
	assert.NotNil(t, event.ProcessedAt())
	assert.Empty(t, event.ProcessingError())
}

func TestNewWebhookEvent_RequiresID(t *testing.T) {
	_, err := NewWebhookEvent("", "invoice.payment_succeeded", nil, time.Now())
	assert.Error(t, err)
}

func TestMarkFailed(t *testing.T) {
	event, err := NewWebhookEvent("evt_1", "something.odd", nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, event.Kind())

	event.MarkFailed("handler exploded")
	assert.Equal(t, "handler exploded", event.ProcessingError())
	assert.Nil(t, event.ProcessedAt())
}
