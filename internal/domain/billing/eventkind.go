package billing

// EventKind is the closed set of webhook event variants this service acts
// on. Anything else maps to EventUnknown, which is logged and acknowledged
// so new provider event types never break the endpoint.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout.session.completed"
	EventSubscriptionUpdated EventKind = "customer.subscription.updated"
	EventSubscriptionDeleted EventKind = "customer.subscription.deleted"
	EventInvoicePaid         EventKind = "invoice.payment_succeeded"
	EventInvoiceFailed       EventKind = "invoice.payment_failed"
	EventUnknown             EventKind = "unknown"
)

var knownEventKinds = map[EventKind]bool{
	EventCheckoutCompleted:   true,
	EventSubscriptionUpdated: true,
	EventSubscriptionDeleted: true,
	EventInvoicePaid:         true,
	EventInvoiceFailed:       true,
}

// ParseEventKind maps a raw provider event type to a variant.
func ParseEventKind(raw string) EventKind {
	kind := EventKind(raw)
	if knownEventKinds[kind] {
		return kind
	}
	return EventUnknown
}

func (k EventKind) String() string {
	return string(k)
}

// IsKnown reports whether the kind has a dedicated handler.
func (k EventKind) IsKnown() bool {
	return knownEventKinds[k]
}
