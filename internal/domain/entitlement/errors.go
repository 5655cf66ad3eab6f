package entitlement

import "errors"

var (
	// ErrStaleEvent means the incoming provider event is older than the last
	// applied one and must be ignored.
	ErrStaleEvent = errors.New("provider event is older than last applied state")

	// ErrSubscriptionTerminated means the external subscription id was
	// cancelled earlier; later events for the same id must not resurrect it.
	ErrSubscriptionTerminated = errors.New("external subscription was terminated")

	// ErrAlreadyPremium guards against re-upgrading an active premium user.
	ErrAlreadyPremium = errors.New("user already has an active premium subscription")

	ErrNotFound = errors.New("entitlement not found")
)
