package factotum

import "errors"

var (
	// ErrInvalidEvent indicates that an event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("factotum: invalid event")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("factotum: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("factotum: subscription closed")
	// ErrEventDropped indicates a non-blocking backpressure drop.
	ErrEventDropped = errors.New("factotum: event dropped due to backpressure")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("factotum: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("factotum: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("factotum: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("factotum: driver already registered")
	// ErrInvalidOutboundRequest indicates a malformed outbound operation.
	ErrInvalidOutboundRequest = errors.New("factotum: invalid outbound request")
)
