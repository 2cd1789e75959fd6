package factotum

import (
	"context"
	"fmt"
)

// ServiceOutboundDispatcher is the canonical service registry key for outbound messaging.
const ServiceOutboundDispatcher = "factotum.outbound_dispatcher"

// OutboundDispatcher sends neutral outbound messages to the active transport.
type OutboundDispatcher interface {
	// SendMessage publishes a new outbound message to a destination conversation.
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
}

// OutboundTarget identifies where an outbound operation should be delivered.
type OutboundTarget struct {
	// Conversation identifies the destination conversation.
	Conversation Conversation
}

// Validate checks target identity fields used for outbound routing.
func (t OutboundTarget) Validate() error {
	if t.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	}
	if t.Conversation.Type == "" {
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent derives a destination target from an inbound event.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}
	target := OutboundTarget{Conversation: event.Conversation}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage identifies a message successfully emitted by the dispatcher.
type OutboundMessage struct {
	// ID is the destination-platform message identifier.
	ID string
	// Target is the destination where this message was delivered.
	Target OutboundTarget
}

// SendMessageRequest describes a new outbound text message.
type SendMessageRequest struct {
	// Target identifies where the message should be sent.
	Target OutboundTarget
	// Text is the message body.
	Text string
	// ReplyToMessageID optionally links this message as a reply.
	ReplyToMessageID string
	// AsBot marks the message as generated output rather than a direct reply.
	//
	// Triggered factoid text is always sent AsBot so that transports and
	// other bots can tell it apart from human speech and avoid feedback loops.
	AsBot bool
}

// Validate checks the request envelope before dispatch.
func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send message target: %w", err)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}

	return nil
}
