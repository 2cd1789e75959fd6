package telegram

import (
	"context"
	"fmt"
	"time"

	"factotum/pkg/factotum"
)

// Decoder converts Telegram update DTOs into neutral events.
type Decoder interface {
	// Decode maps one adapter update into a validated neutral event envelope.
	Decode(ctx context.Context, update Update) (*factotum.Event, error)
}

// DefaultDecoder provides default Telegram-to-neutral mappings.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram update into a neutral event.
func (d DefaultDecoder) Decode(_ context.Context, update Update) (*factotum.Event, error) {
	event := newBaseEvent(update)

	switch update.Type {
	case UpdateTypeMessage:
		event.Kind = factotum.EventKindMessageCreated
		message, err := decodeMessage(update.Message)
		if err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		event.Message = message
	case UpdateTypeMemberJoin, UpdateTypeMemberLeave:
		event.Kind = mapMembershipKind(update.Type)
		member, err := decodeMember(update.Type, update.Member)
		if err != nil {
			return nil, fmt.Errorf("decode member update: %w", err)
		}
		event.Member = member
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.Type, err)
	}

	return event, nil
}

// newBaseEvent builds the shared envelope fields used by all update mappings.
func newBaseEvent(update Update) *factotum.Event {
	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &factotum.Event{
		ID:         update.ID,
		OccurredAt: occurredAt,
		Source: factotum.EventSource{
			Platform: DriverPlatform,
		},
		Conversation: factotum.Conversation{
			ID:    update.Chat.ID,
			Type:  update.Chat.Type,
			Title: update.Chat.Title,
		},
		Actor: factotum.Actor{
			ID:          update.Actor.ID,
			Username:    update.Actor.Username,
			DisplayName: update.Actor.DisplayName,
			IsBot:       update.Actor.IsBot,
		},
		Metadata: update.Metadata,
	}
}

// decodeMessage maps Telegram message payload into neutral message content.
func decodeMessage(payload *MessagePayload) (*factotum.Message, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing message payload")
	}

	return &factotum.Message{
		ID:        payload.ID,
		ReplyToID: payload.ReplyToID,
		Text:      payload.Text,
	}, nil
}

// decodeMember maps join/leave transitions into neutral member changes.
func decodeMember(updateType UpdateType, payload *MemberPayload) (*factotum.MemberChange, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing member payload")
	}

	return &factotum.MemberChange{
		Action: mapMembershipKind(updateType),
		Member: mapActor(payload.Member),
	}, nil
}

// mapMembershipKind derives neutral kind from Telegram membership update type.
func mapMembershipKind(updateType UpdateType) factotum.EventKind {
	if updateType == UpdateTypeMemberLeave {
		return factotum.EventKindMemberLeft
	}

	return factotum.EventKindMemberJoined
}

// mapActor converts adapter actor references to neutral actor values.
func mapActor(actor ActorRef) factotum.Actor {
	return factotum.Actor{
		ID:          actor.ID,
		Username:    actor.Username,
		DisplayName: actor.DisplayName,
		IsBot:       actor.IsBot,
	}
}
