package factotum

import (
	"fmt"
	"time"
)

// EventKind identifies a neutral domain event type.
type EventKind string

const (
	// EventKindMessageCreated is emitted when a new message is posted.
	EventKindMessageCreated EventKind = "message.created"
	// EventKindCommandReceived is emitted for ordinary command invocations.
	EventKindCommandReceived EventKind = "command.received"
	// EventKindSystemCommandReceived is emitted for system command invocations.
	EventKindSystemCommandReceived EventKind = "system.command.received"
	// EventKindMemberJoined is emitted when a member joins a conversation.
	EventKindMemberJoined EventKind = "member.joined"
	// EventKindMemberLeft is emitted when a member leaves a conversation.
	EventKindMemberLeft EventKind = "member.left"
)

// Platform identifies an external chat platform source.
type Platform string

const (
	// PlatformTelegram is Telegram.
	PlatformTelegram Platform = "telegram"
	// PlatformChannel is the in-process channel transport used for local runs and tests.
	PlatformChannel Platform = "channel"
)

// ConversationType identifies conversation scope.
type ConversationType string

const (
	// ConversationTypePrivate is a direct/private conversation.
	ConversationTypePrivate ConversationType = "private"
	// ConversationTypeRoom is a multi-participant conversation.
	ConversationTypeRoom ConversationType = "room"
)

// EventSource identifies the concrete driver instance that produced an event.
type EventSource struct {
	// Platform identifies the upstream platform.
	Platform Platform
	// ID is the configured driver instance identifier.
	ID string
}

// Conversation identifies the neutral destination where an event occurred.
type Conversation struct {
	// ID is the stable conversation identifier on the source platform.
	ID string
	// Type describes the conversation scope.
	Type ConversationType
	// Title is a best-effort display label for the conversation.
	Title string
}

// IsRoom reports whether the conversation is a multi-participant room.
func (c Conversation) IsRoom() bool {
	return c.Type == ConversationTypeRoom
}

// Actor identifies the user/account that initiated an event.
type Actor struct {
	// ID is the stable actor identifier on the source platform.
	ID string
	// Username is the platform handle when available.
	Username string
	// DisplayName is the human-readable actor name.
	DisplayName string
	// IsBot reports whether the actor is an automated account.
	IsBot bool
}

// Name returns the best available human-readable identity for the actor.
func (a Actor) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Username != "" {
		return a.Username
	}

	return a.ID
}

// Message holds neutral message content.
type Message struct {
	// ID is the message identifier on the source platform.
	ID string
	// ReplyToID is the parent message identifier when this is a reply.
	ReplyToID string
	// Text is the normalized message text body.
	Text string
}

// MemberChange captures join/leave transitions.
type MemberChange struct {
	// Action is the member event kind (joined or left).
	Action EventKind
	// Member identifies the member affected by the transition.
	Member Actor
}

// Event is the neutral protocol envelope that all drivers publish and modules consume.
//
// Message, Command, and Member are optional payload branches selected by Kind.
type Event struct {
	// ID is a stable identifier for this event instance.
	ID string
	// Kind selects which payload branch is expected.
	Kind EventKind
	// OccurredAt is the source-platform timestamp for the event.
	OccurredAt time.Time
	// Source identifies the driver instance that produced the event.
	Source EventSource
	// Conversation identifies where the event happened.
	Conversation Conversation
	// Actor identifies who initiated the event when available.
	Actor Actor
	// Message carries message content for message and command events.
	Message *Message
	// Command carries the bound invocation for command events.
	Command *CommandInvocation
	// Member carries membership transitions.
	Member *MemberChange
	// Metadata stores optional driver-provided key/value context.
	Metadata map[string]string
}

// Validate checks event envelope and payload coherence.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	if e.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidEvent)
	}

	switch e.Kind {
	case EventKindMessageCreated:
		if e.Message == nil {
			return fmt.Errorf("%w: message.created requires message payload", ErrInvalidEvent)
		}
	case EventKindCommandReceived, EventKindSystemCommandReceived:
		if e.Command == nil {
			return fmt.Errorf("%w: command event requires command payload", ErrInvalidEvent)
		}
	case EventKindMemberJoined, EventKindMemberLeft:
		if e.Member == nil {
			return fmt.Errorf("%w: member event requires member payload", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}

	return nil
}
