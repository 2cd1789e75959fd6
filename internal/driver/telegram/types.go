package telegram

import (
	"time"

	"factotum/pkg/factotum"
)

const (
	// DriverType is the configured driver type token for the Telegram runtime.
	DriverType = "telegram"
	// DriverPlatform is the neutral platform produced by the Telegram runtime.
	DriverPlatform factotum.Platform = factotum.PlatformTelegram
)

// UpdateType identifies the Telegram update semantic category.
type UpdateType string

const (
	// UpdateTypeMessage identifies new message updates.
	UpdateTypeMessage UpdateType = "message"
	// UpdateTypeMemberJoin identifies member join updates.
	UpdateTypeMemberJoin UpdateType = "member_join"
	// UpdateTypeMemberLeave identifies member leave updates.
	UpdateTypeMemberLeave UpdateType = "member_leave"
)

// Update is the Telegram adapter's internal DTO before neutral decoding.
type Update struct {
	ID         string
	Type       UpdateType
	OccurredAt time.Time
	Chat       ChatRef
	Actor      ActorRef
	Message    *MessagePayload
	Member     *MemberPayload
	Metadata   map[string]string
}

// ChatRef identifies Telegram chat context.
type ChatRef struct {
	ID    string
	Title string
	Type  factotum.ConversationType
}

// ActorRef identifies Telegram actor context.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// MessagePayload represents a Telegram message projection.
type MessagePayload struct {
	ID        string
	ReplyToID string
	Text      string
}

// MemberPayload captures join/leave transitions.
type MemberPayload struct {
	Member ActorRef
	Reason string
}
