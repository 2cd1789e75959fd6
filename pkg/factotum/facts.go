package factotum

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Service registry keys for the factoid domain collaborators.
const (
	// ServiceTriggerStore is the canonical key for trigger/factoid persistence.
	ServiceTriggerStore = "factotum.trigger_store"
	// ServiceWordStore is the canonical key for vocabulary persistence.
	ServiceWordStore = "factotum.word_store"
	// ServiceRoster is the canonical key for room roster lookup.
	ServiceRoster = "factotum.roster"
)

var (
	// ErrNoWordOfType indicates that no word is registered for a requested type.
	ErrNoWordOfType = errors.New("factotum: no word of requested type")
	// ErrEmptyRoster indicates that a roster lookup returned no members.
	ErrEmptyRoster = errors.New("factotum: empty room roster")
	// ErrAliasTargetNotFound indicates that an alias target matched no trigger.
	ErrAliasTargetNotFound = errors.New("factotum: alias target matched no trigger")
)

// WordType is a vocabulary category tag such as "$color" or "$item".
type WordType string

// WordTypeItem is the default "thing" category.
const WordTypeItem WordType = "$item"

// NormalizeWordType canonicalizes one user-supplied type token.
//
// Tokens without the "$" prefix are not type tags (ok is false); the caller
// treats them as plain words. "$something" and bare "item" are common user
// typos for the default category and normalize to "$item".
func NormalizeWordType(token string) (wordType WordType, ok bool) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "item" {
		return WordTypeItem, true
	}
	if !strings.HasPrefix(trimmed, "$") || len(trimmed) < 2 {
		return "", false
	}
	if strings.EqualFold(trimmed, "$something") {
		return WordTypeItem, true
	}

	return WordType(trimmed), true
}

// Trigger is a registered pattern that fires a factoid.
type Trigger struct {
	// ID is the stable store-assigned trigger identifier.
	ID int64
	// Pattern is the stored regular expression source. Literal phrases are
	// persisted already wrapped in word-boundary anchors.
	Pattern string
	// IsAlias reports whether this trigger maps to another trigger's factoid.
	IsAlias bool
	// CooldownUntil suppresses the trigger until it passes; zero means armed.
	CooldownUntil time.Time
}

// Factoid is the stored response text linked to a base trigger.
type Factoid struct {
	// Text is the raw response body, possibly containing placeholders.
	Text string
	// Author is the creator identity when known.
	Author string
}

// TriggerMatch is one successful trigger evaluation result.
type TriggerMatch struct {
	// Trigger is the winning trigger (the alias itself when an alias hit).
	Trigger Trigger
	// Factoid is the response of the base trigger after alias resolution.
	Factoid Factoid
	// Matched is the full matched substring of the message.
	Matched string
	// Capture is the first capturing group when the pattern declares one,
	// otherwise the full matched substring. Used for $what substitution.
	Capture string
}

// TriggerStore persists triggers and factoids and evaluates messages.
//
// Evaluate considers only triggers whose cooldown has passed and must apply a
// fixed, documented tie-break when several triggers match at once.
type TriggerStore interface {
	// Evaluate returns at most one match for the message text.
	Evaluate(ctx context.Context, messageText string) (match *TriggerMatch, matched bool, err error)
	// SaveFactoid registers or updates a base trigger with its response text.
	SaveFactoid(ctx context.Context, pattern, text, author string) error
	// SaveAlias registers a trigger that shares the factoid of whichever
	// existing trigger matches targetText.
	SaveAlias(ctx context.Context, pattern, targetText string) error
	// SetCooldown suppresses one trigger until the given time.
	SetCooldown(ctx context.Context, triggerID int64, until time.Time) error
}

// WordStore persists categorized vocabulary words.
type WordStore interface {
	// SampleByType returns one uniformly random word of the given type.
	SampleByType(ctx context.Context, wordType WordType) (string, error)
	// ListTypes enumerates every registered type tag.
	ListTypes(ctx context.Context) ([]WordType, error)
	// CreateIfAbsent registers a (type, word) pair idempotently.
	CreateIfAbsent(ctx context.Context, wordType WordType, word string) error
}

// RosterService resolves current participants of a conversation.
type RosterService interface {
	// MembersOf returns the ordered member list of one conversation.
	MembersOf(ctx context.Context, conversationID string) ([]Actor, error)
}
