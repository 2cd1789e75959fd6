package facts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"factotum/pkg/factotum"
)

const (
	// roomSuppressWindow blocks further room triggering right after a fire.
	roomSuppressWindow = time.Second
	// cooldownBaseMinutes and cooldownJitterMinutes bound per-trigger cooldown.
	cooldownBaseMinutes   = 5
	cooldownJitterMinutes = 5
)

// tryTrigger evaluates one inbound message against the trigger store and
// answers with the resolved factoid when a trigger fires.
//
// Messages authored by bots never trigger. Room evaluation is serialized per
// room so that the suppression check and the suppression write act as one
// step under concurrent delivery.
func (m *Module) tryTrigger(ctx context.Context, event *factotum.Event) (bool, error) {
	if event.Actor.IsBot {
		return false, nil
	}

	isRoom := event.Conversation.IsRoom()
	if isRoom {
		unlock := m.rooms.lock(event.Conversation.ID)
		defer unlock()

		if m.limiter.suppressed(event.Conversation.ID, m.now()) {
			return false, nil
		}
	}

	match, matched, err := m.triggers.Evaluate(ctx, event.Message.Text)
	if err != nil {
		return false, fmt.Errorf("evaluate triggers: %w", err)
	}
	if !matched {
		return false, nil
	}

	now := m.now()
	cooldownUntil := now.Add(
		time.Duration(cooldownBaseMinutes+m.randInt(cooldownJitterMinutes)) * time.Minute,
	)
	if err := m.triggers.SetCooldown(ctx, match.Trigger.ID, cooldownUntil); err != nil {
		return false, fmt.Errorf("set trigger cooldown: %w", err)
	}

	if isRoom {
		m.limiter.suppress(event.Conversation.ID, now.Add(roomSuppressWindow))
	}

	// /explain reports the raw stored text, before placeholder resolution.
	m.sessions.record(sessionKey(event), firedInfo{
		factoidText: match.Factoid.Text,
		author:      match.Factoid.Author,
		pattern:     match.Trigger.Pattern,
		matched:     match.Matched,
	})

	capture := match.Capture
	output, err := m.resolve(ctx, match.Factoid.Text, resolveContext{
		triggerer:      event.Actor.Name(),
		capture:        &capture,
		conversationID: event.Conversation.ID,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "factoid resolution failed",
			slog.String("pattern", match.Trigger.Pattern),
			slog.Any("error", err),
		)

		return false, fmt.Errorf("resolve factoid: %w", err)
	}

	target, err := factotum.OutboundTargetFromEvent(event)
	if err != nil {
		return false, err
	}
	_, err = m.dispatcher.SendMessage(ctx, factotum.SendMessageRequest{
		Target: target,
		Text:   output,
		AsBot:  true,
	})
	if err != nil {
		return false, fmt.Errorf("send factoid: %w", err)
	}

	return true, nil
}
