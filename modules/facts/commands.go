package facts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"factotum/pkg/factotum"
)

var (
	// ErrTriggerTooShort rejects triggers below the minimum length.
	ErrTriggerTooShort = errors.New("facts: trigger too short")
	// ErrMissingArgument rejects commands invoked without their required tail.
	ErrMissingArgument = errors.New("facts: missing command argument")
)

// Minimum trigger lengths before persistence. Regex triggers count their
// slash delimiters, matching how they arrive from the user.
const (
	minLiteralTriggerLen = 3
	minRegexTriggerLen   = 5
)

// handleCommand routes one bound command invocation to its handler.
func (m *Module) handleCommand(ctx context.Context, event *factotum.Event) error {
	if event == nil || event.Command == nil {
		return nil
	}

	switch event.Command.Name {
	case learnCommandName:
		return m.handleLearn(ctx, event)
	case sayCommandName:
		return m.handleSay(ctx, event)
	case explainCommandName:
		return m.handleExplain(ctx, event)
	case haveCommandName:
		return m.handleHave(ctx, event)
	default:
		return nil
	}
}

// handleLearn registers a trigger or an alias from the command tail.
func (m *Module) handleLearn(ctx context.Context, event *factotum.Event) error {
	tokens := event.Command.Tokens

	isAlias := false
	if len(tokens) > 0 && tokens[0] == "alias" {
		isAlias = true
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return m.replyValidation(ctx, event,
			"Tell me what to learn: /learn [alias] <trigger> <response>",
			ErrMissingArgument,
		)
	}

	trigger := tokens[0]
	text := strings.Join(tokens[1:], " ")
	if text == "" {
		return m.replyValidation(ctx, event,
			fmt.Sprintf("What should %q trigger? Give me a response too.", trigger),
			ErrMissingArgument,
		)
	}

	pattern, err := compileTriggerPattern(trigger)
	if err != nil {
		return m.replyValidation(ctx, event, "That trigger is too short.", err)
	}

	if isAlias {
		err = m.triggers.SaveAlias(ctx, pattern, text)
	} else {
		err = m.triggers.SaveFactoid(ctx, pattern, text, event.Actor.Name())
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "learn failed",
			slog.String("pattern", pattern),
			slog.Bool("alias", isAlias),
			slog.Any("error", err),
		)
		if replyErr := m.reply(ctx, event, "Something went wrong while learning that."); replyErr != nil {
			return replyErr
		}

		return fmt.Errorf("learn %q: %w", trigger, err)
	}

	return m.reply(ctx, event, fmt.Sprintf("Learned %q: %s", trigger, text))
}

// compileTriggerPattern converts the user-supplied trigger into the stored
// regular expression source.
//
// Triggers starting with "/" are raw regular expressions with their slashes
// stripped; literal phrases get word-boundary anchors so "cat" does not fire
// inside "concatenate".
func compileTriggerPattern(trigger string) (string, error) {
	if strings.HasPrefix(trigger, "/") {
		if len(trigger) < minRegexTriggerLen {
			return "", fmt.Errorf("regex trigger %q: %w", trigger, ErrTriggerTooShort)
		}

		return strings.ReplaceAll(trigger, "/", ""), nil
	}

	if len(trigger) < minLiteralTriggerLen {
		return "", fmt.Errorf("literal trigger %q: %w", trigger, ErrTriggerTooShort)
	}

	return `\b` + trigger + `\b`, nil
}

// handleSay resolves placeholders in the tail and speaks it as bot output.
func (m *Module) handleSay(ctx context.Context, event *factotum.Event) error {
	text := strings.TrimSpace(event.Command.Value)
	if text == "" {
		return m.replyValidation(ctx, event, "Say what?", ErrMissingArgument)
	}

	output, err := m.resolve(ctx, text, resolveContext{
		triggerer:      event.Actor.Name(),
		capture:        nil,
		conversationID: event.Conversation.ID,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "say resolution failed", slog.Any("error", err))

		return fmt.Errorf("say: %w", err)
	}

	target, err := factotum.OutboundTargetFromEvent(event)
	if err != nil {
		return err
	}
	_, err = m.dispatcher.SendMessage(ctx, factotum.SendMessageRequest{
		Target: target,
		Text:   output,
		AsBot:  true,
	})
	if err != nil {
		return fmt.Errorf("say: %w", err)
	}

	return nil
}

// handleExplain reports the last factoid fired in this conversation.
func (m *Module) handleExplain(ctx context.Context, event *factotum.Event) error {
	primaryKey := event.Actor.ID
	if event.Conversation.IsRoom() {
		primaryKey = event.Conversation.ID
	}

	return m.reply(ctx, event, m.sessions.explain(primaryKey, event.Actor.ID))
}

// handleHave adds one word to the vocabulary.
func (m *Module) handleHave(ctx context.Context, event *factotum.Event) error {
	tokens := event.Command.Tokens
	if len(tokens) == 0 {
		return m.replyValidation(ctx, event,
			"Give me a word: /have [$type] <word>",
			ErrMissingArgument,
		)
	}

	wordType, ok := factotum.NormalizeWordType(tokens[0])
	if ok {
		tokens = tokens[1:]
	} else {
		wordType = factotum.WordTypeItem
	}

	word := strings.Join(tokens, " ")
	if word == "" {
		return m.replyValidation(ctx, event,
			fmt.Sprintf("Give me a word to add to the %s list.", wordType),
			ErrMissingArgument,
		)
	}

	if err := m.words.CreateIfAbsent(ctx, wordType, word); err != nil {
		m.logger.ErrorContext(ctx, "have failed",
			slog.String("word_type", string(wordType)),
			slog.String("word", word),
			slog.Any("error", err),
		)
		if replyErr := m.reply(ctx, event, "Something went wrong while adding that word."); replyErr != nil {
			return replyErr
		}

		return fmt.Errorf("have %q: %w", word, err)
	}

	if wordType == factotum.WordTypeItem {
		return m.reply(ctx, event, fmt.Sprintf("Thanks for %s!", word))
	}

	return m.reply(ctx, event, fmt.Sprintf("Adding %s to %s list.", word, wordType))
}

// reply sends a plain conversational reply back to the command's conversation.
func (m *Module) reply(ctx context.Context, event *factotum.Event, text string) error {
	target, err := factotum.OutboundTargetFromEvent(event)
	if err != nil {
		return err
	}

	_, err = m.dispatcher.SendMessage(ctx, factotum.SendMessageRequest{
		Target: target,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}

	return nil
}

// replyValidation reports a validation problem back to the user.
//
// Validation failures are user mistakes, not handler failures, so after the
// reply is delivered the handler reports success to the bus.
func (m *Module) replyValidation(ctx context.Context, event *factotum.Event, text string, cause error) error {
	m.logger.DebugContext(ctx, "command rejected",
		slog.String("command", event.Command.Name),
		slog.Any("reason", cause),
	)

	return m.reply(ctx, event, text)
}
