package facts

import (
	"context"
	"fmt"
	"regexp"

	"factotum/pkg/factotum"
)

var (
	whoPattern       = regexp.MustCompile(`(?i)\$who`)
	whatPattern      = regexp.MustCompile(`(?i)\$what`)
	someonePattern   = regexp.MustCompile(`(?i)\$someone`)
	somethingPattern = regexp.MustCompile(`(?i)\$something`)
)

// resolveContext carries the per-message inputs for placeholder substitution.
type resolveContext struct {
	// triggerer is the display identity of whoever caused the output.
	triggerer string
	// capture is the $what substitution source; nil means $what stays literal.
	capture *string
	// conversationID scopes $someone roster draws.
	conversationID string
}

// resolve substitutes factoid placeholders in fixed order.
//
// Each step rewrites the text before the next runs, so a roster member name
// containing $something would itself be expanded by the later step, matching
// how the substitutions have always chained.
func (m *Module) resolve(ctx context.Context, raw string, rc resolveContext) (string, error) {
	// Literal replacement: a capture like "$100" must land verbatim, not be
	// expanded as a submatch reference.
	text := whoPattern.ReplaceAllLiteralString(raw, rc.triggerer)
	if rc.capture != nil {
		text = whatPattern.ReplaceAllLiteralString(text, *rc.capture)
	}

	text, err := m.resolveSomeone(ctx, text, rc.conversationID)
	if err != nil {
		return "", err
	}

	text, err = m.resolveWords(ctx, text, somethingPattern, factotum.WordTypeItem)
	if err != nil {
		return "", err
	}

	types, err := m.words.ListTypes(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve list word types: %w", err)
	}
	for _, wordType := range types {
		pattern, err := wordTypePattern(wordType)
		if err != nil {
			return "", err
		}
		text, err = m.resolveWords(ctx, text, pattern, wordType)
		if err != nil {
			return "", err
		}
	}

	return text, nil
}

// resolveSomeone replaces each $someone occurrence with an independent roster draw.
func (m *Module) resolveSomeone(ctx context.Context, text, conversationID string) (string, error) {
	for someonePattern.MatchString(text) {
		members, err := m.roster.MembersOf(ctx, conversationID)
		if err != nil {
			return "", fmt.Errorf("resolve $someone: %w", err)
		}
		if len(members) == 0 {
			return "", fmt.Errorf("resolve $someone: %w", factotum.ErrEmptyRoster)
		}

		member := members[m.randInt(len(members))]
		text = replaceFirst(text, someonePattern, member.Name())
	}

	return text, nil
}

// resolveWords replaces each occurrence of pattern with an independent word draw.
func (m *Module) resolveWords(
	ctx context.Context,
	text string,
	pattern *regexp.Regexp,
	wordType factotum.WordType,
) (string, error) {
	for pattern.MatchString(text) {
		word, err := m.words.SampleByType(ctx, wordType)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", wordType, err)
		}
		text = replaceFirst(text, pattern, word)
	}

	return text, nil
}

// replaceFirst rewrites only the first pattern occurrence, treating the
// replacement as literal text.
func replaceFirst(text string, pattern *regexp.Regexp, replacement string) string {
	location := pattern.FindStringIndex(text)
	if location == nil {
		return text
	}

	return text[:location[0]] + replacement + text[location[1]:]
}

func wordTypePattern(wordType factotum.WordType) (*regexp.Regexp, error) {
	pattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(string(wordType)))
	if err != nil {
		return nil, fmt.Errorf("compile word type pattern %s: %w", wordType, err)
	}

	return pattern, nil
}
