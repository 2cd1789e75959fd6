package facts

import (
	"context"
	"errors"
	"testing"

	"factotum/pkg/factotum"
)

func TestResolveWhoReplacesEveryOccurrence(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t)
	out, err := fixture.module.resolve(context.Background(), "$who pokes $WHO", resolveContext{
		triggerer:      "Alice",
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != "Alice pokes Alice" {
		t.Fatalf("out = %q", out)
	}
}

func TestResolveWhatRequiresCapture(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t)

	out, err := fixture.module.resolve(context.Background(), "you said $what", resolveContext{
		triggerer:      "Alice",
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != "you said $what" {
		t.Fatalf("without capture out = %q, want placeholder kept", out)
	}

	capture := "cookies"
	out, err = fixture.module.resolve(context.Background(), "you said $what", resolveContext{
		triggerer:      "Alice",
		capture:        &capture,
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != "you said cookies" {
		t.Fatalf("with capture out = %q", out)
	}
}

func TestResolveInsertsDollarValuesVerbatim(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t)

	capture := "$100"
	out, err := fixture.module.resolve(context.Background(), "you said $what", resolveContext{
		triggerer:      "Alice",
		capture:        &capture,
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != "you said $100" {
		t.Fatalf("out = %q, want capture inserted verbatim", out)
	}

	out, err = fixture.module.resolve(context.Background(), "$who waves", resolveContext{
		triggerer:      "bill$ie",
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != "bill$ie waves" {
		t.Fatalf("out = %q, want triggerer inserted verbatim", out)
	}
}

func TestResolveSomeoneDrawsIndependently(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t, withRandInt(sequencedRand(0, 1)))
	fixture.roster.members = []factotum.Actor{
		{ID: "u1", DisplayName: "Alice"},
		{ID: "u2", DisplayName: "Bob"},
	}

	out, err := fixture.module.resolve(context.Background(), "$someone hugs $someone", resolveContext{
		triggerer:      "Carol",
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != "Alice hugs Bob" {
		t.Fatalf("out = %q, want independent draws", out)
	}
}

func TestResolveSomeoneFailsOnEmptyRoster(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t)

	_, err := fixture.module.resolve(context.Background(), "$someone waves", resolveContext{
		triggerer:      "Alice",
		conversationID: "room-1",
	})
	if !errors.Is(err, factotum.ErrEmptyRoster) {
		t.Fatalf("err = %v, want ErrEmptyRoster", err)
	}
}

func TestResolveSomethingDrawsItemWords(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t)
	fixture.words.words = map[factotum.WordType][]string{
		factotum.WordTypeItem: {"a pie", "a rock"},
	}

	out, err := fixture.module.resolve(context.Background(), "take $something and $something", resolveContext{
		triggerer:      "Alice",
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != "take a pie and a rock" {
		t.Fatalf("out = %q", out)
	}
}

func TestResolveCustomTypeTags(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t)
	fixture.words.words = map[factotum.WordType][]string{
		"$color":  {"red"},
		"$animal": {"fox"},
	}

	out, err := fixture.module.resolve(context.Background(), "a $color $animal", resolveContext{
		triggerer:      "Alice",
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != "a red fox" {
		t.Fatalf("out = %q", out)
	}
}

func TestResolveMissingWordTypeFails(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t)

	_, err := fixture.module.resolve(context.Background(), "grab $something", resolveContext{
		triggerer:      "Alice",
		conversationID: "room-1",
	})
	if !errors.Is(err, factotum.ErrNoWordOfType) {
		t.Fatalf("err = %v, want ErrNoWordOfType", err)
	}
}

func TestResolvePlainTextUnchanged(t *testing.T) {
	t.Parallel()

	fixture := newFactsFixture(t)
	fixture.words.words = map[factotum.WordType][]string{
		factotum.WordTypeItem: {"a pie"},
	}

	const raw = "nothing dynamic in here, not even dollars"
	out, err := fixture.module.resolve(context.Background(), raw, resolveContext{
		triggerer:      "Alice",
		conversationID: "room-1",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out != raw {
		t.Fatalf("out = %q, want input unchanged", out)
	}
}

func TestReplaceFirstKeepsLaterOccurrences(t *testing.T) {
	t.Parallel()

	out := replaceFirst("$someone and $someone", someonePattern, "Alice")
	if out != "Alice and $someone" {
		t.Fatalf("out = %q", out)
	}
}
