package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"factotum/pkg/factotum"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "factotum.db"))
	if err != nil {
		t.Fatalf("open store failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func TestEvaluateMatchesCaseInsensitive(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFactoid(ctx, `\bcookies\b`, "$who loves cookies", "alice"); err != nil {
		t.Fatalf("save factoid failed: %v", err)
	}

	match, matched, err := s.Evaluate(ctx, "I bought COOKIES today")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !matched {
		t.Fatal("expected trigger match")
	}
	if match.Factoid.Text != "$who loves cookies" {
		t.Fatalf("factoid text = %q, want $who loves cookies", match.Factoid.Text)
	}
	if match.Factoid.Author != "alice" {
		t.Fatalf("factoid author = %q, want alice", match.Factoid.Author)
	}
	if match.Matched != "COOKIES" {
		t.Fatalf("matched = %q, want COOKIES", match.Matched)
	}
	if match.Capture != "COOKIES" {
		t.Fatalf("capture = %q, want COOKIES", match.Capture)
	}

	_, matched, err = s.Evaluate(ctx, "nothing relevant here")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if matched {
		t.Fatal("expected no trigger match")
	}

	_, matched, err = s.Evaluate(ctx, "cookiesandcream")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if matched {
		t.Fatal("word boundary must not match inside a longer word")
	}
}

func TestEvaluateCaptureGroup(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFactoid(ctx, `my name is (\w+)`, "hello $what", ""); err != nil {
		t.Fatalf("save factoid failed: %v", err)
	}

	match, matched, err := s.Evaluate(ctx, "well, my name is Bob actually")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !matched {
		t.Fatal("expected trigger match")
	}
	if match.Matched != "my name is Bob" {
		t.Fatalf("matched = %q, want my name is Bob", match.Matched)
	}
	if match.Capture != "Bob" {
		t.Fatalf("capture = %q, want Bob", match.Capture)
	}
}

func TestEvaluateEmptyCaptureGroup(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFactoid(ctx, `give me(\s*)`, "took $what", ""); err != nil {
		t.Fatalf("save factoid failed: %v", err)
	}

	match, matched, err := s.Evaluate(ctx, "give me")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !matched {
		t.Fatal("expected trigger match")
	}
	if match.Capture != "" {
		t.Fatalf("capture = %q, want empty group preserved", match.Capture)
	}
	if match.Matched != "give me" {
		t.Fatalf("matched = %q, want give me", match.Matched)
	}
}

func TestEvaluateFirstRegisteredWins(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFactoid(ctx, `\btea\b`, "first response", ""); err != nil {
		t.Fatalf("save first factoid failed: %v", err)
	}
	if err := s.SaveFactoid(ctx, `tea time`, "second response", ""); err != nil {
		t.Fatalf("save second factoid failed: %v", err)
	}

	match, matched, err := s.Evaluate(ctx, "it is tea time")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !matched {
		t.Fatal("expected trigger match")
	}
	if match.Factoid.Text != "first response" {
		t.Fatalf("factoid text = %q, want first response", match.Factoid.Text)
	}
}

func TestEvaluateSkipsCooldownTriggers(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFactoid(ctx, `\btea\b`, "tea response", ""); err != nil {
		t.Fatalf("save factoid failed: %v", err)
	}
	match, matched, err := s.Evaluate(ctx, "tea please")
	if err != nil || !matched {
		t.Fatalf("initial evaluate = (%v, %v), want match", matched, err)
	}

	if err := s.SetCooldown(ctx, match.Trigger.ID, time.Now().UTC().Add(5*time.Minute)); err != nil {
		t.Fatalf("set cooldown failed: %v", err)
	}
	_, matched, err = s.Evaluate(ctx, "tea please")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if matched {
		t.Fatal("expected cooldown trigger to be skipped")
	}

	if err := s.SetCooldown(ctx, match.Trigger.ID, time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("reset cooldown failed: %v", err)
	}
	_, matched, err = s.Evaluate(ctx, "tea please")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !matched {
		t.Fatal("expected expired cooldown trigger to fire again")
	}
}

func TestSetCooldownUnknownTrigger(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	err := s.SetCooldown(context.Background(), 42, time.Now().UTC())
	if err == nil {
		t.Fatal("expected unknown trigger error")
	}
}

func TestSaveAliasSharesBaseFactoid(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFactoid(ctx, `\bcoffee\b`, "coffee is life", "bob"); err != nil {
		t.Fatalf("save factoid failed: %v", err)
	}
	if err := s.SaveAlias(ctx, `\bespresso\b`, "give me coffee"); err != nil {
		t.Fatalf("save alias failed: %v", err)
	}

	match, matched, err := s.Evaluate(ctx, "one espresso please")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !matched {
		t.Fatal("expected alias trigger match")
	}
	if !match.Trigger.IsAlias {
		t.Fatal("expected winning trigger to be the alias")
	}
	if match.Factoid.Text != "coffee is life" {
		t.Fatalf("factoid text = %q, want coffee is life", match.Factoid.Text)
	}
	if match.Factoid.Author != "bob" {
		t.Fatalf("factoid author = %q, want bob", match.Factoid.Author)
	}
}

func TestSaveAliasOfAliasResolvesToBase(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFactoid(ctx, `\bcoffee\b`, "coffee is life", ""); err != nil {
		t.Fatalf("save factoid failed: %v", err)
	}
	if err := s.SaveAlias(ctx, `\bespresso\b`, "coffee"); err != nil {
		t.Fatalf("save first alias failed: %v", err)
	}
	if err := s.SaveAlias(ctx, `\bristretto\b`, "espresso"); err != nil {
		t.Fatalf("save second alias failed: %v", err)
	}

	match, matched, err := s.Evaluate(ctx, "ristretto time")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !matched {
		t.Fatal("expected chained alias match")
	}
	if match.Factoid.Text != "coffee is life" {
		t.Fatalf("factoid text = %q, want coffee is life", match.Factoid.Text)
	}
}

func TestSaveAliasTargetNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	err := s.SaveAlias(context.Background(), `\bghost\b`, "matches nothing")
	if !errors.Is(err, factotum.ErrAliasTargetNotFound) {
		t.Fatalf("error = %v, want %v", err, factotum.ErrAliasTargetNotFound)
	}
}

func TestSaveFactoidUpdatesExisting(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveFactoid(ctx, `\btea\b`, "old response", "alice"); err != nil {
		t.Fatalf("save factoid failed: %v", err)
	}
	if err := s.SaveFactoid(ctx, `\btea\b`, "new response", "bob"); err != nil {
		t.Fatalf("update factoid failed: %v", err)
	}

	match, matched, err := s.Evaluate(ctx, "tea please")
	if err != nil || !matched {
		t.Fatalf("evaluate = (%v, %v), want match", matched, err)
	}
	if match.Factoid.Text != "new response" {
		t.Fatalf("factoid text = %q, want new response", match.Factoid.Text)
	}
	if match.Factoid.Author != "bob" {
		t.Fatalf("factoid author = %q, want bob", match.Factoid.Author)
	}
}

func TestSaveFactoidRejectsInvalidPattern(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	if err := s.SaveFactoid(context.Background(), `(unclosed`, "text", ""); err == nil {
		t.Fatal("expected invalid pattern error")
	}
}

func TestWordStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateIfAbsent(ctx, factotum.WordTypeItem, "cookie"); err != nil {
		t.Fatalf("create word failed: %v", err)
	}
	if err := s.CreateIfAbsent(ctx, factotum.WordTypeItem, "cookie"); err != nil {
		t.Fatalf("duplicate create word failed: %v", err)
	}
	if err := s.CreateIfAbsent(ctx, factotum.WordType("$color"), "blue"); err != nil {
		t.Fatalf("create color word failed: %v", err)
	}

	word, err := s.SampleByType(ctx, factotum.WordTypeItem)
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if word != "cookie" {
		t.Fatalf("word = %q, want cookie", word)
	}

	types, err := s.ListTypes(ctx)
	if err != nil {
		t.Fatalf("list types failed: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("types len = %d, want 2", len(types))
	}
	if types[0] != factotum.WordType("$color") || types[1] != factotum.WordTypeItem {
		t.Fatalf("types = %v, want [$color $item]", types)
	}

	_, err = s.SampleByType(ctx, factotum.WordType("$animal"))
	if !errors.Is(err, factotum.ErrNoWordOfType) {
		t.Fatalf("sample missing type error = %v, want %v", err, factotum.ErrNoWordOfType)
	}
}
