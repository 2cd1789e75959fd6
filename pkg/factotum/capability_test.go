package factotum

import "testing"

func TestInterestSetMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interest InterestSet
		event    *Event
		want     bool
	}{
		{
			name: "require message matches when message is present",
			interest: InterestSet{
				Kinds:          []EventKind{EventKindMessageCreated},
				RequireMessage: true,
			},
			event: &Event{
				Kind:    EventKindMessageCreated,
				Message: &Message{ID: "m1", Text: "hello"},
			},
			want: true,
		},
		{
			name: "require message rejects missing message",
			interest: InterestSet{
				Kinds:          []EventKind{EventKindMessageCreated},
				RequireMessage: true,
			},
			event: &Event{
				Kind: EventKindMessageCreated,
			},
			want: false,
		},
		{
			name: "require message rejects nil event",
			interest: InterestSet{
				RequireMessage: true,
			},
			event: nil,
			want:  false,
		},
		{
			name: "kind filter rejects other kinds",
			interest: InterestSet{
				Kinds: []EventKind{EventKindMessageCreated},
			},
			event: &Event{
				Kind:   EventKindMemberJoined,
				Member: &MemberChange{Action: EventKindMemberJoined},
			},
			want: false,
		},
		{
			name: "require command and command name matches",
			interest: InterestSet{
				Kinds:          []EventKind{EventKindCommandReceived},
				RequireCommand: true,
				CommandNames:   []string{"learn"},
			},
			event: &Event{
				Kind:    EventKindCommandReceived,
				Command: &CommandInvocation{Name: "learn"},
			},
			want: true,
		},
		{
			name: "command name mismatch rejects",
			interest: InterestSet{
				Kinds:          []EventKind{EventKindCommandReceived},
				RequireCommand: true,
				CommandNames:   []string{"learn"},
			},
			event: &Event{
				Kind:    EventKindCommandReceived,
				Command: &CommandInvocation{Name: "say"},
			},
			want: false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := testCase.interest.Matches(testCase.event)
			if got != testCase.want {
				t.Fatalf("matches = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestInterestSetAllows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		allowed   InterestSet
		filter    InterestSet
		wantAllow bool
	}{
		{
			name: "require message allows equal strictness",
			allowed: InterestSet{
				Kinds:          []EventKind{EventKindMessageCreated},
				RequireMessage: true,
			},
			filter: InterestSet{
				Kinds:          []EventKind{EventKindMessageCreated},
				RequireMessage: true,
			},
			wantAllow: true,
		},
		{
			name: "require message rejects weaker filter",
			allowed: InterestSet{
				Kinds:          []EventKind{EventKindMessageCreated},
				RequireMessage: true,
			},
			filter: InterestSet{
				Kinds: []EventKind{EventKindMessageCreated},
			},
			wantAllow: false,
		},
		{
			name: "command names allow subset",
			allowed: InterestSet{
				Kinds:        []EventKind{EventKindCommandReceived},
				CommandNames: []string{"learn", "say", "explain", "have"},
			},
			filter: InterestSet{
				Kinds:        []EventKind{EventKindCommandReceived},
				CommandNames: []string{"learn"},
			},
			wantAllow: true,
		},
		{
			name: "command names reject superset",
			allowed: InterestSet{
				Kinds:        []EventKind{EventKindCommandReceived},
				CommandNames: []string{"learn"},
			},
			filter: InterestSet{
				Kinds:        []EventKind{EventKindCommandReceived},
				CommandNames: []string{"learn", "forget"},
			},
			wantAllow: false,
		},
		{
			name: "require command rejects weaker filter",
			allowed: InterestSet{
				Kinds:          []EventKind{EventKindCommandReceived},
				RequireCommand: true,
			},
			filter: InterestSet{
				Kinds: []EventKind{EventKindCommandReceived},
			},
			wantAllow: false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := testCase.allowed.Allows(testCase.filter)
			if got != testCase.wantAllow {
				t.Fatalf("allows = %v, want %v", got, testCase.wantAllow)
			}
		})
	}
}

func TestNewDefaultSubscriptionSpec(t *testing.T) {
	t.Parallel()

	spec := NewDefaultSubscriptionSpec("facts-listener")
	if spec.Name != "facts-listener" {
		t.Fatalf("name = %s, want facts-listener", spec.Name)
	}
	if spec.Buffer != 0 {
		t.Fatalf("buffer = %d, want 0", spec.Buffer)
	}
	if spec.Workers != 0 {
		t.Fatalf("workers = %d, want 0", spec.Workers)
	}
	if spec.HandlerTimeout != 0 {
		t.Fatalf("handler timeout = %s, want 0", spec.HandlerTimeout)
	}
	if spec.Backpressure != "" {
		t.Fatalf("backpressure = %q, want empty", spec.Backpressure)
	}
}
