// Package facts implements the factoid-trigger engine: it watches room
// traffic for registered trigger patterns and answers with stored factoids
// after resolving their placeholders.
package facts

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"factotum/pkg/factotum"
)

const (
	learnCommandName   = "learn"
	sayCommandName     = "say"
	explainCommandName = "explain"
	haveCommandName    = "have"
)

// Module wires trigger matching, placeholder resolution, and the four
// factoid commands into the kernel.
type Module struct {
	logger *slog.Logger

	dispatcher factotum.OutboundDispatcher
	triggers   factotum.TriggerStore
	words      factotum.WordStore
	roster     factotum.RosterService

	now     func() time.Time
	randInt func(n int) int

	sessions *sessionTracker
	limiter  *rateLimiter
	rooms    *keyedMutex
}

// Option mutates facts module configuration.
type Option func(*Module)

// WithLogger configures structured logging for the module.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// withClock overrides time observation in tests.
func withClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

// withRandInt overrides random draws in tests.
func withRandInt(randInt func(n int) int) Option {
	return func(m *Module) {
		if randInt != nil {
			m.randInt = randInt
		}
	}
}

// New creates a facts module with default configuration.
func New(options ...Option) *Module {
	module := &Module{
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		randInt:  rand.IntN,
		sessions: newSessionTracker(),
		limiter:  newRateLimiter(),
		rooms:    newKeyedMutex(),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "facts"
}

// Spec declares the message listener and the factoid command surface.
func (m *Module) Spec() factotum.ModuleSpec {
	return factotum.ModuleSpec{
		Handlers: []factotum.ModuleHandler{
			{
				Capability: factotum.Capability{
					Name:        "facts-message-listener",
					Description: "matches inbound messages against registered triggers",
					Interest: factotum.InterestSet{
						Kinds:          []factotum.EventKind{factotum.EventKindMessageCreated},
						RequireMessage: true,
					},
					RequiredServices: []string{
						factotum.ServiceOutboundDispatcher,
						factotum.ServiceTriggerStore,
						factotum.ServiceWordStore,
						factotum.ServiceRoster,
					},
				},
				Subscription: factotum.NewDefaultSubscriptionSpec("facts-messages"),
				Handler:      m.handleMessage,
			},
			{
				Capability: factotum.Capability{
					Name:        "facts-command-handler",
					Description: "handles learn/say/explain/have factoid commands",
					Interest: factotum.InterestSet{
						Kinds:          []factotum.EventKind{factotum.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames: []string{
							learnCommandName,
							sayCommandName,
							explainCommandName,
							haveCommandName,
						},
					},
					RequiredServices: []string{
						factotum.ServiceOutboundDispatcher,
						factotum.ServiceTriggerStore,
						factotum.ServiceWordStore,
						factotum.ServiceRoster,
					},
				},
				Subscription: factotum.NewDefaultSubscriptionSpec("facts-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []factotum.CommandSpec{
			{
				Prefix:      factotum.CommandPrefixOrdinary,
				Name:        learnCommandName,
				Usage:       "/learn [alias] <trigger> <response...>",
				Description: "register a trigger phrase or /regex/ with its factoid response",
			},
			{
				Prefix:      factotum.CommandPrefixOrdinary,
				Name:        sayCommandName,
				Usage:       "/say <text...>",
				Description: "speak text after resolving factoid placeholders",
			},
			{
				Prefix:      factotum.CommandPrefixOrdinary,
				Name:        explainCommandName,
				Description: "explain the last factoid that fired here",
			},
			{
				Prefix:      factotum.CommandPrefixOrdinary,
				Name:        haveCommandName,
				Usage:       "/have [$type] <word...>",
				Description: "add a word to the vocabulary used by placeholders",
			},
		},
	}
}

// OnRegister resolves the stores and transport this module depends on.
func (m *Module) OnRegister(_ context.Context, runtime factotum.ModuleRuntime) error {
	dispatcher, err := factotum.ResolveAs[factotum.OutboundDispatcher](
		runtime.Services(),
		factotum.ServiceOutboundDispatcher,
	)
	if err != nil {
		return fmt.Errorf("facts resolve outbound dispatcher: %w", err)
	}
	triggers, err := factotum.ResolveAs[factotum.TriggerStore](
		runtime.Services(),
		factotum.ServiceTriggerStore,
	)
	if err != nil {
		return fmt.Errorf("facts resolve trigger store: %w", err)
	}
	words, err := factotum.ResolveAs[factotum.WordStore](
		runtime.Services(),
		factotum.ServiceWordStore,
	)
	if err != nil {
		return fmt.Errorf("facts resolve word store: %w", err)
	}
	roster, err := factotum.ResolveAs[factotum.RosterService](
		runtime.Services(),
		factotum.ServiceRoster,
	)
	if err != nil {
		return fmt.Errorf("facts resolve roster service: %w", err)
	}

	m.dispatcher = dispatcher
	m.triggers = triggers
	m.words = words
	m.roster = roster

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

// handleMessage runs trigger matching for every inbound message.
func (m *Module) handleMessage(ctx context.Context, event *factotum.Event) error {
	if event == nil || event.Message == nil {
		return nil
	}
	if event.Kind != factotum.EventKindMessageCreated {
		return nil
	}
	// Command-shaped messages go through the command path; "/learn cookies ..."
	// must not fire a "cookies" trigger on the way in.
	if _, isCommand, _ := factotum.ParseCommandCandidate(event.Message.Text); isCommand {
		return nil
	}

	fired, err := m.tryTrigger(ctx, event)
	if err != nil {
		return fmt.Errorf("facts handle message: %w", err)
	}
	if fired {
		m.logger.InfoContext(ctx, "factoid fired",
			slog.String("conversation", event.Conversation.ID),
			slog.String("actor", event.Actor.Name()),
		)
	}

	return nil
}

// sessionKey returns the /explain lookup key for one event.
//
// Rooms track per-room sessions; private chats track per-user sessions.
func sessionKey(event *factotum.Event) string {
	if event.Conversation.IsRoom() {
		return event.Conversation.ID
	}

	return event.Actor.ID
}

var (
	_ factotum.Module          = (*Module)(nil)
	_ factotum.ModuleRegistrar = (*Module)(nil)
)
