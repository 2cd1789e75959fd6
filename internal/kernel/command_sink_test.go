package kernel

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"factotum/pkg/factotum"
)

func TestCommandDerivingSinkPublishesSourceAndDerivedCommandEvent(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	received := make(chan *factotum.Event, 2)
	_, err := bus.Subscribe(
		context.Background(),
		factotum.InterestSet{},
		factotum.SubscriptionSpec{Name: "all-events", Buffer: 4, Workers: 1},
		func(_ context.Context, event *factotum.Event) error {
			received <- event
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	sink := &commandDerivingSink{
		base: bus,
		lookupCommand: func(prefix factotum.CommandPrefix, name string) (factotum.CommandSpec, bool) {
			if prefix == factotum.CommandPrefixOrdinary && name == "learn" {
				return factotum.CommandSpec{Prefix: factotum.CommandPrefixOrdinary, Name: "learn"}, true
			}
			return factotum.CommandSpec{}, false
		},
		serviceLookup: NewServiceRegistry(),
	}

	source := newSourceMessageEvent("evt-1", "msg-1", "/learn cookies are delicious")
	if err := sink.Publish(context.Background(), source); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	first := waitEvent(t, received)
	second := waitEvent(t, received)

	if first.Kind != factotum.EventKindMessageCreated {
		t.Fatalf("first kind = %s, want %s", first.Kind, factotum.EventKindMessageCreated)
	}
	if second.Kind != factotum.EventKindCommandReceived {
		t.Fatalf("second kind = %s, want %s", second.Kind, factotum.EventKindCommandReceived)
	}
	if second.Command == nil {
		t.Fatal("expected command payload")
	}
	if second.Command.Name != "learn" {
		t.Fatalf("command name = %q, want learn", second.Command.Name)
	}
	if second.Command.Value != "cookies are delicious" {
		t.Fatalf("command value = %q, want cookies are delicious", second.Command.Value)
	}
	if second.Command.SourceEventID != source.ID {
		t.Fatalf("source event id = %q, want %q", second.Command.SourceEventID, source.ID)
	}
	if second.Message == nil || second.Message.ID != "msg-1" {
		t.Fatalf("message = %+v, want id msg-1", second.Message)
	}
}

func TestCommandDerivingSinkDerivesSystemCommandKind(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	received := make(chan *factotum.Event, 1)
	_, err := bus.Subscribe(
		context.Background(),
		factotum.InterestSet{Kinds: []factotum.EventKind{factotum.EventKindSystemCommandReceived}},
		factotum.SubscriptionSpec{Name: "system-command-events", Buffer: 2, Workers: 1},
		func(_ context.Context, event *factotum.Event) error {
			received <- event
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	sink := &commandDerivingSink{
		base: bus,
		lookupCommand: func(prefix factotum.CommandPrefix, name string) (factotum.CommandSpec, bool) {
			if prefix == factotum.CommandPrefixSystem && name == "shutdown" {
				return factotum.CommandSpec{Prefix: factotum.CommandPrefixSystem, Name: "shutdown"}, true
			}
			return factotum.CommandSpec{}, false
		},
		serviceLookup: NewServiceRegistry(),
	}

	source := newSourceMessageEvent("evt-2", "msg-9", "~shutdown")
	if err := sink.Publish(context.Background(), source); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	commandEvent := waitEvent(t, received)
	if commandEvent.Kind != factotum.EventKindSystemCommandReceived {
		t.Fatalf("kind = %s, want %s", commandEvent.Kind, factotum.EventKindSystemCommandReceived)
	}
	if commandEvent.Command == nil || commandEvent.Command.Name != "shutdown" {
		t.Fatalf("command = %+v, want shutdown", commandEvent.Command)
	}
}

func TestCommandDerivingSinkUnregisteredCommandPublishesOnlySourceEvent(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	commandEvents := make(chan *factotum.Event, 1)
	_, err := bus.Subscribe(
		context.Background(),
		factotum.InterestSet{Kinds: []factotum.EventKind{factotum.EventKindCommandReceived}},
		factotum.SubscriptionSpec{Name: "command-events", Buffer: 1, Workers: 1},
		func(_ context.Context, event *factotum.Event) error {
			commandEvents <- event
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	sink := &commandDerivingSink{
		base: bus,
		lookupCommand: func(factotum.CommandPrefix, string) (factotum.CommandSpec, bool) {
			return factotum.CommandSpec{}, false
		},
		serviceLookup: NewServiceRegistry(),
	}

	if err := sink.Publish(context.Background(), newSourceMessageEvent("evt-3", "msg-3", "/forget it")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-commandEvents:
		t.Fatalf("unexpected command event: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestCommandDerivingSinkParseErrorRepliesAndSkipsDerivedEvent(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	commandEvents := make(chan *factotum.Event, 1)
	_, err := bus.Subscribe(
		context.Background(),
		factotum.InterestSet{Kinds: []factotum.EventKind{factotum.EventKindCommandReceived}},
		factotum.SubscriptionSpec{Name: "command-events", Buffer: 1, Workers: 1},
		func(_ context.Context, event *factotum.Event) error {
			commandEvents <- event
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	dispatcher := &commandReplyCaptureDispatcher{}
	services := NewServiceRegistry()
	if err := services.Register(factotum.ServiceOutboundDispatcher, dispatcher); err != nil {
		t.Fatalf("register dispatcher failed: %v", err)
	}

	sink := &commandDerivingSink{
		base: bus,
		lookupCommand: func(factotum.CommandPrefix, string) (factotum.CommandSpec, bool) {
			return factotum.CommandSpec{
				Prefix: factotum.CommandPrefixOrdinary,
				Name:   "learn",
				Usage:  "/learn <trigger> is|are <response>",
			}, true
		},
		serviceLookup: services,
	}

	if err := sink.Publish(context.Background(), newSourceMessageEvent("evt-4", "msg-4", "/")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if dispatcher.calls.Load() != 1 {
		t.Fatalf("reply calls = %d, want 1", dispatcher.calls.Load())
	}
	if !strings.Contains(dispatcher.lastRequest.Text, "missing command name") {
		t.Fatalf("reply text = %q, want missing command name hint", dispatcher.lastRequest.Text)
	}
	if !strings.Contains(dispatcher.lastRequest.Text, "/learn <trigger>") {
		t.Fatalf("reply text = %q, want usage line", dispatcher.lastRequest.Text)
	}
	if dispatcher.lastRequest.ReplyToMessageID != "msg-4" {
		t.Fatalf("reply_to = %q, want msg-4", dispatcher.lastRequest.ReplyToMessageID)
	}

	select {
	case event := <-commandEvents:
		t.Fatalf("unexpected derived command event: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestKernelRegisterModuleRejectsDuplicateCommandAcrossModules(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	t.Cleanup(func() {
		_ = kernelRuntime.EventBus().Close(context.Background())
	})
	moduleA := &stubModule{
		name: "command-a",
		spec: factotum.ModuleSpec{
			Commands: []factotum.CommandSpec{
				{Prefix: factotum.CommandPrefixOrdinary, Name: "learn"},
			},
		},
	}
	moduleB := &stubModule{
		name: "command-b",
		spec: factotum.ModuleSpec{
			Commands: []factotum.CommandSpec{
				{Prefix: factotum.CommandPrefixOrdinary, Name: "learn"},
			},
		},
	}

	if err := kernelRuntime.RegisterModule(context.Background(), moduleA); err != nil {
		t.Fatalf("register module A failed: %v", err)
	}
	err := kernelRuntime.RegisterModule(context.Background(), moduleB)
	if err == nil {
		t.Fatal("expected duplicate command registration to fail")
	}
	if !strings.Contains(err.Error(), "already registered by module") {
		t.Fatalf("error = %v, want duplicate registration error", err)
	}
}

func waitEvent(t *testing.T, events <-chan *factotum.Event) *factotum.Event {
	t.Helper()

	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func newSourceMessageEvent(id string, messageID string, text string) *factotum.Event {
	return &factotum.Event{
		ID:         id,
		Kind:       factotum.EventKindMessageCreated,
		OccurredAt: time.Unix(10, 0).UTC(),
		Source:     factotum.EventSource{Platform: factotum.PlatformTelegram, ID: "tg-main"},
		Conversation: factotum.Conversation{
			ID:   "room-1",
			Type: factotum.ConversationTypeRoom,
		},
		Actor: factotum.Actor{ID: "actor-1"},
		Message: &factotum.Message{
			ID:   messageID,
			Text: text,
		},
	}
}

type commandReplyCaptureDispatcher struct {
	calls       atomic.Int64
	mu          sync.Mutex
	lastRequest factotum.SendMessageRequest
}

func (d *commandReplyCaptureDispatcher) SendMessage(
	_ context.Context,
	request factotum.SendMessageRequest,
) (*factotum.OutboundMessage, error) {
	d.calls.Add(1)
	d.mu.Lock()
	d.lastRequest = request
	d.mu.Unlock()

	return &factotum.OutboundMessage{ID: "out-1", Target: request.Target}, nil
}

var _ factotum.OutboundDispatcher = (*commandReplyCaptureDispatcher)(nil)
