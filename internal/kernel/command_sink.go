package kernel

import (
	"context"
	"fmt"
	"strings"

	"factotum/pkg/factotum"
)

type commandRegistration struct {
	moduleName string
	spec       factotum.CommandSpec
}

// registerModuleCommands validates and registers module-owned command specs.
func (k *Kernel) registerModuleCommands(
	_ context.Context,
	moduleName string,
	commands []factotum.CommandSpec,
) error {
	if len(commands) == 0 {
		return nil
	}

	normalized := make([]factotum.CommandSpec, 0, len(commands))
	seenInModule := make(map[string]struct{}, len(commands))
	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("register command[%d] for module %s: %w", index, moduleName, err)
		}

		command.Name = normalizeCommandName(command.Name)
		key := commandRegistryKey(command.Prefix, command.Name)
		if _, exists := seenInModule[key]; exists {
			return fmt.Errorf(
				"register command %s%s for module %s: duplicate declaration",
				command.Prefix,
				command.Name,
				moduleName,
			)
		}
		seenInModule[key] = struct{}{}
		normalized = append(normalized, command)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, command := range normalized {
		key := commandRegistryKey(command.Prefix, command.Name)
		existing, exists := k.commands[key]
		if exists {
			return fmt.Errorf(
				"register command %s%s for module %s: already registered by module %s",
				command.Prefix,
				command.Name,
				moduleName,
				existing.moduleName,
			)
		}
	}
	for _, command := range normalized {
		key := commandRegistryKey(command.Prefix, command.Name)
		k.commands[key] = commandRegistration{
			moduleName: moduleName,
			spec:       command,
		}
	}

	return nil
}

// unregisterModuleCommands removes every command owned by one module.
func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, registration := range k.commands {
		if registration.moduleName == moduleName {
			delete(k.commands, key)
		}
	}
}

// lookupCommand resolves one command spec by prefix + normalized name.
func (k *Kernel) lookupCommand(prefix factotum.CommandPrefix, name string) (factotum.CommandSpec, bool) {
	key := commandRegistryKey(prefix, name)

	k.mu.RLock()
	registration, exists := k.commands[key]
	k.mu.RUnlock()
	if !exists {
		return factotum.CommandSpec{}, false
	}

	return registration.spec, true
}

// newDriverEventSink creates the source-event sink wrapped with command derivation.
func (k *Kernel) newDriverEventSink() factotum.EventDispatcher {
	return &commandDerivingSink{
		base:          k.bus,
		lookupCommand: k.lookupCommand,
		serviceLookup: k.services,
		reportAsync:   k.cfg.onAsyncError,
	}
}

// commandDerivingSink publishes driver source events and derives command events.
//
// The source message event is always published first so ordinary listeners see
// the raw text even when it also carries a registered command.
type commandDerivingSink struct {
	base          factotum.EventDispatcher
	lookupCommand func(prefix factotum.CommandPrefix, name string) (factotum.CommandSpec, bool)
	serviceLookup factotum.ServiceRegistry
	reportAsync   func(context.Context, string, error)
}

// Publish forwards one source event and conditionally derives one command event.
func (s *commandDerivingSink) Publish(ctx context.Context, event *factotum.Event) error {
	if event == nil {
		return fmt.Errorf("publish command deriving sink: nil event")
	}
	if s.base == nil {
		return fmt.Errorf("publish command deriving sink: nil base sink")
	}

	if err := s.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}

	if event.Kind != factotum.EventKindMessageCreated || event.Message == nil {
		return nil
	}

	candidate, matched, parseErr := factotum.ParseCommandCandidate(event.Message.Text)
	if !matched {
		return nil
	}

	spec, registered := s.lookupCommand(candidate.Prefix, candidate.Name)
	if !registered {
		return nil
	}
	if parseErr != nil {
		s.replyCommandError(ctx, event, spec, parseErr)
		return nil
	}

	invocation, bindErr := factotum.BindCommand(candidate, spec, event)
	if bindErr != nil {
		s.replyCommandError(ctx, event, spec, bindErr)
		return nil
	}

	commandEvent := derivedCommandEvent(event, candidate.Prefix, invocation)
	if err := s.base.Publish(ctx, commandEvent); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

func (s *commandDerivingSink) replyCommandError(
	ctx context.Context,
	sourceEvent *factotum.Event,
	spec factotum.CommandSpec,
	parseErr error,
) {
	if s.serviceLookup == nil {
		s.reportAsyncError(ctx, "command error reply resolve dispatcher", fmt.Errorf("service lookup unavailable"))
		return
	}

	dispatcher, err := factotum.ResolveAs[factotum.OutboundDispatcher](
		s.serviceLookup,
		factotum.ServiceOutboundDispatcher,
	)
	if err != nil {
		s.reportAsyncError(ctx, "command error reply resolve dispatcher", err)
		return
	}

	target, err := factotum.OutboundTargetFromEvent(sourceEvent)
	if err != nil {
		s.reportAsyncError(ctx, "command error reply derive target", err)
		return
	}

	replyToID := ""
	if sourceEvent.Message != nil {
		replyToID = sourceEvent.Message.ID
	}
	_, err = dispatcher.SendMessage(ctx, factotum.SendMessageRequest{
		Target:           target,
		Text:             formatCommandErrorReply(spec, parseErr),
		ReplyToMessageID: replyToID,
	})
	if err != nil {
		s.reportAsyncError(ctx, "command error reply send", err)
	}
}

func (s *commandDerivingSink) reportAsyncError(ctx context.Context, scope string, err error) {
	if s.reportAsync != nil {
		s.reportAsync(ctx, scope, err)
	}
}

func derivedCommandEvent(
	sourceEvent *factotum.Event,
	prefix factotum.CommandPrefix,
	invocation factotum.CommandInvocation,
) *factotum.Event {
	kind, suffix := derivedCommandEventKind(prefix)
	message := *sourceEvent.Message

	return &factotum.Event{
		ID:           sourceEvent.ID + suffix,
		Kind:         kind,
		OccurredAt:   sourceEvent.OccurredAt,
		Source:       sourceEvent.Source,
		Conversation: sourceEvent.Conversation,
		Actor:        sourceEvent.Actor,
		Message:      &message,
		Command:      &invocation,
		Metadata:     cloneStringMap(sourceEvent.Metadata),
	}
}

func derivedCommandEventKind(prefix factotum.CommandPrefix) (factotum.EventKind, string) {
	switch prefix {
	case factotum.CommandPrefixSystem:
		return factotum.EventKindSystemCommandReceived, "#system-command"
	default:
		return factotum.EventKindCommandReceived, "#command"
	}
}

func formatCommandErrorReply(spec factotum.CommandSpec, parseErr error) string {
	if parseErr == nil {
		return commandUsage(spec)
	}

	return fmt.Sprintf("%s\nusage: %s", parseErr.Error(), commandUsage(spec))
}

func commandUsage(spec factotum.CommandSpec) string {
	if spec.Usage != "" {
		return spec.Usage
	}

	return fmt.Sprintf("%s%s", spec.Prefix, normalizeCommandName(spec.Name))
}

func commandRegistryKey(prefix factotum.CommandPrefix, name string) string {
	return fmt.Sprintf("%s:%s", prefix, normalizeCommandName(name))
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func cloneStringMap(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}

	return cloned
}
