// Package help renders the registered command reference for /help.
package help

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"factotum/pkg/factotum"
)

const helpCommandName = "help"

// Module replies with command reference text when it receives a /help command.
type Module struct {
	dispatcher     factotum.OutboundDispatcher
	commandCatalog factotum.CommandCatalog
}

// New creates a help module with default configuration.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Spec declares interest in ordinary help command events.
func (m *Module) Spec() factotum.ModuleSpec {
	return factotum.ModuleSpec{
		Handlers: []factotum.ModuleHandler{
			{
				Capability: factotum.Capability{
					Name:        "help-command-handler",
					Description: "renders registered command help for /help",
					Interest: factotum.InterestSet{
						Kinds:          []factotum.EventKind{factotum.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{helpCommandName},
					},
					RequiredServices: []string{
						factotum.ServiceOutboundDispatcher,
						factotum.ServiceCommandCatalog,
					},
				},
				Subscription: factotum.NewDefaultSubscriptionSpec("help-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []factotum.CommandSpec{
			{
				Prefix:      factotum.CommandPrefixOrdinary,
				Name:        helpCommandName,
				Description: "show all available commands",
			},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime factotum.ModuleRuntime) error {
	dispatcher, err := factotum.ResolveAs[factotum.OutboundDispatcher](
		runtime.Services(),
		factotum.ServiceOutboundDispatcher,
	)
	if err != nil {
		return fmt.Errorf("help resolve outbound dispatcher: %w", err)
	}
	commandCatalog, err := factotum.ResolveAs[factotum.CommandCatalog](
		runtime.Services(),
		factotum.ServiceCommandCatalog,
	)
	if err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}

	m.dispatcher = dispatcher
	m.commandCatalog = commandCatalog

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

func (m *Module) handleCommand(ctx context.Context, event *factotum.Event) error {
	if event == nil || event.Command == nil {
		return nil
	}
	if event.Kind != factotum.EventKindCommandReceived {
		return nil
	}
	if event.Command.Name != helpCommandName {
		return nil
	}
	if m.dispatcher == nil {
		return fmt.Errorf("help handle command: outbound dispatcher not configured")
	}
	if m.commandCatalog == nil {
		return fmt.Errorf("help handle command: command catalog not configured")
	}

	commands, err := m.commandCatalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help list commands: %w", err)
	}
	body := renderHelp(commands)

	target, err := factotum.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("help derive outbound target: %w", err)
	}

	request := factotum.SendMessageRequest{
		Target: target,
		Text:   body,
	}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("help send help message: %w", err)
	}

	return nil
}

func renderHelp(commands []factotum.RegisteredCommand) string {
	if len(commands) == 0 {
		return "Available commands:\n(none)"
	}

	sorted := append([]factotum.RegisteredCommand(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool {
		left := commandLabel(sorted[i].Command)
		right := commandLabel(sorted[j].Command)
		if left == right {
			return sorted[i].ModuleName < sorted[j].ModuleName
		}
		return left < right
	})

	lines := make([]string, 0, len(sorted)*4+1)
	lines = append(lines, "Available commands:\n")
	for index, command := range sorted {
		if index > 0 {
			lines = append(lines, "")
		}
		label := commandLabel(command.Command)
		usage := strings.TrimSpace(command.Command.Usage)
		description := strings.TrimSpace(command.Command.Description)
		moduleName := strings.TrimSpace(command.ModuleName)
		if moduleName == "" {
			moduleName = "unknown"
		}

		lines = append(lines, label)
		if usage != "" {
			lines = append(lines, fmt.Sprintf("usage: %s", usage))
		}
		if description != "" {
			lines = append(lines, description)
		}
		lines = append(lines, fmt.Sprintf("(%s)", moduleName))
	}

	return strings.Join(lines, "\n")
}

func commandLabel(command factotum.CommandSpec) string {
	return fmt.Sprintf("%s%s", command.Prefix, strings.ToLower(strings.TrimSpace(command.Name)))
}

var (
	_ factotum.Module          = (*Module)(nil)
	_ factotum.ModuleRegistrar = (*Module)(nil)
)
