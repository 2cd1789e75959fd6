// Package driver builds configured platform driver runtimes.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"factotum/pkg/factotum"
)

// Definition describes one configured driver entry.
type Definition struct {
	// Name is the stable configured driver instance identifier.
	Name string
	// Type identifies which builder should construct this runtime.
	Type string
	// Enabled controls whether this definition is active.
	Enabled bool
	// Config stores driver-type-specific JSON payload.
	Config []byte
}

// Runtime contains one fully built driver runtime instance.
type Runtime struct {
	// Source identifies the concrete event source produced by Driver.
	Source factotum.EventSource
	// Driver is the inbound runtime implementation registered with the kernel.
	Driver factotum.Driver
	// Dispatcher sends outbound messages through this runtime when supported.
	Dispatcher factotum.OutboundDispatcher
	// Roster resolves room members through this runtime when supported.
	Roster factotum.RosterService
}

// BuilderFunc builds one runtime from one configured driver definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor binds one driver type token to platform metadata and a runtime builder.
type Descriptor struct {
	// Type is the driver type token from configuration (for example "telegram").
	Type string
	// Platform is the neutral platform for this driver type.
	Platform factotum.Platform
	// Builder constructs one runtime instance for this driver type.
	Builder BuilderFunc
}

type registryEntry struct {
	platform factotum.Platform
	builder  BuilderFunc
}

// Registry maps driver types to runtime builders and type-level platform metadata.
type Registry struct {
	entries map[string]registryEntry
	types   []string
}

// NewRegistry creates one immutable driver registry from descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	entries := make(map[string]registryEntry, len(descriptors))
	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Type == "" {
			return nil, fmt.Errorf("new registry: empty descriptor type")
		}
		if descriptor.Platform == "" {
			return nil, fmt.Errorf("new registry type %s: empty platform", descriptor.Type)
		}
		if descriptor.Builder == nil {
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := entries[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: duplicate", descriptor.Type)
		}

		entries[descriptor.Type] = registryEntry{
			platform: descriptor.Platform,
			builder:  descriptor.Builder,
		}
		types = append(types, descriptor.Type)
	}
	sort.Strings(types)

	return &Registry{
		entries: entries,
		types:   types,
	}, nil
}

// Types returns all registered driver types in deterministic sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	types := make([]string, len(r.types))
	copy(types, r.types)

	return types
}

// PlatformForType returns the platform associated with one driver type.
func (r *Registry) PlatformForType(driverType string) (factotum.Platform, bool) {
	if r == nil {
		return "", false
	}

	entry, exists := r.entries[driverType]
	if !exists {
		return "", false
	}

	return entry.platform, true
}

// BuildEnabled builds all enabled driver definitions.
func (r *Registry) BuildEnabled(
	ctx context.Context,
	definitions []Definition,
	logger *slog.Logger,
) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}

	runtimes := make([]Runtime, 0, len(definitions))
	seenNames := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if _, exists := seenNames[definition.Name]; exists {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if definition.Type == "" {
			return nil, fmt.Errorf("build driver %s: empty type", definition.Name)
		}

		entry, exists := r.entries[definition.Type]
		if !exists {
			return nil, fmt.Errorf("build driver %s type %s: unsupported type", definition.Name, definition.Type)
		}

		runtime, err := entry.builder(ctx, definition, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s type %s: %w", definition.Name, definition.Type, err)
		}
		if runtime.Driver == nil {
			return nil, fmt.Errorf("build driver %s type %s: nil driver", definition.Name, definition.Type)
		}
		if runtime.Source.Platform == "" {
			return nil, fmt.Errorf("build driver %s type %s: missing source platform", definition.Name, definition.Type)
		}
		if runtime.Source.ID == "" {
			runtime.Source.ID = definition.Name
		}

		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

// SelectOutbound returns the single outbound-capable runtime dispatcher.
//
// The engine currently speaks through exactly one transport at a time, so more
// than one sink-capable runtime is a configuration error rather than a routing
// problem.
func SelectOutbound(runtimes []Runtime) (factotum.OutboundDispatcher, error) {
	var selected factotum.OutboundDispatcher
	for _, runtime := range runtimes {
		if runtime.Dispatcher == nil {
			continue
		}
		if selected != nil {
			return nil, fmt.Errorf("select outbound dispatcher: multiple sink-capable drivers configured")
		}
		selected = runtime.Dispatcher
	}
	if selected == nil {
		return nil, fmt.Errorf("select outbound dispatcher: no sink-capable driver configured")
	}

	return selected, nil
}

// SelectRoster returns the single roster-capable runtime service.
func SelectRoster(runtimes []Runtime) (factotum.RosterService, error) {
	var selected factotum.RosterService
	for _, runtime := range runtimes {
		if runtime.Roster == nil {
			continue
		}
		if selected != nil {
			return nil, fmt.Errorf("select roster service: multiple roster-capable drivers configured")
		}
		selected = runtime.Roster
	}
	if selected == nil {
		return nil, fmt.Errorf("select roster service: no roster-capable driver configured")
	}

	return selected, nil
}
