package driver

import (
	"context"
	"fmt"
	"log/slog"

	"factotum/internal/driver/telegram"
	"factotum/pkg/factotum"
)

// NewBuiltinRegistry returns the registry of built-in driver types.
func NewBuiltinRegistry() (*Registry, error) {
	registry, err := NewRegistry([]Descriptor{
		{
			Type:     telegram.DriverType,
			Platform: telegram.DriverPlatform,
			Builder: func(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
				runtime, err := telegram.BuildRuntimeFromConfig(definition.Name, logger, definition.Config)
				if err != nil {
					return Runtime{}, fmt.Errorf("build telegram runtime: %w", err)
				}

				return Runtime{
					Source:     runtime.Source,
					Driver:     runtime.Driver,
					Dispatcher: runtime.Dispatcher,
					Roster:     runtime.Roster,
				}, nil
			},
		},
		{
			Type:     ChannelDriverType,
			Platform: factotum.PlatformChannel,
			Builder: func(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
				return BuildChannelRuntime(definition, logger)
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new builtin driver registry: %w", err)
	}

	return registry, nil
}
