package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"factotum/internal/driver"
	"factotum/internal/kernel"
	"factotum/internal/store"
	"factotum/modules/facts"
	"factotum/modules/help"
	"factotum/pkg/factotum"
)

const (
	envConfigFile             = "FACTOTUM_CONFIG_FILE"
	defaultConfigFilePath     = "config/bot.json"
	alternateConfigFilePath   = "bin/config/bot.json"
	defaultStorePath          = "data/factotum.db"
	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultHandlerTimeout     = 5 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 2
)

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	storePath string
	drivers   []driver.Definition
}

type fileConfig struct {
	LogLevel string            `json:"log_level"`
	Kernel   fileKernelConfig  `json:"kernel"`
	Store    fileStoreConfig   `json:"store"`
	Drivers  []fileDriverEntry `json:"drivers"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	HandlerTimeout      string `json:"handler_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileStoreConfig struct {
	Path string `json:"path"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

func run() error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}

	cfg, err := loadConfig(registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	kernelRuntime := buildKernelRuntime(logger, cfg)

	factStore, err := store.Open(cfg.storePath)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.storePath, err)
	}
	defer func() {
		if closeErr := factStore.Close(); closeErr != nil {
			logger.Error("close store", "error", closeErr)
		}
	}()

	runtimes, err := registry.BuildEnabled(context.Background(), cfg.drivers, logger)
	if err != nil {
		return fmt.Errorf("build drivers: %w", err)
	}
	dispatcher, err := driver.SelectOutbound(runtimes)
	if err != nil {
		return fmt.Errorf("select outbound dispatcher: %w", err)
	}
	roster, err := driver.SelectRoster(runtimes)
	if err != nil {
		return fmt.Errorf("select roster service: %w", err)
	}

	if err := registerRuntimeDrivers(kernelRuntime, runtimes); err != nil {
		return err
	}
	if err := registerRuntimeServices(kernelRuntime, factStore, dispatcher, roster); err != nil {
		return err
	}
	if err := registerRuntimeModules(context.Background(), kernelRuntime, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kernelRuntime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

func loadConfig(registry *driver.Registry) (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		handlerTimeout:      defaultHandlerTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,

		storePath: defaultStorePath,
		drivers:   make([]driver.Definition, 0),
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if rawTimeout := strings.TrimSpace(parsed.Kernel.ModuleHookTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout, "kernel.module_hook_timeout")
		if err != nil {
			return err
		}
		cfg.moduleHookTimeout = timeout
	}
	if rawTimeout := strings.TrimSpace(parsed.Kernel.ShutdownTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout, "kernel.shutdown_timeout")
		if err != nil {
			return err
		}
		cfg.shutdownTimeout = timeout
	}
	if rawTimeout := strings.TrimSpace(parsed.Kernel.HandlerTimeout); rawTimeout != "" {
		timeout, err := parsePositiveDuration(rawTimeout, "kernel.handler_timeout")
		if err != nil {
			return err
		}
		cfg.handlerTimeout = timeout
	}
	if parsed.Kernel.SubscriptionBuffer != nil {
		if *parsed.Kernel.SubscriptionBuffer <= 0 {
			return fmt.Errorf("parse kernel.subscription_buffer: must be > 0")
		}
		cfg.subscriptionBuffer = *parsed.Kernel.SubscriptionBuffer
	}
	if parsed.Kernel.SubscriptionWorkers != nil {
		if *parsed.Kernel.SubscriptionWorkers <= 0 {
			return fmt.Errorf("parse kernel.subscription_workers: must be > 0")
		}
		cfg.subscriptionWorkers = *parsed.Kernel.SubscriptionWorkers
	}

	if storePath := strings.TrimSpace(parsed.Store.Path); storePath != "" {
		cfg.storePath = storePath
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
	}

	return nil
}

func parsePositiveDuration(raw, scope string) (time.Duration, error) {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", scope, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", scope)
	}

	return parsed, nil
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	enabledCount := 0
	seenNames := make(map[string]struct{}, len(cfg.drivers))
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := seenNames[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if !definition.Enabled {
			continue
		}
		if _, known := registry.PlatformForType(definition.Type); !known {
			return fmt.Errorf("drivers[%s].type: unsupported type %s", definition.Name, definition.Type)
		}
		enabledCount++
	}
	if enabledCount == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
	)
}

func registerRuntimeServices(
	kernelRuntime *kernel.Kernel,
	factStore *store.Store,
	dispatcher factotum.OutboundDispatcher,
	roster factotum.RosterService,
) error {
	if err := kernelRuntime.RegisterService(factotum.ServiceOutboundDispatcher, dispatcher); err != nil {
		return fmt.Errorf("register outbound dispatcher service: %w", err)
	}
	if err := kernelRuntime.RegisterService(factotum.ServiceRoster, roster); err != nil {
		return fmt.Errorf("register roster service: %w", err)
	}
	if err := kernelRuntime.RegisterService(factotum.ServiceTriggerStore, factStore); err != nil {
		return fmt.Errorf("register trigger store service: %w", err)
	}
	if err := kernelRuntime.RegisterService(factotum.ServiceWordStore, factStore); err != nil {
		return fmt.Errorf("register word store service: %w", err)
	}

	return nil
}

func registerRuntimeModules(ctx context.Context, kernelRuntime *kernel.Kernel, logger *slog.Logger) error {
	factsModule := facts.New(facts.WithLogger(logger))
	if err := kernelRuntime.RegisterModule(ctx, factsModule); err != nil {
		return fmt.Errorf("register facts module: %w", err)
	}
	helpModule := help.New()
	if err := kernelRuntime.RegisterModule(ctx, helpModule); err != nil {
		return fmt.Errorf("register help module: %w", err)
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, runtimes []driver.Runtime) error {
	for _, runtime := range runtimes {
		if err := kernelRuntime.RegisterDriver(runtime.Driver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtime.Driver.Name(), err)
		}
	}

	return nil
}
