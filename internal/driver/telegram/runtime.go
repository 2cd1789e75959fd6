package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"

	"factotum/pkg/factotum"
)

const (
	defaultRuntimeSessionFile  = ".cache/telegram/session.json"
	defaultRuntimePublishDelay = 2 * time.Second
	defaultRuntimeAuthTimeout  = time.Minute
)

// Runtime bundles the built Telegram driver with its sink and roster capabilities.
type Runtime struct {
	Source     factotum.EventSource
	Driver     factotum.Driver
	Dispatcher factotum.OutboundDispatcher
	Roster     factotum.RosterService
}

type runtimeConfig struct {
	AppID          int    `json:"app_id"`
	AppHash        string `json:"app_hash"`
	BotToken       string `json:"bot_token"`
	PublishTimeout string `json:"publish_timeout"`
	UpdateBuffer   int    `json:"update_buffer"`
	AuthTimeout    string `json:"auth_timeout"`
	SessionFile    string `json:"session_file"`
}

type parsedRuntimeConfig struct {
	appID          int
	appHash        string
	botToken       string
	publishTimeout time.Duration
	updateBuffer   int
	authTimeout    time.Duration
	sessionFile    string
}

// BuildRuntimeFromConfig builds one telegram driver runtime from config payload.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (Runtime, error) {
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return Runtime{}, fmt.Errorf("parse telegram runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	updateChannel, err := NewGotdUpdateChannel(cfg.updateBuffer)
	if err != nil {
		return Runtime{}, fmt.Errorf("new gotd update channel: %w", err)
	}

	sessionStorage, err := newGotdSessionStorage(cfg.sessionFile)
	if err != nil {
		return Runtime{}, fmt.Errorf("new gotd session storage: %w", err)
	}

	client := gotdtelegram.NewClient(cfg.appID, cfg.appHash, gotdtelegram.Options{
		UpdateHandler:  updateChannel,
		SessionStorage: sessionStorage,
	})

	peers := NewPeerCache()
	source, err := NewGotdSource(
		gotdAuthenticatedClient{
			client: client,
			authenticate: func(ctx context.Context) error {
				return authenticateGotdClient(ctx, logger, client, cfg)
			},
		},
		updateChannel,
		NewDefaultGotdUpdateMapper(WithPeerCache(peers)),
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("new gotd source: %w", err)
	}

	driver, err := NewDriver(
		source,
		NewDefaultDecoder(),
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithErrorHandler(func(_ context.Context, err error) {
			logger.Error("telegram driver async error", "error", err)
		}),
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("new telegram driver: %w", err)
	}

	dispatcher, err := NewOutboundDispatcher(
		client,
		peers,
		WithOutboundTimeout(cfg.publishTimeout),
		WithOutboundLogger(logger),
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("new telegram outbound dispatcher: %w", err)
	}

	roster, err := NewRosterService(client, peers, cfg.publishTimeout)
	if err != nil {
		return Runtime{}, fmt.Errorf("new telegram roster service: %w", err)
	}

	return Runtime{
		Source: factotum.EventSource{
			Platform: DriverPlatform,
			ID:       name,
		},
		Driver:     driver,
		Dispatcher: dispatcher,
		Roster:     roster,
	}, nil
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := parsedRuntimeConfig{
		appID:          parsed.AppID,
		appHash:        strings.TrimSpace(parsed.AppHash),
		botToken:       strings.TrimSpace(parsed.BotToken),
		publishTimeout: defaultRuntimePublishDelay,
		updateBuffer:   parsed.UpdateBuffer,
		authTimeout:    defaultRuntimeAuthTimeout,
		sessionFile:    strings.TrimSpace(parsed.SessionFile),
	}

	if cfg.updateBuffer <= 0 {
		cfg.updateBuffer = 256
	}
	if cfg.sessionFile == "" {
		cfg.sessionFile = defaultRuntimeSessionFile
	}

	if timeout := strings.TrimSpace(parsed.PublishTimeout); timeout != "" {
		parsedTimeout, err := time.ParseDuration(timeout)
		if err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse publish_timeout: %w", err)
		}
		if parsedTimeout <= 0 {
			return parsedRuntimeConfig{}, fmt.Errorf("parse publish_timeout: must be > 0")
		}
		cfg.publishTimeout = parsedTimeout
	}
	if timeout := strings.TrimSpace(parsed.AuthTimeout); timeout != "" {
		parsedTimeout, err := time.ParseDuration(timeout)
		if err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse auth_timeout: %w", err)
		}
		if parsedTimeout <= 0 {
			return parsedRuntimeConfig{}, fmt.Errorf("parse auth_timeout: must be > 0")
		}
		cfg.authTimeout = parsedTimeout
	}

	if cfg.appID <= 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("app_id must be > 0")
	}
	if cfg.appHash == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("app_hash is required")
	}
	if cfg.botToken == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("bot_token is required")
	}

	return cfg, nil
}

func newGotdSessionStorage(path string) (*session.FileStorage, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("empty session file path")
	}

	absPath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute session file path: %w", err)
	}
	sessionDir := filepath.Dir(absPath)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", sessionDir, err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

type gotdAuthenticatedClient struct {
	client       *gotdtelegram.Client
	authenticate func(ctx context.Context) error
}

// Run executes client runtime and performs authentication before invoking fn.
func (c gotdAuthenticatedClient) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	if c.client == nil {
		return fmt.Errorf("run gotd authenticated client: nil client")
	}
	if c.authenticate == nil {
		return fmt.Errorf("run gotd authenticated client: nil authenticate callback")
	}
	if fn == nil {
		return fmt.Errorf("run gotd authenticated client: nil run callback")
	}

	if err := c.client.Run(ctx, func(runCtx context.Context) error {
		if err := c.authenticate(runCtx); err != nil {
			return fmt.Errorf("authenticate gotd client: %w", err)
		}
		if err := fn(runCtx); err != nil {
			return fmt.Errorf("run gotd client callback: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("run gotd authenticated client: %w", err)
	}

	return nil
}

func authenticateGotdClient(
	ctx context.Context,
	logger *slog.Logger,
	client *gotdtelegram.Client,
	cfg parsedRuntimeConfig,
) error {
	if client == nil {
		return fmt.Errorf("authenticate gotd client: nil client")
	}

	authCtx := ctx
	cancel := func() {}
	if cfg.authTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(ctx, cfg.authTimeout)
		authCtx = timeoutCtx
		cancel = timeoutCancel
	}
	defer cancel()

	status, err := client.Auth().Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status.Authorized {
		logger.Info("telegram session restored from local storage", "session_file", cfg.sessionFile)
		return nil
	}

	if _, err := client.Auth().Bot(authCtx, cfg.botToken); err != nil {
		return fmt.Errorf("authenticate bot: %w", err)
	}
	logger.Info("telegram authorized with bot token", "session_file", cfg.sessionFile)

	return nil
}
