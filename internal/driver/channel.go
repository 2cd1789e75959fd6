package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"factotum/pkg/factotum"
)

// ChannelDriverType is the configuration type token for the in-process driver.
const ChannelDriverType = "channel"

// ChannelConfig is the JSON configuration payload for the channel driver.
type ChannelConfig struct {
	// InboundBuffer bounds the inbound event queue; zero uses the default.
	InboundBuffer int `json:"inbound_buffer"`
}

const defaultChannelInboundBuffer = 64

// ChannelDriver is an in-process transport used for local runs and tests.
//
// Inbound events are injected through Inject and outbound messages are
// recorded in memory, so an engine can be exercised end to end without any
// network transport.
type ChannelDriver struct {
	name    string
	logger  *slog.Logger
	inbound chan *factotum.Event

	mu      sync.Mutex
	sent    []factotum.SendMessageRequest
	roster  map[string][]factotum.Actor
	started bool
}

// NewChannelDriver creates an in-process channel driver instance.
func NewChannelDriver(name string, logger *slog.Logger, config ChannelConfig) *ChannelDriver {
	if logger == nil {
		logger = slog.Default()
	}
	buffer := config.InboundBuffer
	if buffer <= 0 {
		buffer = defaultChannelInboundBuffer
	}

	return &ChannelDriver{
		name:    name,
		logger:  logger.With(slog.String("driver", name)),
		inbound: make(chan *factotum.Event, buffer),
		roster:  make(map[string][]factotum.Actor),
	}
}

// BuildChannelRuntime builds one channel driver runtime from a definition.
func BuildChannelRuntime(definition Definition, logger *slog.Logger) (Runtime, error) {
	var config ChannelConfig
	if len(definition.Config) > 0 {
		if err := json.Unmarshal(definition.Config, &config); err != nil {
			return Runtime{}, fmt.Errorf("parse channel driver config: %w", err)
		}
	}

	channelDriver := NewChannelDriver(definition.Name, logger, config)

	return Runtime{
		Source: factotum.EventSource{
			Platform: factotum.PlatformChannel,
			ID:       definition.Name,
		},
		Driver:     channelDriver,
		Dispatcher: channelDriver,
		Roster:     channelDriver,
	}, nil
}

// Name returns the configured driver instance identifier.
func (d *ChannelDriver) Name() string {
	return d.name
}

// Start consumes injected events and publishes them until context cancellation.
func (d *ChannelDriver) Start(ctx context.Context, sink factotum.EventDispatcher) error {
	if sink == nil {
		return fmt.Errorf("start channel driver %s: nil sink", d.name)
	}

	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("start channel driver %s: already started", d.name)
	}
	d.started = true
	d.mu.Unlock()

	d.logger.Info("channel driver started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-d.inbound:
			if err := sink.Publish(ctx, event); err != nil {
				d.logger.Warn("publish injected event failed",
					slog.String("event_id", event.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Shutdown stops the driver; the channel driver has no external resources.
func (d *ChannelDriver) Shutdown(_ context.Context) error {
	d.logger.Info("channel driver stopped")
	return nil
}

// Inject queues one inbound event for publication by Start.
func (d *ChannelDriver) Inject(ctx context.Context, event *factotum.Event) error {
	if event == nil {
		return fmt.Errorf("inject event: nil event")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Source.Platform == "" {
		event.Source = factotum.EventSource{
			Platform: factotum.PlatformChannel,
			ID:       d.name,
		}
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("inject event: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.inbound <- event:
		return nil
	}
}

// SendMessage records one outbound message in memory.
func (d *ChannelDriver) SendMessage(
	_ context.Context,
	request factotum.SendMessageRequest,
) (*factotum.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("channel send message: %w", err)
	}

	d.mu.Lock()
	d.sent = append(d.sent, request)
	sequence := len(d.sent)
	d.mu.Unlock()

	return &factotum.OutboundMessage{
		ID:     fmt.Sprintf("channel-%d", sequence),
		Target: request.Target,
	}, nil
}

// SentMessages returns a snapshot of every recorded outbound message.
func (d *ChannelDriver) SentMessages() []factotum.SendMessageRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	sent := make([]factotum.SendMessageRequest, len(d.sent))
	copy(sent, d.sent)

	return sent
}

// SetRoster replaces the member roster for one conversation.
func (d *ChannelDriver) SetRoster(conversationID string, members []factotum.Actor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := make([]factotum.Actor, len(members))
	copy(snapshot, members)
	d.roster[conversationID] = snapshot
}

// MembersOf returns the configured member roster for one conversation.
func (d *ChannelDriver) MembersOf(_ context.Context, conversationID string) ([]factotum.Actor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, exists := d.roster[conversationID]
	if !exists || len(members) == 0 {
		return nil, fmt.Errorf("channel roster %s: %w", conversationID, factotum.ErrEmptyRoster)
	}

	snapshot := make([]factotum.Actor, len(members))
	copy(snapshot, members)

	return snapshot, nil
}

var (
	_ factotum.Driver             = (*ChannelDriver)(nil)
	_ factotum.OutboundDispatcher = (*ChannelDriver)(nil)
	_ factotum.RosterService      = (*ChannelDriver)(nil)
)
