package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/crypto"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"

	"factotum/pkg/factotum"
)

const defaultOutboundTimeout = 3 * time.Second

// OutboundOption mutates outbound dispatcher configuration.
type OutboundOption func(*outboundConfig)

// WithOutboundTimeout configures a timeout bound for each outbound RPC call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithOutboundLogger configures structured logging for outbound operations.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.logger = logger
	}
}

// OutboundDispatcher adapts neutral outbound operations to Telegram RPC calls.
type OutboundDispatcher struct {
	cfg      outboundConfig
	peers    *PeerCache
	telegram outboundRPC
}

type outboundConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
}

// NewOutboundDispatcher creates a Telegram outbound dispatcher using gotd client APIs.
func NewOutboundDispatcher(
	client *gotdtelegram.Client,
	peers *PeerCache,
	options ...OutboundOption,
) (*OutboundDispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil client")
	}

	return newOutboundDispatcherWithRPC(newGotdOutboundRPC(client), peers, options...)
}

func newOutboundDispatcherWithRPC(
	rpc outboundRPC,
	peers *PeerCache,
	options ...OutboundOption,
) (*OutboundDispatcher, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil rpc adapter")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil peer cache")
	}

	cfg := outboundConfig{
		rpcTimeout: defaultOutboundTimeout,
	}
	for _, option := range options {
		option(&cfg)
	}

	return &OutboundDispatcher{
		cfg:      cfg,
		peers:    peers,
		telegram: rpc,
	}, nil
}

// SendMessage publishes a text message to a Telegram conversation.
func (d *OutboundDispatcher) SendMessage(
	ctx context.Context,
	request factotum.SendMessageRequest,
) (*factotum.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("send message validate: %w", err)
	}

	peer, err := d.peers.Resolve(request.Target.Conversation)
	if err != nil {
		return nil, fmt.Errorf("send message resolve peer: %w", err)
	}

	rpcCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	id, err := d.telegram.SendText(rpcCtx, peer, request)
	if err != nil {
		return nil, fmt.Errorf("send message to %s: %w", request.Target.Conversation.ID, err)
	}

	d.logOutbound(
		ctx,
		"send_message",
		"conversation", request.Target.Conversation.ID,
		"conversation_type", request.Target.Conversation.Type,
		"message_id", id,
		"reply_to_message_id", request.ReplyToMessageID,
		"as_bot", request.AsBot,
	)

	return &factotum.OutboundMessage{
		ID:     strconv.Itoa(id),
		Target: request.Target,
	}, nil
}

func (d *OutboundDispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.rpcTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d.cfg.rpcTimeout)
}

func (d *OutboundDispatcher) logOutbound(ctx context.Context, operation string, attrs ...any) {
	if d.cfg.logger == nil {
		return
	}

	values := make([]any, 0, 2+len(attrs))
	values = append(values, "operation", operation, "platform", DriverPlatform)
	values = append(values, attrs...)
	d.cfg.logger.InfoContext(ctx, "telegram outbound operation", values...)
}

func parseMessageID(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid message id: %w", factotum.ErrInvalidOutboundRequest, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: invalid message id", factotum.ErrInvalidOutboundRequest)
	}

	return value, nil
}

type outboundRPC interface {
	SendText(ctx context.Context, peer tg.InputPeerClass, request factotum.SendMessageRequest) (int, error)
}

type gotdOutboundRPC struct {
	raw  *tg.Client
	rand io.Reader
}

func newGotdOutboundRPC(client *gotdtelegram.Client) gotdOutboundRPC {
	return gotdOutboundRPC{
		raw:  client.API(),
		rand: crypto.DefaultRand(),
	}
}

func (r gotdOutboundRPC) SendText(
	ctx context.Context,
	peer tg.InputPeerClass,
	request factotum.SendMessageRequest,
) (int, error) {
	sendRequest := &tg.MessagesSendMessageRequest{
		Peer:    peer,
		Message: request.Text,
	}
	if request.ReplyToMessageID != "" {
		replyID, err := parseMessageID(request.ReplyToMessageID)
		if err != nil {
			return 0, fmt.Errorf("send text parse reply id %s: %w", request.ReplyToMessageID, err)
		}
		sendRequest.ReplyTo = &tg.InputReplyToMessage{
			ReplyToMsgID: replyID,
		}
	}

	randomID, err := crypto.RandInt64(r.rand)
	if err != nil {
		return 0, fmt.Errorf("send text random id: %w", err)
	}
	sendRequest.RandomID = randomID

	updates, err := r.raw.MessagesSendMessage(ctx, sendRequest)
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}

	messageID, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("extract sent message id: %w", err)
	}

	return messageID, nil
}

var _ factotum.OutboundDispatcher = (*OutboundDispatcher)(nil)
