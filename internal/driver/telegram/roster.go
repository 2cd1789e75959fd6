package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"factotum/pkg/factotum"
)

const defaultRosterPageSize = 200

// RosterService resolves room member lists through Telegram RPC calls.
type RosterService struct {
	peers      *PeerCache
	telegram   rosterRPC
	rpcTimeout time.Duration
}

// NewRosterService creates a Telegram roster service using gotd client APIs.
func NewRosterService(
	client *gotdtelegram.Client,
	peers *PeerCache,
	rpcTimeout time.Duration,
) (*RosterService, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram roster service: nil client")
	}

	return newRosterServiceWithRPC(gotdRosterRPC{raw: client.API()}, peers, rpcTimeout)
}

func newRosterServiceWithRPC(
	rpc rosterRPC,
	peers *PeerCache,
	rpcTimeout time.Duration,
) (*RosterService, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram roster service: nil rpc adapter")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram roster service: nil peer cache")
	}
	if rpcTimeout <= 0 {
		rpcTimeout = defaultOutboundTimeout
	}

	return &RosterService{
		peers:      peers,
		telegram:   rpc,
		rpcTimeout: rpcTimeout,
	}, nil
}

// MembersOf returns the member roster for one room conversation.
func (s *RosterService) MembersOf(ctx context.Context, conversationID string) ([]factotum.Actor, error) {
	peer, err := s.peers.Resolve(factotum.Conversation{
		ID:   conversationID,
		Type: factotum.ConversationTypeRoom,
	})
	if err != nil {
		return nil, fmt.Errorf("roster resolve peer %s: %w", conversationID, err)
	}

	rpcCtx, cancel := context.WithTimeout(ctx, s.rpcTimeout)
	defer cancel()

	var users []tg.UserClass
	switch typed := peer.(type) {
	case *tg.InputPeerChat:
		users, err = s.telegram.ChatMembers(rpcCtx, typed.ChatID)
	case *tg.InputPeerChannel:
		users, err = s.telegram.ChannelMembers(rpcCtx, &tg.InputChannel{
			ChannelID:  typed.ChannelID,
			AccessHash: typed.AccessHash,
		})
	default:
		return nil, fmt.Errorf("roster conversation %s: not a room peer", conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("roster fetch members %s: %w", conversationID, err)
	}

	members := mapRosterUsers(users)
	if len(members) == 0 {
		return nil, fmt.Errorf("roster conversation %s: %w", conversationID, factotum.ErrEmptyRoster)
	}

	return members, nil
}

func mapRosterUsers(users []tg.UserClass) []factotum.Actor {
	members := make([]factotum.Actor, 0, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		notEmpty, ok := user.AsNotEmpty()
		if !ok || notEmpty == nil || notEmpty.Deleted {
			continue
		}

		username, _ := notEmpty.GetUsername()
		firstName, _ := notEmpty.GetFirstName()
		lastName, _ := notEmpty.GetLastName()
		displayName := firstName
		if lastName != "" {
			if displayName != "" {
				displayName += " "
			}
			displayName += lastName
		}

		members = append(members, factotum.Actor{
			ID:          strconv.FormatInt(notEmpty.ID, 10),
			Username:    username,
			DisplayName: displayName,
			IsBot:       notEmpty.Bot,
		})
	}

	return members
}

type rosterRPC interface {
	ChatMembers(ctx context.Context, chatID int64) ([]tg.UserClass, error)
	ChannelMembers(ctx context.Context, channel *tg.InputChannel) ([]tg.UserClass, error)
}

type gotdRosterRPC struct {
	raw *tg.Client
}

func (r gotdRosterRPC) ChatMembers(ctx context.Context, chatID int64) ([]tg.UserClass, error) {
	full, err := r.raw.MessagesGetFullChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("get full chat: %w", err)
	}

	return full.Users, nil
}

func (r gotdRosterRPC) ChannelMembers(ctx context.Context, channel *tg.InputChannel) ([]tg.UserClass, error) {
	result, err := r.raw.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: channel,
		Filter:  &tg.ChannelParticipantsRecent{},
		Limit:   defaultRosterPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("get channel participants: %w", err)
	}

	participants, ok := result.(*tg.ChannelsChannelParticipants)
	if !ok {
		return nil, fmt.Errorf("get channel participants: unexpected result %s", result.TypeName())
	}

	return participants.Users, nil
}

var _ factotum.RosterService = (*RosterService)(nil)
