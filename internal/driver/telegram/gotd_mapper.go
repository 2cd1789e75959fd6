package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"factotum/pkg/factotum"
)

const (
	gotdUnknownConversationID = "unknown"
	gotdUnknownActorID        = "unknown"
)

// gotdUpdateEnvelope pairs one raw gotd update with batch-level entity context.
type gotdUpdateEnvelope struct {
	update      tg.UpdateClass
	occurredAt  time.Time
	usersByID   map[int64]*tg.User
	chatsByID   map[int64]gotdChatInfo
	updateClass string
}

type gotdChatInfo struct {
	title     string
	inputPeer tg.InputPeerClass
}

// GotdUpdateMapper maps raw gotd updates into adapter Update DTOs.
type GotdUpdateMapper interface {
	// Map converts a raw update into adapter DTO form.
	// The accepted flag allows skipping unsupported update classes.
	Map(ctx context.Context, raw any) (Update, bool, error)
}

// DefaultGotdUpdateMapper maps gotd updates into adapter DTO updates.
type DefaultGotdUpdateMapper struct {
	peerCache *PeerCache
}

// GotdUpdateMapperOption mutates DefaultGotdUpdateMapper behavior.
type GotdUpdateMapperOption func(*DefaultGotdUpdateMapper)

// WithPeerCache records entity-derived peer mappings for outbound dispatch.
func WithPeerCache(cache *PeerCache) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if cache != nil {
			mapper.peerCache = cache
		}
	}
}

// NewDefaultGotdUpdateMapper creates the default gotd mapper.
func NewDefaultGotdUpdateMapper(options ...GotdUpdateMapperOption) DefaultGotdUpdateMapper {
	mapper := DefaultGotdUpdateMapper{}
	for _, option := range options {
		option(&mapper)
	}

	return mapper
}

// Map converts a gotd raw update value into an adapter update.
func (m DefaultGotdUpdateMapper) Map(ctx context.Context, raw any) (Update, bool, error) {
	select {
	case <-ctx.Done():
		return Update{}, false, fmt.Errorf("map gotd update context: %w", ctx.Err())
	default:
	}

	envelope, err := normalizeGotdRaw(raw)
	if err != nil {
		return Update{}, false, fmt.Errorf("map gotd raw update: %w", err)
	}
	if m.peerCache != nil {
		m.peerCache.RememberEnvelope(envelope)
	}

	switch update := envelope.update.(type) {
	case *tg.UpdateNewMessage:
		return m.mapNewMessage(update.Message, envelope)
	case *tg.UpdateNewChannelMessage:
		return m.mapNewMessage(update.Message, envelope)
	default:
		return Update{}, false, nil
	}
}

func normalizeGotdRaw(raw any) (gotdUpdateEnvelope, error) {
	switch typed := raw.(type) {
	case gotdUpdateEnvelope:
		return typed, nil
	case *gotdUpdateEnvelope:
		if typed == nil {
			return gotdUpdateEnvelope{}, fmt.Errorf("nil envelope")
		}
		return *typed, nil
	case tg.UpdateClass:
		if typed == nil {
			return gotdUpdateEnvelope{}, fmt.Errorf("nil update class")
		}
		return newGotdEnvelope(typed, time.Now().UTC(), nil, nil), nil
	default:
		return gotdUpdateEnvelope{}, fmt.Errorf("unsupported raw type %T", raw)
	}
}

func (m DefaultGotdUpdateMapper) mapNewMessage(
	message tg.MessageClass,
	envelope gotdUpdateEnvelope,
) (Update, bool, error) {
	switch typed := message.(type) {
	case *tg.Message:
		return m.mapMessage(typed, envelope)
	case *tg.MessageService:
		return m.mapServiceMessage(typed, envelope)
	default:
		return Update{}, false, nil
	}
}

func (m DefaultGotdUpdateMapper) mapMessage(
	message *tg.Message,
	envelope gotdUpdateEnvelope,
) (Update, bool, error) {
	if message == nil {
		return Update{}, false, fmt.Errorf("map message: nil message")
	}
	// Messages sent by this account echo back as Out updates and must not
	// re-enter the engine.
	if message.Out {
		return Update{}, false, nil
	}

	chat := resolveChatFromPeer(message.PeerID, envelope)
	actor := resolveActorFromPeer(message.FromID, envelope)
	if actor.ID == gotdUnknownActorID {
		actor = resolveActorFromPeer(message.PeerID, envelope)
	}

	payload := &MessagePayload{
		ID:   strconv.Itoa(message.ID),
		Text: message.Message,
	}
	if replyTo, ok := message.GetReplyTo(); ok {
		if header, ok := replyTo.(*tg.MessageReplyHeader); ok {
			if replyToMessageID, ok := header.GetReplyToMsgID(); ok {
				payload.ReplyToID = strconv.Itoa(replyToMessageID)
			}
		}
	}

	occurredAt := intToTimeUTC(message.Date)
	if occurredAt.IsZero() {
		occurredAt = envelope.occurredAt
	}
	m.rememberConversationPeer(chat, resolveInputPeerFromPeer(message.PeerID, envelope))

	return Update{
		ID:         composeUpdateID(UpdateTypeMessage, chat.ID, payload.ID, occurredAt),
		Type:       UpdateTypeMessage,
		OccurredAt: occurredAt,
		Chat:       chat,
		Actor:      actor,
		Message:    payload,
		Metadata:   newGotdMetadata(envelope),
	}, true, nil
}

func (m DefaultGotdUpdateMapper) mapServiceMessage(
	message *tg.MessageService,
	envelope gotdUpdateEnvelope,
) (Update, bool, error) {
	if message == nil {
		return Update{}, false, fmt.Errorf("map service message: nil message")
	}
	if message.Action == nil {
		return Update{}, false, nil
	}

	chat := resolveChatFromPeer(message.PeerID, envelope)
	actor := resolveActorFromPeer(message.FromID, envelope)
	occurredAt := intToTimeUTC(message.Date)
	if occurredAt.IsZero() {
		occurredAt = envelope.occurredAt
	}
	m.rememberConversationPeer(chat, resolveInputPeerFromPeer(message.PeerID, envelope))

	switch action := message.Action.(type) {
	case *tg.MessageActionChatAddUser:
		if len(action.Users) == 0 {
			return Update{}, false, nil
		}
		member := resolveActorByUserID(action.Users[0], envelope)

		return Update{
			ID:         composeUpdateID(UpdateTypeMemberJoin, chat.ID, member.ID, occurredAt),
			Type:       UpdateTypeMemberJoin,
			OccurredAt: occurredAt,
			Chat:       chat,
			Actor:      actor,
			Member: &MemberPayload{
				Member: member,
				Reason: "service_action_chat_add_user",
			},
			Metadata: newGotdMetadata(envelope),
		}, true, nil
	case *tg.MessageActionChatDeleteUser:
		member := resolveActorByUserID(action.UserID, envelope)

		return Update{
			ID:         composeUpdateID(UpdateTypeMemberLeave, chat.ID, member.ID, occurredAt),
			Type:       UpdateTypeMemberLeave,
			OccurredAt: occurredAt,
			Chat:       chat,
			Actor:      actor,
			Member: &MemberPayload{
				Member: member,
				Reason: "service_action_chat_delete_user",
			},
			Metadata: newGotdMetadata(envelope),
		}, true, nil
	case *tg.MessageActionChatJoinedByLink:
		return Update{
			ID:         composeUpdateID(UpdateTypeMemberJoin, chat.ID, actor.ID, occurredAt),
			Type:       UpdateTypeMemberJoin,
			OccurredAt: occurredAt,
			Chat:       chat,
			Actor:      actor,
			Member: &MemberPayload{
				Member: actor,
				Reason: "service_action_chat_joined_by_link",
			},
			Metadata: newGotdMetadata(envelope),
		}, true, nil
	default:
		return Update{}, false, nil
	}
}

func (m DefaultGotdUpdateMapper) rememberConversationPeer(chat ChatRef, peer tg.InputPeerClass) {
	if m.peerCache != nil && peer != nil {
		m.peerCache.RememberConversation(chat.ID, peer)
	}
}

func indexGotdUsers(users []tg.UserClass) map[int64]*tg.User {
	if len(users) == 0 {
		return nil
	}

	out := make(map[int64]*tg.User, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		notEmpty, ok := user.AsNotEmpty()
		if !ok || notEmpty == nil {
			continue
		}
		out[notEmpty.ID] = notEmpty
	}

	return out
}

func indexGotdChats(chats []tg.ChatClass) map[int64]gotdChatInfo {
	if len(chats) == 0 {
		return nil
	}

	out := make(map[int64]gotdChatInfo, len(chats))
	for _, chat := range chats {
		if chat == nil {
			continue
		}

		switch typed := chat.(type) {
		case *tg.Chat:
			out[typed.ID] = gotdChatInfo{
				title:     typed.Title,
				inputPeer: typed.AsInputPeer(),
			}
		case *tg.ChatForbidden:
			out[typed.ID] = gotdChatInfo{
				title: typed.Title,
				inputPeer: &tg.InputPeerChat{
					ChatID: typed.ID,
				},
			}
		case *tg.Channel:
			out[typed.ID] = gotdChatInfo{
				title:     typed.Title,
				inputPeer: typed.AsInputPeer(),
			}
		case *tg.ChannelForbidden:
			out[typed.ID] = gotdChatInfo{
				title: typed.Title,
				inputPeer: &tg.InputPeerChannel{
					ChannelID:  typed.ID,
					AccessHash: typed.AccessHash,
				},
			}
		}
	}

	return out
}

func resolveChatFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) ChatRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		actor := resolveActorByUserID(typed.UserID, envelope)
		return ChatRef{
			ID:    actor.ID,
			Type:  factotum.ConversationTypePrivate,
			Title: actor.DisplayName,
		}
	case *tg.PeerChat:
		return resolveRoomChat(typed.ChatID, envelope)
	case *tg.PeerChannel:
		return resolveRoomChat(typed.ChannelID, envelope)
	default:
		return ChatRef{
			ID:   gotdUnknownConversationID,
			Type: factotum.ConversationTypePrivate,
		}
	}
}

// resolveRoomChat maps both basic chats and channels to the neutral room kind.
func resolveRoomChat(chatID int64, envelope gotdUpdateEnvelope) ChatRef {
	chat := ChatRef{
		ID:   strconv.FormatInt(chatID, 10),
		Type: factotum.ConversationTypeRoom,
	}
	if info, ok := envelope.chatsByID[chatID]; ok {
		chat.Title = info.title
	}

	return chat
}

func resolveActorFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) ActorRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return resolveActorByUserID(typed.UserID, envelope)
	case *tg.PeerChat:
		return ActorRef{
			ID:          strconv.FormatInt(typed.ChatID, 10),
			DisplayName: lookupChatTitle(typed.ChatID, envelope),
		}
	case *tg.PeerChannel:
		return ActorRef{
			ID:          strconv.FormatInt(typed.ChannelID, 10),
			DisplayName: lookupChatTitle(typed.ChannelID, envelope),
		}
	default:
		return ActorRef{ID: gotdUnknownActorID}
	}
}

func resolveActorByUserID(userID int64, envelope gotdUpdateEnvelope) ActorRef {
	if userID == 0 {
		return ActorRef{ID: gotdUnknownActorID}
	}

	id := strconv.FormatInt(userID, 10)
	user, ok := envelope.usersByID[userID]
	if !ok || user == nil {
		return ActorRef{ID: id}
	}

	username, _ := user.GetUsername()
	firstName, _ := user.GetFirstName()
	lastName, _ := user.GetLastName()

	displayName := strings.TrimSpace(firstName + " " + lastName)
	if displayName == "" {
		displayName = username
	}

	return ActorRef{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		IsBot:       user.Bot,
	}
}

func resolveInputPeerFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if user, ok := envelope.usersByID[typed.UserID]; ok && user != nil {
			return user.AsInputPeer()
		}
		return nil
	case *tg.PeerChat:
		if typed.ChatID == 0 {
			return nil
		}
		return &tg.InputPeerChat{ChatID: typed.ChatID}
	case *tg.PeerChannel:
		if info, ok := envelope.chatsByID[typed.ChannelID]; ok && info.inputPeer != nil {
			return cloneInputPeer(info.inputPeer)
		}
		return nil
	default:
		return nil
	}
}

func lookupChatTitle(chatID int64, envelope gotdUpdateEnvelope) string {
	info, ok := envelope.chatsByID[chatID]
	if !ok {
		return ""
	}
	return info.title
}

func composeUpdateID(updateType UpdateType, chatID string, parts ...any) string {
	values := []string{"tg", string(updateType)}
	if chatID != "" {
		values = append(values, chatID)
	}
	for _, part := range parts {
		switch typed := part.(type) {
		case string:
			if typed != "" {
				values = append(values, typed)
			}
		case time.Time:
			if !typed.IsZero() {
				values = append(values, strconv.FormatInt(typed.UnixNano(), 10))
			}
		default:
			values = append(values, fmt.Sprint(part))
		}
	}

	return strings.Join(values, ":")
}

func newGotdMetadata(envelope gotdUpdateEnvelope) map[string]string {
	if envelope.updateClass == "" {
		return nil
	}
	return map[string]string{
		"gotd_update": envelope.updateClass,
	}
}
