package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gotd/td/tg"

	"factotum/pkg/factotum"
)

// PeerCache stores Telegram input peers discovered from inbound updates.
//
// It is used by outbound dispatch and roster lookups to resolve neutral
// conversation identifiers back into Telegram input peers.
type PeerCache struct {
	mu             sync.RWMutex
	byConversation map[string]tg.InputPeerClass
}

// NewPeerCache creates an empty, concurrency-safe Telegram peer cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{
		byConversation: make(map[string]tg.InputPeerClass),
	}
}

// RememberEnvelope ingests entity data attached to one gotd update envelope.
func (c *PeerCache) RememberEnvelope(envelope gotdUpdateEnvelope) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, user := range envelope.usersByID {
		if user == nil {
			continue
		}
		peer := user.AsInputPeer()
		if peer == nil {
			continue
		}
		c.byConversation[strconv.FormatInt(userID, 10)] = cloneInputPeer(peer)
	}

	for id, chat := range envelope.chatsByID {
		if chat.inputPeer == nil {
			continue
		}
		c.byConversation[strconv.FormatInt(id, 10)] = cloneInputPeer(chat.inputPeer)
	}
}

// RememberConversation stores one explicit conversation-to-peer mapping.
func (c *PeerCache) RememberConversation(conversationID string, peer tg.InputPeerClass) {
	if c == nil || peer == nil || conversationID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.byConversation[conversationID] = cloneInputPeer(peer)
}

// Resolve returns an input peer for an outbound target conversation.
func (c *PeerCache) Resolve(conversation factotum.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" {
		return nil, fmt.Errorf("resolve peer: invalid conversation")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	peer, ok := c.byConversation[conversation.ID]
	if !ok {
		return nil, fmt.Errorf("resolve peer: conversation %s/%s not found", conversation.Type, conversation.ID)
	}

	return cloneInputPeer(peer), nil
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChat:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerChannel:
		copyPeer := *typed
		return &copyPeer
	case *tg.InputPeerSelf:
		copyPeer := *typed
		return &copyPeer
	default:
		return peer
	}
}
