package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/gotd/td/tg"

	"factotum/pkg/factotum"
)

type stubOutboundRPC struct {
	sentText   string
	sentPeer   tg.InputPeerClass
	lastReq    factotum.SendMessageRequest
	returnID   int
	returnFail error
}

func (r *stubOutboundRPC) SendText(
	_ context.Context,
	peer tg.InputPeerClass,
	request factotum.SendMessageRequest,
) (int, error) {
	if r.returnFail != nil {
		return 0, r.returnFail
	}
	r.sentPeer = peer
	r.sentText = request.Text
	r.lastReq = request

	return r.returnID, nil
}

func newOutboundTestFixture(t *testing.T, rpc outboundRPC) (*OutboundDispatcher, *PeerCache) {
	t.Helper()

	peers := NewPeerCache()
	dispatcher, err := newOutboundDispatcherWithRPC(rpc, peers)
	if err != nil {
		t.Fatalf("new outbound dispatcher failed: %v", err)
	}

	return dispatcher, peers
}

func TestOutboundDispatcherSendMessage(t *testing.T) {
	t.Parallel()

	rpc := &stubOutboundRPC{returnID: 555}
	dispatcher, peers := newOutboundTestFixture(t, rpc)
	peers.RememberConversation("100", &tg.InputPeerChat{ChatID: 100})

	sent, err := dispatcher.SendMessage(context.Background(), factotum.SendMessageRequest{
		Target: factotum.OutboundTarget{
			Conversation: factotum.Conversation{ID: "100", Type: factotum.ConversationTypeRoom},
		},
		Text:             "a factoid",
		ReplyToMessageID: "777",
		AsBot:            true,
	})
	if err != nil {
		t.Fatalf("send message failed: %v", err)
	}
	if sent.ID != "555" {
		t.Fatalf("sent id = %q, want 555", sent.ID)
	}
	if rpc.sentText != "a factoid" {
		t.Fatalf("sent text = %q, want a factoid", rpc.sentText)
	}
	if _, ok := rpc.sentPeer.(*tg.InputPeerChat); !ok {
		t.Fatalf("sent peer = %T, want *tg.InputPeerChat", rpc.sentPeer)
	}
}

func TestOutboundDispatcherSendMessageErrors(t *testing.T) {
	t.Parallel()

	rpc := &stubOutboundRPC{returnID: 1}
	dispatcher, peers := newOutboundTestFixture(t, rpc)
	peers.RememberConversation("100", &tg.InputPeerChat{ChatID: 100})

	_, err := dispatcher.SendMessage(context.Background(), factotum.SendMessageRequest{
		Target: factotum.OutboundTarget{
			Conversation: factotum.Conversation{ID: "100", Type: factotum.ConversationTypeRoom},
		},
	})
	if !errors.Is(err, factotum.ErrInvalidOutboundRequest) {
		t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
	}

	_, err = dispatcher.SendMessage(context.Background(), factotum.SendMessageRequest{
		Target: factotum.OutboundTarget{
			Conversation: factotum.Conversation{ID: "200", Type: factotum.ConversationTypeRoom},
		},
		Text: "hello",
	})
	if err == nil {
		t.Fatal("expected unknown peer error")
	}

	failing := &stubOutboundRPC{returnFail: errors.New("rpc down")}
	dispatcher, peers = newOutboundTestFixture(t, failing)
	peers.RememberConversation("100", &tg.InputPeerChat{ChatID: 100})

	_, err = dispatcher.SendMessage(context.Background(), factotum.SendMessageRequest{
		Target: factotum.OutboundTarget{
			Conversation: factotum.Conversation{ID: "100", Type: factotum.ConversationTypeRoom},
		},
		Text: "hello",
	})
	if err == nil {
		t.Fatal("expected rpc error")
	}
}

func TestParseMessageID(t *testing.T) {
	t.Parallel()

	if _, err := parseMessageID("abc"); !errors.Is(err, factotum.ErrInvalidOutboundRequest) {
		t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
	}
	if _, err := parseMessageID("-1"); err == nil {
		t.Fatal("expected negative id error")
	}
	id, err := parseMessageID(" 42 ")
	if err != nil {
		t.Fatalf("parse message id failed: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}
