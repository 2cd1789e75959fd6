package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tg"

	"factotum/pkg/factotum"
)

type stubRosterRPC struct {
	chatUsers    []tg.UserClass
	channelUsers []tg.UserClass
	failWith     error
}

func (r *stubRosterRPC) ChatMembers(_ context.Context, _ int64) ([]tg.UserClass, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	return r.chatUsers, nil
}

func (r *stubRosterRPC) ChannelMembers(_ context.Context, _ *tg.InputChannel) ([]tg.UserClass, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	return r.channelUsers, nil
}

func TestRosterServiceMembersOfChat(t *testing.T) {
	t.Parallel()

	peers := NewPeerCache()
	peers.RememberConversation("100", &tg.InputPeerChat{ChatID: 100})

	roster, err := newRosterServiceWithRPC(&stubRosterRPC{
		chatUsers: []tg.UserClass{
			&tg.User{ID: 42, FirstName: "Alice", Username: "alice"},
			&tg.User{ID: 43, Username: "robo", Bot: true},
			&tg.User{ID: 44, Deleted: true},
			&tg.UserEmpty{ID: 45},
		},
	}, peers, time.Second)
	if err != nil {
		t.Fatalf("new roster service failed: %v", err)
	}

	members, err := roster.MembersOf(context.Background(), "100")
	if err != nil {
		t.Fatalf("members of failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	if members[0].DisplayName != "Alice" || members[0].Username != "alice" {
		t.Fatalf("members[0] = %+v, want Alice", members[0])
	}
	if !members[1].IsBot {
		t.Fatal("expected bot flag to survive mapping")
	}
}

func TestRosterServiceMembersOfChannel(t *testing.T) {
	t.Parallel()

	peers := NewPeerCache()
	peers.RememberConversation("200", &tg.InputPeerChannel{ChannelID: 200, AccessHash: 7})

	roster, err := newRosterServiceWithRPC(&stubRosterRPC{
		channelUsers: []tg.UserClass{
			&tg.User{ID: 42, Username: "alice"},
		},
	}, peers, time.Second)
	if err != nil {
		t.Fatalf("new roster service failed: %v", err)
	}

	members, err := roster.MembersOf(context.Background(), "200")
	if err != nil {
		t.Fatalf("members of failed: %v", err)
	}
	if len(members) != 1 || members[0].Username != "alice" {
		t.Fatalf("members = %+v, want alice", members)
	}
}

func TestRosterServiceMembersOfErrors(t *testing.T) {
	t.Parallel()

	peers := NewPeerCache()
	peers.RememberConversation("100", &tg.InputPeerChat{ChatID: 100})
	peers.RememberConversation("300", &tg.InputPeerUser{UserID: 300})

	roster, err := newRosterServiceWithRPC(&stubRosterRPC{}, peers, time.Second)
	if err != nil {
		t.Fatalf("new roster service failed: %v", err)
	}

	if _, err := roster.MembersOf(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown conversation error")
	}
	if _, err := roster.MembersOf(context.Background(), "300"); err == nil {
		t.Fatal("expected non-room peer error")
	}
	if _, err := roster.MembersOf(context.Background(), "100"); !errors.Is(err, factotum.ErrEmptyRoster) {
		t.Fatalf("error = %v, want ErrEmptyRoster", err)
	}

	failing, err := newRosterServiceWithRPC(&stubRosterRPC{failWith: errors.New("rpc down")}, peers, time.Second)
	if err != nil {
		t.Fatalf("new roster service failed: %v", err)
	}
	if _, err := failing.MembersOf(context.Background(), "100"); err == nil {
		t.Fatal("expected rpc error")
	}
}
