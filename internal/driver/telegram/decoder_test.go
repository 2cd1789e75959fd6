package telegram

import (
	"context"
	"testing"
	"time"

	"factotum/pkg/factotum"
)

func TestDefaultDecoderDecode(t *testing.T) {
	t.Parallel()

	decoder := NewDefaultDecoder()
	occurredAt := time.Unix(1_700_000_000, 0).UTC()

	tests := []struct {
		name   string
		update Update
		assert func(t *testing.T, event *factotum.Event)
	}{
		{
			name: "message update",
			update: Update{
				ID:         "tg:message:100:777",
				Type:       UpdateTypeMessage,
				OccurredAt: occurredAt,
				Chat: ChatRef{
					ID:    "100",
					Type:  factotum.ConversationTypeRoom,
					Title: "lounge",
				},
				Actor: ActorRef{ID: "42", Username: "alice"},
				Message: &MessagePayload{
					ID:        "777",
					ReplyToID: "770",
					Text:      "hello",
				},
			},
			assert: func(t *testing.T, event *factotum.Event) {
				t.Helper()
				if event.Kind != factotum.EventKindMessageCreated {
					t.Fatalf("kind = %s, want %s", event.Kind, factotum.EventKindMessageCreated)
				}
				if event.Message == nil {
					t.Fatal("expected message payload")
				}
				if event.Message.ID != "777" || event.Message.ReplyToID != "770" {
					t.Fatalf("message = %+v, want id 777 reply 770", event.Message)
				}
				if !event.Conversation.IsRoom() {
					t.Fatalf("conversation type = %s, want room", event.Conversation.Type)
				}
				if event.Source.Platform != factotum.PlatformTelegram {
					t.Fatalf("source platform = %s, want telegram", event.Source.Platform)
				}
			},
		},
		{
			name: "member join update",
			update: Update{
				ID:         "tg:member_join:100:42",
				Type:       UpdateTypeMemberJoin,
				OccurredAt: occurredAt,
				Chat: ChatRef{
					ID:   "100",
					Type: factotum.ConversationTypeRoom,
				},
				Actor: ActorRef{ID: "7"},
				Member: &MemberPayload{
					Member: ActorRef{ID: "42", Username: "alice"},
					Reason: "service_action_chat_add_user",
				},
			},
			assert: func(t *testing.T, event *factotum.Event) {
				t.Helper()
				if event.Kind != factotum.EventKindMemberJoined {
					t.Fatalf("kind = %s, want %s", event.Kind, factotum.EventKindMemberJoined)
				}
				if event.Member == nil {
					t.Fatal("expected member payload")
				}
				if event.Member.Member.Username != "alice" {
					t.Fatalf("member = %+v, want alice", event.Member.Member)
				}
			},
		},
		{
			name: "member leave update",
			update: Update{
				ID:         "tg:member_leave:100:42",
				Type:       UpdateTypeMemberLeave,
				OccurredAt: occurredAt,
				Chat: ChatRef{
					ID:   "100",
					Type: factotum.ConversationTypeRoom,
				},
				Actor: ActorRef{ID: "7"},
				Member: &MemberPayload{
					Member: ActorRef{ID: "42"},
				},
			},
			assert: func(t *testing.T, event *factotum.Event) {
				t.Helper()
				if event.Kind != factotum.EventKindMemberLeft {
					t.Fatalf("kind = %s, want %s", event.Kind, factotum.EventKindMemberLeft)
				}
				if event.Member.Action != factotum.EventKindMemberLeft {
					t.Fatalf("member action = %s, want %s", event.Member.Action, factotum.EventKindMemberLeft)
				}
			},
		},
	}
	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event, err := decoder.Decode(context.Background(), testCase.update)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			testCase.assert(t, event)
		})
	}
}

func TestDefaultDecoderDecodeErrors(t *testing.T) {
	t.Parallel()

	decoder := NewDefaultDecoder()

	tests := []struct {
		name   string
		update Update
	}{
		{
			name: "unsupported type",
			update: Update{
				ID:   "tg:unknown:1",
				Type: UpdateType("unknown"),
				Chat: ChatRef{ID: "100", Type: factotum.ConversationTypeRoom},
			},
		},
		{
			name: "message without payload",
			update: Update{
				ID:   "tg:message:100",
				Type: UpdateTypeMessage,
				Chat: ChatRef{ID: "100", Type: factotum.ConversationTypeRoom},
			},
		},
		{
			name: "member join without payload",
			update: Update{
				ID:   "tg:member_join:100",
				Type: UpdateTypeMemberJoin,
				Chat: ChatRef{ID: "100", Type: factotum.ConversationTypeRoom},
			},
		},
	}
	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if _, err := decoder.Decode(context.Background(), testCase.update); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}
