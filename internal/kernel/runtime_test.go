package kernel

import (
	"testing"

	"factotum/pkg/factotum"
)

func TestAssertSubscriptionAllowed(t *testing.T) {
	t.Parallel()

	messageCapability := factotum.Capability{
		Name: "messages",
		Interest: factotum.InterestSet{
			Kinds: []factotum.EventKind{factotum.EventKindMessageCreated},
		},
	}

	tests := []struct {
		name         string
		capabilities []factotum.Capability
		interest     factotum.InterestSet
		wantErr      bool
	}{
		{
			name:         "no declared capabilities rejects",
			capabilities: nil,
			interest: factotum.InterestSet{
				Kinds: []factotum.EventKind{factotum.EventKindMessageCreated},
			},
			wantErr: true,
		},
		{
			name:         "covered interest allows",
			capabilities: []factotum.Capability{messageCapability},
			interest: factotum.InterestSet{
				Kinds: []factotum.EventKind{factotum.EventKindMessageCreated},
			},
			wantErr: false,
		},
		{
			name:         "uncovered kind rejects",
			capabilities: []factotum.Capability{messageCapability},
			interest: factotum.InterestSet{
				Kinds: []factotum.EventKind{factotum.EventKindMemberJoined},
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := assertSubscriptionAllowed(testCase.capabilities, "sub", testCase.interest)
			if testCase.wantErr && err == nil {
				t.Fatal("expected subscription gate error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected subscription gate error: %v", err)
			}
		})
	}
}
