package api

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/huddlekit/huddle/internal/domain"
)

func TestValidateRequiredFields(t *testing.T) {
	session := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "sdp"}
	candidate := webrtc.ICECandidateInit{Candidate: "cand"}

	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"join with name", Envelope{Type: MessageJoin, Name: "Alice"}, false},
		{"join without name", Envelope{Type: MessageJoin}, true},
		{"media-update with payload", Envelope{Type: MessageMediaUpdate, MediaState: &domain.MediaState{MicOn: true}}, false},
		{"media-update without payload", Envelope{Type: MessageMediaUpdate}, true},
		{"offer complete", Envelope{Type: MessageOffer, To: "b", Session: &session}, false},
		{"offer without recipient", Envelope{Type: MessageOffer, Session: &session}, true},
		{"offer without session", Envelope{Type: MessageOffer, To: "b"}, true},
		{"answer complete", Envelope{Type: MessageAnswer, To: "a", Session: &session}, false},
		{"ice-candidate complete", Envelope{Type: MessageICECandidate, To: "b", Candidate: &candidate}, false},
		{"ice-candidate without candidate", Envelope{Type: MessageICECandidate, To: "b"}, true},
		{"set-quality valid tier", Envelope{Type: MessageSetQuality, To: "b", Quality: &QualityPayload{Tier: domain.QualityLow}}, false},
		{"set-quality without recipient broadcasts", Envelope{Type: MessageSetQuality, Quality: &QualityPayload{Tier: domain.QualityLow}}, false},
		{"set-quality bogus tier", Envelope{Type: MessageSetQuality, To: "b", Quality: &QualityPayload{Tier: "ultra"}}, true},
		{"set-quality-request without recipient", Envelope{Type: MessageSetQualityRequest, Quality: &QualityPayload{Tier: domain.QualityLow}}, true},
		{"set-quality without payload", Envelope{Type: MessageSetQualityRequest, To: "b"}, true},
		{"create-offer with recipient", Envelope{Type: MessageCreateOffer, To: "b"}, false},
		{"create-offer without recipient", Envelope{Type: MessageCreateOffer}, true},
		{"ping", Envelope{Type: MessagePing}, false},
		{"unknown type", Envelope{Type: "teleport"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestIsTargeted(t *testing.T) {
	targeted := []MessageType{
		MessageCreateOffer, MessageOffer, MessageAnswer, MessageICECandidate,
		MessageSetQuality, MessageSetQualityRequest, MessageSetQualityDone,
	}
	for _, mt := range targeted {
		if !mt.IsTargeted() {
			t.Errorf("%s must be targeted", mt)
		}
	}

	broadcast := []MessageType{MessageJoin, MessageMediaUpdate, MessageLeave, MessageUserList, MessagePing}
	for _, mt := range broadcast {
		if mt.IsTargeted() {
			t.Errorf("%s must not be targeted", mt)
		}
	}
}

func TestToUsers(t *testing.T) {
	participants := []domain.Participant{
		{ID: "1", Name: "Alice", Media: domain.MediaState{MicOn: true}},
		{ID: "2", Name: "Bob"},
	}

	users := ToUsers(participants)
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].ID != "1" || users[0].Name != "Alice" || !users[0].MediaState.MicOn {
		t.Fatalf("unexpected first user: %+v", users[0])
	}
}
