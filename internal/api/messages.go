package api

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/huddlekit/huddle/internal/domain"
)

type MessageType string

const (
	// client -> relay
	MessageJoin        = MessageType("join")
	MessageMediaUpdate = MessageType("media-update")

	// relay -> client
	MessageAssignID = MessageType("assign-id")
	MessageUserList = MessageType("user-list")
	MessageLeave    = MessageType("leave")
	MessageKicked   = MessageType("kicked")

	// connection liveness
	MessagePing = MessageType("ping")
	MessagePong = MessageType("pong")

	// relayed verbatim between participants
	MessageCreateOffer       = MessageType("create-offer")
	MessageOffer             = MessageType("offer")
	MessageAnswer            = MessageType("answer")
	MessageICECandidate      = MessageType("ice-candidate")
	MessageSetQuality        = MessageType("set-quality")
	MessageSetQualityRequest = MessageType("set-quality-request")
	MessageSetQualityDone    = MessageType("set-quality-done")
)

// Envelope is the single wire format for every message crossing a room
// stream. Exactly one payload pointer is set, matching Type. The relay
// validates envelopes at the boundary and never looks inside Session or
// Candidate payloads.
type Envelope struct {
	Type MessageType `json:"type"`
	From string      `json:"from,omitempty"`
	To   string      `json:"to,omitempty"`
	Name string      `json:"name,omitempty"`

	AssignID   *AssignIDPayload           `json:"assignId,omitempty"`
	Users      []User                     `json:"users,omitempty"`
	Session    *webrtc.SessionDescription `json:"session,omitempty"`
	Candidate  *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	MediaState *domain.MediaState         `json:"mediaState,omitempty"`
	Quality    *QualityPayload            `json:"quality,omitempty"`
	Kicked     *KickedPayload             `json:"kicked,omitempty"`
	Ping       *PingPayload               `json:"ping,omitempty"`
}

type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type AssignIDPayload struct {
	ID string `json:"id"`
}

type QualityPayload struct {
	Tier domain.QualityTier `json:"tier"`
}

type KickedPayload struct {
	Reason string `json:"reason"`
}

// User is the wire representation of a room member.
type User struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	MediaState domain.MediaState `json:"mediaState"`
}

func ToUser(p domain.Participant) User {
	return User{ID: p.ID, Name: p.Name, MediaState: p.Media}
}

func ToUsers(participants []domain.Participant) []User {
	users := make([]User, len(participants))
	for i, p := range participants {
		users[i] = ToUser(p)
	}
	return users
}

// IsTargeted reports whether this message type is forwarded to a single
// named recipient rather than interpreted by the relay.
func (t MessageType) IsTargeted() bool {
	switch t {
	case MessageCreateOffer, MessageOffer, MessageAnswer, MessageICECandidate,
		MessageSetQuality, MessageSetQualityRequest, MessageSetQualityDone:
		return true
	}
	return false
}

// Validate checks that the envelope carries the fields its type requires.
// A failed validation drops the single message, never the stream.
func (e *Envelope) Validate() error {
	switch e.Type {
	case MessageJoin:
		if e.Name == "" {
			return fmt.Errorf("join requires a display name")
		}
	case MessageMediaUpdate:
		if e.MediaState == nil {
			return fmt.Errorf("media-update requires a media state payload")
		}
	case MessageOffer, MessageAnswer:
		if e.To == "" {
			return fmt.Errorf("%s requires a recipient", e.Type)
		}
		if e.Session == nil {
			return fmt.Errorf("%s requires a session description", e.Type)
		}
	case MessageICECandidate:
		if e.To == "" {
			return fmt.Errorf("ice-candidate requires a recipient")
		}
		if e.Candidate == nil {
			return fmt.Errorf("ice-candidate requires a candidate payload")
		}
	case MessageSetQuality:
		// a recipient is optional: without one the directive is broadcast
		// to the whole room
		if e.Quality == nil {
			return fmt.Errorf("set-quality requires a quality payload")
		}
		if _, err := domain.ParseQualityTier(string(e.Quality.Tier)); err != nil {
			return err
		}
	case MessageSetQualityRequest, MessageSetQualityDone:
		if e.To == "" {
			return fmt.Errorf("%s requires a recipient", e.Type)
		}
		if e.Quality == nil {
			return fmt.Errorf("%s requires a quality payload", e.Type)
		}
		if _, err := domain.ParseQualityTier(string(e.Quality.Tier)); err != nil {
			return err
		}
	case MessageCreateOffer:
		if e.To == "" {
			return fmt.Errorf("create-offer requires a recipient")
		}
	case MessagePing, MessagePong:
		// no required fields
	case MessageAssignID, MessageUserList, MessageLeave, MessageKicked:
		// relay-originated; trusted
	default:
		return fmt.Errorf("unknown message type %q", e.Type)
	}
	return nil
}
