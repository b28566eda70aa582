package domain

import (
	"errors"
	"time"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyJoined       = errors.New("participant already joined")
	ErrStreamOffline       = errors.New("participant stream is offline")
)

// MediaState mirrors what a participant reports about its own outgoing media.
// It is only ever mutated in response to messages from that participant's
// stream; everyone else sees it through broadcasts.
type MediaState struct {
	MicOn         bool `json:"micOn"`
	CameraOn      bool `json:"cameraOn"`
	ScreenSharing bool `json:"screenSharing"`
}

type Participant struct {
	ID       string
	Name     string
	Media    MediaState
	JoinedAt time.Time
}

type Room struct {
	ID        string
	CreatedAt time.Time
}

// RoomFeatures are the room-level feature switches owned by the external
// config store. The relay only reads them; it never writes back.
type RoomFeatures struct {
	VideoEnabled    bool
	TerminalEnabled bool
	ChatEnabled     bool
	Hosts           []string
}

type RoomRegistry interface {
	Join(roomID string, p Participant) error
	Leave(roomID, participantID string) (remaining int, err error)
	Get(roomID, participantID string) (Participant, error)
	Members(roomID string) ([]Participant, error)
	UpdateMediaState(roomID, participantID string, media MediaState) (Participant, error)
	RoomCount() int
	Close()
}
