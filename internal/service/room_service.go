package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/metrics"
)

// RoomService implements the membership semantics of the relay: id
// assignment, the member list a joiner sees (never including itself), and
// media-state bookkeeping.
type RoomService struct {
	registry domain.RoomRegistry
}

func NewRoomService(registry domain.RoomRegistry) *RoomService {
	return &RoomService{registry: registry}
}

// Join registers a participant under a fresh server-assigned id and returns
// it together with the other members present at join time.
func (s *RoomService) Join(roomID, displayName string) (domain.Participant, []domain.Participant, error) {
	p := domain.Participant{
		ID:       uuid.NewString(),
		Name:     displayName,
		JoinedAt: time.Now(),
	}

	if err := s.registry.Join(roomID, p); err != nil {
		return domain.Participant{}, nil, err
	}

	members, err := s.registry.Members(roomID)
	if err != nil {
		return domain.Participant{}, nil, err
	}

	others := make([]domain.Participant, 0, len(members)-1)
	for _, m := range members {
		if m.ID != p.ID {
			others = append(others, m)
		}
	}

	metrics.ParticipantsJoinedTotal.Inc()
	metrics.ActiveParticipants.Inc()

	return p, others, nil
}

// Leave removes the participant and returns the members remaining in the
// room, the broadcast targets for the departure notice.
func (s *RoomService) Leave(roomID, participantID string) ([]domain.Participant, error) {
	if _, err := s.registry.Leave(roomID, participantID); err != nil {
		return nil, err
	}

	metrics.ActiveParticipants.Dec()

	remaining, err := s.registry.Members(roomID)
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

func (s *RoomService) Get(roomID, participantID string) (domain.Participant, error) {
	return s.registry.Get(roomID, participantID)
}

// UpdateMediaState applies a participant's own media report and returns the
// other members the change is broadcast to.
func (s *RoomService) UpdateMediaState(roomID, participantID string, media domain.MediaState) (domain.Participant, []domain.Participant, error) {
	p, err := s.registry.UpdateMediaState(roomID, participantID, media)
	if err != nil {
		return domain.Participant{}, nil, err
	}

	members, err := s.registry.Members(roomID)
	if err != nil {
		return domain.Participant{}, nil, err
	}

	others := make([]domain.Participant, 0, len(members)-1)
	for _, m := range members {
		if m.ID != participantID {
			others = append(others, m)
		}
	}
	return p, others, nil
}

func (s *RoomService) Members(roomID string) ([]domain.Participant, error) {
	return s.registry.Members(roomID)
}
