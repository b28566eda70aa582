package memory

import (
	"sync"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/metrics"
)

// RoomRegistry is the process-wide map from room id to room state. Rooms
// are created lazily on first join and deleted once empty, after a grace
// period that absorbs rapid reconnects. The registry mutex only guards the
// room map; each room carries its own lock so streams in different rooms
// never contend.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
	grace time.Duration
}

type roomEntry struct {
	mu          sync.Mutex
	room        domain.Room
	members     map[string]domain.Participant
	deleteTimer *time.Timer
}

func NewRoomRegistry(grace time.Duration) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*roomEntry),
		grace: grace,
	}
}

func (r *RoomRegistry) Join(roomID string, p domain.Participant) error {
	r.mu.Lock()
	entry, ok := r.rooms[roomID]
	if !ok {
		entry = &roomEntry{
			room:    domain.Room{ID: roomID, CreatedAt: time.Now()},
			members: make(map[string]domain.Participant),
		}
		r.rooms[roomID] = entry
		metrics.RoomsCreatedTotal.Inc()
		metrics.ActiveRooms.Set(float64(len(r.rooms)))
	}
	r.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if _, exists := entry.members[p.ID]; exists {
		return domain.ErrAlreadyJoined
	}

	// a rejoin within the grace period keeps the room alive
	if entry.deleteTimer != nil {
		entry.deleteTimer.Stop()
		entry.deleteTimer = nil
	}

	entry.members[p.ID] = p
	return nil
}

func (r *RoomRegistry) Leave(roomID, participantID string) (int, error) {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return 0, domain.ErrRoomNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if _, exists := entry.members[participantID]; !exists {
		return len(entry.members), domain.ErrParticipantNotFound
	}

	delete(entry.members, participantID)
	remaining := len(entry.members)

	if remaining == 0 {
		if entry.deleteTimer != nil {
			entry.deleteTimer.Stop()
		}
		entry.deleteTimer = time.AfterFunc(r.grace, func() {
			r.deleteIfEmpty(roomID, entry)
		})
	}

	return remaining, nil
}

func (r *RoomRegistry) deleteIfEmpty(roomID string, entry *roomEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rooms[roomID]
	if !ok || current != entry {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if len(entry.members) > 0 {
		return
	}

	delete(r.rooms, roomID)
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
}

func (r *RoomRegistry) Get(roomID, participantID string) (domain.Participant, error) {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return domain.Participant{}, domain.ErrRoomNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	p, exists := entry.members[participantID]
	if !exists {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (r *RoomRegistry) Members(roomID string) ([]domain.Participant, error) {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	members := make([]domain.Participant, 0, len(entry.members))
	for _, p := range entry.members {
		members = append(members, p)
	}
	return members, nil
}

func (r *RoomRegistry) UpdateMediaState(roomID, participantID string, media domain.MediaState) (domain.Participant, error) {
	r.mu.RLock()
	entry, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return domain.Participant{}, domain.ErrRoomNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	p, exists := entry.members[participantID]
	if !exists {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}

	p.Media = media
	entry.members[participantID] = p
	return p, nil
}

func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *RoomRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, entry := range r.rooms {
		entry.mu.Lock()
		if entry.deleteTimer != nil {
			entry.deleteTimer.Stop()
		}
		entry.mu.Unlock()
		delete(r.rooms, id)
	}
	metrics.ActiveRooms.Set(0)
}
