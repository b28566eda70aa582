package relay

import (
	"log/slog"
	"sync"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/metrics"
	"github.com/huddlekit/huddle/internal/sockets"
)

// FeatureSource answers room-level feature lookups. It is provided by the
// external config/document store; the bridge never learns that store's
// schema.
type FeatureSource func(roomID string) domain.RoomFeatures

// AdminBridge is the registry of live streams keyed by (room, participant).
// It exists so external collaborators can force-disconnect a participant or
// push an out-of-band broadcast without touching relay internals. An entry
// has no lifecycle of its own beyond the connection it shadows.
type AdminBridge struct {
	mu       sync.RWMutex
	rooms    map[string]*sockets.SocketPool
	features FeatureSource
}

func NewAdminBridge() *AdminBridge {
	return &AdminBridge{
		rooms: make(map[string]*sockets.SocketPool),
	}
}

func (b *AdminBridge) RegisterStream(roomID, participantID string, soc sockets.Socket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, ok := b.rooms[roomID]
	if !ok {
		pool = sockets.NewSocketPool()
		b.rooms[roomID] = pool
	}
	pool.AddSocket(sockets.SocketID(participantID), soc)
}

func (b *AdminBridge) Unregister(roomID, participantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, ok := b.rooms[roomID]
	if !ok {
		return
	}
	pool.RemoveSocket(sockets.SocketID(participantID))
	if pool.Len() == 0 {
		delete(b.rooms, roomID)
	}
}

func (b *AdminBridge) roomPool(roomID string) *sockets.SocketPool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rooms[roomID]
}

// SendTo forwards an envelope to a single participant's stream. Returns
// domain.ErrStreamOffline if the recipient is not connected; the caller
// decides whether that is a drop-and-log or an error.
func (b *AdminBridge) SendTo(roomID, participantID string, env api.Envelope) error {
	pool := b.roomPool(roomID)
	if pool == nil {
		return domain.ErrStreamOffline
	}
	soc := pool.GetSocket(sockets.SocketID(participantID))
	if soc == nil {
		return domain.ErrStreamOffline
	}
	return soc.WriteJSON(env)
}

// Broadcast pushes an envelope to every stream in the room, optionally
// excluding one participant (the usual "everyone but the sender" rule).
func (b *AdminBridge) Broadcast(roomID, exceptID string, env api.Envelope) {
	pool := b.roomPool(roomID)
	if pool == nil {
		return
	}

	metrics.BroadcastsTotal.WithLabelValues(string(env.Type)).Inc()

	pool.Each(func(id sockets.SocketID, soc sockets.Socket) {
		if string(id) == exceptID {
			return
		}
		if err := soc.WriteJSON(env); err != nil {
			slog.Warn("failed to broadcast message", "roomID", roomID, "participantID", id, "type", env.Type, "error", err)
		}
	})
}

// ForceDisconnect sends a kicked notice and closes the target's stream. The
// normal leave path then cleans up membership and notifies the room.
func (b *AdminBridge) ForceDisconnect(roomID, participantID, reason string) error {
	pool := b.roomPool(roomID)
	if pool == nil {
		return domain.ErrRoomNotFound
	}
	soc := pool.GetSocket(sockets.SocketID(participantID))
	if soc == nil {
		return domain.ErrParticipantNotFound
	}

	_ = soc.WriteJSON(api.Envelope{
		Type:   api.MessageKicked,
		Kicked: &api.KickedPayload{Reason: reason},
	})

	metrics.ForcedDisconnectsTotal.Inc()
	slog.Info("forced disconnect", "roomID", roomID, "participantID", participantID, "reason", reason)

	return soc.Close()
}

func (b *AdminBridge) MemberCount(roomID string) int {
	pool := b.roomPool(roomID)
	if pool == nil {
		return 0
	}
	return pool.Len()
}

func (b *AdminBridge) SetFeatureSource(f FeatureSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.features = f
}

func (b *AdminBridge) Features(roomID string) domain.RoomFeatures {
	b.mu.RLock()
	f := b.features
	b.mu.RUnlock()

	if f == nil {
		// no external store wired up; everything enabled
		return domain.RoomFeatures{VideoEnabled: true, TerminalEnabled: true, ChatEnabled: true}
	}
	return f(roomID)
}

func (b *AdminBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, pool := range b.rooms {
		pool.Close()
		delete(b.rooms, id)
	}
}
