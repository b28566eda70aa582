package relay

import (
	"errors"
	"log/slog"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/metrics"
)

// dispatch routes one validated envelope from a registered participant.
// Targeted messages are forwarded verbatim to the named recipient. An
// unknown recipient is dropped with a log line, never an error reply; the
// sender cannot usefully react to the race between "peer just left" and "I
// tried to message them".
func (s *Server) dispatch(roomID string, from domain.Participant, env api.Envelope) {
	switch {
	case env.Type == api.MessageMediaUpdate:
		s.handleMediaUpdate(roomID, from, env)

	case env.Type == api.MessageSetQuality && env.To == "":
		// broadcast form of the quality directive, room-wide minus sender
		env.From = from.ID
		s.bridge.Broadcast(roomID, from.ID, env)

	case env.Type.IsTargeted():
		env.From = from.ID
		if err := s.bridge.SendTo(roomID, env.To, env); err != nil {
			if errors.Is(err, domain.ErrStreamOffline) {
				metrics.MessagesDroppedTotal.WithLabelValues("unknown_recipient").Inc()
				slog.Info("dropping message for unknown recipient",
					"roomID", roomID, "from", from.ID, "to", env.To, "type", env.Type)
				return
			}
			slog.Warn("failed to forward message",
				"roomID", roomID, "from", from.ID, "to", env.To, "type", env.Type, "error", err)
			return
		}
		metrics.MessagesRelayedTotal.WithLabelValues(string(env.Type)).Inc()

	case env.Type == api.MessagePong:
		// liveness reply, nothing to do

	case env.Type == api.MessageJoin:
		slog.Warn("duplicate join ignored", "roomID", roomID, "participantID", from.ID)

	default:
		metrics.MessagesDroppedTotal.WithLabelValues("malformed").Inc()
		slog.Warn("unroutable message", "roomID", roomID, "participantID", from.ID, "type", env.Type)
	}
}

// handleMediaUpdate applies the sender's own media report and broadcasts the
// change to every other member, never back to the sender.
func (s *Server) handleMediaUpdate(roomID string, from domain.Participant, env api.Envelope) {
	p, others, err := s.rooms.UpdateMediaState(roomID, from.ID, *env.MediaState)
	if err != nil {
		slog.Warn("failed to update media state", "roomID", roomID, "participantID", from.ID, "error", err)
		return
	}

	out := api.Envelope{
		Type:       api.MessageMediaUpdate,
		From:       p.ID,
		Name:       p.Name,
		MediaState: &p.Media,
	}
	for _, member := range others {
		if err := s.bridge.SendTo(roomID, member.ID, out); err != nil {
			slog.Debug("skipping media update for offline member", "roomID", roomID, "memberID", member.ID)
		}
	}
	metrics.BroadcastsTotal.WithLabelValues(string(api.MessageMediaUpdate)).Inc()
}
