package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/metrics"
	"github.com/huddlekit/huddle/internal/sockets"
)

// connectionLoop owns the outbound side of one participant stream: a
// buffered message queue drained by a writer goroutine, plus periodic
// liveness pings. Session-originated sends go through the queue so the read
// loop never blocks on a slow socket.
type connectionLoop struct {
	socket     sockets.Socket
	socketID   sockets.SocketID
	messages   chan api.Envelope
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	pingTicker *time.Ticker
}

func newConnectionLoop(socket sockets.Socket, socketID sockets.SocketID, pingInterval time.Duration) *connectionLoop {
	ctx, cancel := context.WithCancel(context.Background())
	return &connectionLoop{
		socket:     socket,
		socketID:   socketID,
		messages:   make(chan api.Envelope, 16),
		ctx:        ctx,
		cancel:     cancel,
		pingTicker: time.NewTicker(pingInterval),
	}
}

func (l *connectionLoop) Start() {
	l.wg.Add(2)
	go l.messageWriterLoop()
	go l.pingLoop()
}

func (l *connectionLoop) Stop() {
	l.cancel()
	l.pingTicker.Stop()
	l.wg.Wait()
}

func (l *connectionLoop) Send(msg api.Envelope) {
	select {
	case l.messages <- msg:
	case <-l.ctx.Done():
	}
}

func (l *connectionLoop) messageWriterLoop() {
	defer l.wg.Done()

	for {
		select {
		case msg := <-l.messages:
			if err := l.socket.WriteJSON(msg); err != nil {
				slog.Error("failed to send message to participant", "socketID", l.socketID, "error", err)
				// take the ping loop down too; nobody drains the queue
				// after the writer exits
				l.cancel()
				return
			}
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *connectionLoop) pingLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.pingTicker.C:
			l.Send(api.Envelope{
				Type: api.MessagePing,
				Ping: &api.PingPayload{Timestamp: time.Now().Unix()},
			})
		case <-l.ctx.Done():
			return
		}
	}
}

// handleRoomSocket runs the full lifecycle of one participant stream. The
// first message must be a join carrying a display name; everything before
// that is the anonymous phase and anything malformed there ends the stream.
// After registration a malformed message only costs itself.
func (s *Server) handleRoomSocket(c *websocket.Conn, roomID string) {
	soc := sockets.NewSocket(c)

	var first api.Envelope
	if err := soc.ReadJSON(&first); err != nil {
		slog.Debug("stream closed before join", "roomID", roomID)
		return
	}
	if first.Type != api.MessageJoin {
		slog.Warn("first message was not a join", "roomID", roomID, "type", first.Type)
		return
	}
	if err := first.Validate(); err != nil {
		slog.Warn("invalid join message", "roomID", roomID, "error", err)
		return
	}

	p, others, err := s.admit(roomID, first.Name, soc)
	if err != nil {
		slog.Error("failed to join room", "roomID", roomID, "name", first.Name, "error", err)
		return
	}

	loop := newConnectionLoop(soc, sockets.SocketID(p.ID), s.cfg.Get().Server.PingInterval())
	loop.Start()

	connectedAt := time.Now()
	slog.Info("participant joined", "roomID", roomID, "participantID", p.ID, "name", p.Name)

	defer func() {
		loop.Stop()
		s.finishLeave(roomID, p)
		metrics.ConnectionDuration.Observe(time.Since(connectedAt).Seconds())
	}()

	loop.Send(api.Envelope{
		Type:     api.MessageAssignID,
		AssignID: &api.AssignIDPayload{ID: p.ID},
	})
	loop.Send(api.Envelope{
		Type:  api.MessageUserList,
		Users: api.ToUsers(others),
	})

	// existing members learn about the newcomer and initiate toward it
	s.bridge.Broadcast(roomID, p.ID, api.Envelope{
		Type:       api.MessageJoin,
		From:       p.ID,
		Name:       p.Name,
		MediaState: &domain.MediaState{},
	})

	for {
		var env api.Envelope
		if err := soc.ReadJSON(&env); err != nil {
			slog.Debug("participant disconnected", "roomID", roomID, "participantID", p.ID, "error", err)
			return
		}

		if err := env.Validate(); err != nil {
			metrics.MessagesDroppedTotal.WithLabelValues("malformed").Inc()
			slog.Warn("dropping malformed message", "roomID", roomID, "participantID", p.ID, "error", err)
			continue
		}

		s.dispatch(roomID, p, env)
	}
}

// admit registers the joiner in the room registry and the admin bridge as
// a single step. Two streams joining the same room interleave arbitrarily;
// without the lock one joiner's member snapshot could contain a participant
// whose stream is not yet broadcast-reachable, and its join announcement
// would silently miss that participant.
func (s *Server) admit(roomID, name string, soc sockets.Socket) (domain.Participant, []domain.Participant, error) {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	p, others, err := s.rooms.Join(roomID, name)
	if err != nil {
		return domain.Participant{}, nil, err
	}
	s.bridge.RegisterStream(roomID, p.ID, soc)
	return p, others, nil
}

// finishLeave removes the participant and notifies the remaining members.
// It runs for every exit path: normal close, transport error, forced
// disconnect.
func (s *Server) finishLeave(roomID string, p domain.Participant) {
	s.admitMu.Lock()
	s.bridge.Unregister(roomID, p.ID)
	_, err := s.rooms.Leave(roomID, p.ID)
	s.admitMu.Unlock()

	if err != nil {
		slog.Warn("leave bookkeeping failed", "roomID", roomID, "participantID", p.ID, "error", err)
		return
	}

	s.bridge.Broadcast(roomID, p.ID, api.Envelope{
		Type: api.MessageLeave,
		From: p.ID,
		Name: p.Name,
	})

	slog.Info("participant left", "roomID", roomID, "participantID", p.ID, "name", p.Name)
}
