package peer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/config"
)

// ErrClosed is returned by EnsureLink after Close; a late join announcement
// must not resurrect the mesh.
var ErrClosed = errors.New("peer manager closed")

// Sender pushes envelopes toward the relay. The signaling client satisfies
// it; tests swap in a recorder.
type Sender interface {
	Send(env api.Envelope)
}

// Manager owns one Link per room counterpart and routes signaling traffic
// to them. Joining peers are offered to by the members already in the room,
// so for any pair exactly one side initiates and glare resolves
// deterministically.
type Manager struct {
	cfg     config.ClientConfig
	sender  Sender
	factory TransportFactory

	mu     sync.Mutex
	links  map[string]*Link
	closed bool
	wg     sync.WaitGroup

	events chan LinkEvent
}

func NewManager(cfg config.ClientConfig, sender Sender, factory TransportFactory) *Manager {
	return &Manager{
		cfg:     cfg,
		sender:  sender,
		factory: factory,
		links:   make(map[string]*Link),
		events:  make(chan LinkEvent, 32),
	}
}

// Events reports link lifecycle changes. The channel is buffered; a stalled
// consumer drops events rather than wedging negotiation. Close closes the
// channel once every link goroutine has stopped, so a ranging consumer
// terminates with the manager.
func (m *Manager) Events() <-chan LinkEvent {
	return m.events
}

func (m *Manager) emit(ev LinkEvent) {
	select {
	case m.events <- ev:
	default:
		slog.Warn("dropping link event, consumer too slow", "peerID", ev.PeerID, "state", ev.State)
	}
}

// EnsureLink returns the link for peerID, creating it if absent. The
// initiator flag only matters at creation time; an existing link keeps its
// original role.
func (m *Manager) EnsureLink(peerID, displayName string, initiator bool) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if l, ok := m.links[peerID]; ok {
		return l, nil
	}

	m.wg.Add(1)
	l, err := newLink(m, peerID, displayName, initiator)
	if err != nil {
		m.wg.Done()
		return nil, err
	}
	m.links[peerID] = l
	return l, nil
}

// Teardown closes and forgets the link for peerID. Unknown peers are a
// no-op, so a leave racing a failed join never errors.
func (m *Manager) Teardown(peerID string) {
	m.mu.Lock()
	l, ok := m.links[peerID]
	delete(m.links, peerID)
	m.mu.Unlock()

	if ok {
		l.push(linkCommand{kind: cmdTeardown})
	}
}

// Close tears down every link, waits for their goroutines to finish and
// closes the event stream. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	links := m.links
	m.links = make(map[string]*Link)
	m.mu.Unlock()

	for _, l := range links {
		l.push(linkCommand{kind: cmdTeardown})
	}
	m.wg.Wait()
	close(m.events)
}

// Peers lists the counterparts with a live link.
func (m *Manager) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	peers := make([]string, 0, len(m.links))
	for id := range m.links {
		peers = append(peers, id)
	}
	return peers
}

// InboundBytes reports cumulative bytes received from peerID. The second
// return is false when no link exists or its transport cannot report stats.
func (m *Manager) InboundBytes(peerID string) (uint64, bool) {
	l, ok := m.link(peerID)
	if !ok {
		return 0, false
	}
	if r, ok := l.currentTransport().(interface{ InboundBytes() uint64 }); ok {
		return r.InboundBytes(), true
	}
	return 0, false
}

func (m *Manager) link(peerID string) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[peerID]
	return l, ok
}

// HandleEnvelope routes one relay message into the mesh. Membership
// messages create and destroy links; negotiation messages go to the
// matching link's queue. Anything the mesh does not own is ignored here
// and left to other subscribers of the incoming stream.
func (m *Manager) HandleEnvelope(env api.Envelope) {
	switch env.Type {
	case api.MessageJoin:
		// a newcomer announced; we were here first, so we initiate
		l, err := m.EnsureLink(env.From, env.Name, true)
		if err != nil {
			slog.Error("failed to create link for joining peer", "peerID", env.From, "error", err)
			return
		}
		l.push(linkCommand{kind: cmdStartOffer})

	case api.MessageUserList:
		// we are the newcomer; existing members will offer to us
		for _, u := range env.Users {
			if _, err := m.EnsureLink(u.ID, u.Name, false); err != nil {
				slog.Error("failed to create link for existing member", "peerID", u.ID, "error", err)
			}
		}

	case api.MessageLeave, api.MessageKicked:
		m.Teardown(env.From)

	case api.MessageCreateOffer:
		// explicit renegotiation request from the counterpart
		l, err := m.EnsureLink(env.From, env.Name, true)
		if err != nil {
			slog.Error("failed to create link for offer request", "peerID", env.From, "error", err)
			return
		}
		l.push(linkCommand{kind: cmdStartOffer})

	case api.MessageOffer:
		if env.Session == nil {
			return
		}
		// an offer from a peer we have no link for still gets answered;
		// the offerer is the initiator by definition
		l, err := m.EnsureLink(env.From, env.Name, false)
		if err != nil {
			slog.Error("failed to create link for incoming offer", "peerID", env.From, "error", err)
			return
		}
		l.push(linkCommand{kind: cmdRemoteOffer, desc: *env.Session})

	case api.MessageAnswer:
		if env.Session == nil {
			return
		}
		if l, ok := m.link(env.From); ok {
			l.push(linkCommand{kind: cmdRemoteAnswer, desc: *env.Session})
		} else {
			slog.Warn("answer from unknown peer dropped", "peerID", env.From)
		}

	case api.MessageICECandidate:
		if env.Candidate == nil {
			return
		}
		if l, ok := m.link(env.From); ok {
			l.push(linkCommand{kind: cmdRemoteCandidate, cand: *env.Candidate})
		} else {
			slog.Warn("candidate from unknown peer dropped", "peerID", env.From)
		}
	}
}
