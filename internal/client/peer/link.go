package peer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/huddlekit/huddle/internal/api"
)

// SignalingPhase enumerates where a link is in the offer/answer round trip.
type SignalingPhase int

const (
	PhaseStable SignalingPhase = iota
	PhaseHaveLocalOffer
	PhaseHaveRemoteOffer
	PhaseClosed
)

func (p SignalingPhase) String() string {
	switch p {
	case PhaseStable:
		return "stable"
	case PhaseHaveLocalOffer:
		return "have-local-offer"
	case PhaseHaveRemoteOffer:
		return "have-remote-offer"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// LinkState is the connection lifecycle surfaced to the UI and the quality
// controller.
type LinkState string

const (
	StateConnecting LinkState = "connecting"
	StateConnected  LinkState = "connected"
	StateFailed     LinkState = "failed"
	StateClosed     LinkState = "closed"
)

type LinkEvent struct {
	PeerID string
	State  LinkState
	Err    error
}

type cmdKind int

const (
	cmdStartOffer cmdKind = iota
	cmdRemoteOffer
	cmdRemoteAnswer
	cmdRemoteCandidate
	cmdTransportState
	cmdTeardown
)

type linkCommand struct {
	kind     cmdKind
	desc     webrtc.SessionDescription
	cand     webrtc.ICECandidateInit
	state    TransportState
	requeued bool
}

// Link is the negotiation state machine for exactly one counterpart. All
// state lives on the run goroutine; commands arrive through a queue, so no
// two negotiation steps for the same link ever interleave, while separate
// links progress independently.
type Link struct {
	peerID      string
	displayName string
	isInitiator bool
	mgr         *Manager

	// transport is written by the run goroutine on retry; the mutex lets
	// the stats sampler read it from outside.
	tmu       sync.Mutex
	transport Transport

	phase             SignalingPhase
	attempts          int
	remoteSet         bool
	pendingCandidates []webrtc.ICECandidateInit
	failedNotified    bool
	requeueTimer      *time.Timer

	cmds chan linkCommand
	done chan struct{}
}

func newLink(mgr *Manager, peerID, displayName string, isInitiator bool) (*Link, error) {
	l := &Link{
		peerID:      peerID,
		displayName: displayName,
		isInitiator: isInitiator,
		mgr:         mgr,
		phase:       PhaseStable,
		cmds:        make(chan linkCommand, 32),
		done:        make(chan struct{}),
	}

	transport, err := l.buildTransport()
	if err != nil {
		return nil, err
	}
	l.setTransport(transport)

	go l.run()
	return l, nil
}

func (l *Link) setTransport(t Transport) {
	l.tmu.Lock()
	l.transport = t
	l.tmu.Unlock()
}

func (l *Link) currentTransport() Transport {
	l.tmu.Lock()
	defer l.tmu.Unlock()
	return l.transport
}

func (l *Link) buildTransport() (Transport, error) {
	transport, err := l.mgr.factory(l.peerID, TransportHooks{
		OnICECandidate: func(cand webrtc.ICECandidateInit) {
			l.mgr.sender.Send(api.Envelope{
				Type:      api.MessageICECandidate,
				To:        l.peerID,
				Candidate: &cand,
			})
		},
		OnStateChange: func(state TransportState) {
			l.push(linkCommand{kind: cmdTransportState, state: state})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transport for %s: %w", l.peerID, err)
	}
	return transport, nil
}

// push enqueues a command unless the link is already torn down.
func (l *Link) push(cmd linkCommand) {
	select {
	case l.cmds <- cmd:
	case <-l.done:
	}
}

func (l *Link) run() {
	defer l.mgr.wg.Done()
	for {
		select {
		case cmd := <-l.cmds:
			l.handle(cmd)
			l.checkInvariants()
			if l.phase == PhaseClosed {
				close(l.done)
				return
			}
		case <-l.done:
			return
		}
	}
}

func (l *Link) handle(cmd linkCommand) {
	switch cmd.kind {
	case cmdStartOffer:
		l.startOffer()
	case cmdRemoteOffer:
		l.handleRemoteOffer(cmd.desc)
	case cmdRemoteAnswer:
		l.handleRemoteAnswer(cmd.desc, cmd.requeued)
	case cmdRemoteCandidate:
		l.handleRemoteCandidate(cmd.cand)
	case cmdTransportState:
		l.handleTransportState(cmd.state)
	case cmdTeardown:
		l.teardown()
	}
}

// checkInvariants guards the buffering rule after every transition:
// candidates may only be queued while the remote description is unset.
func (l *Link) checkInvariants() {
	if l.remoteSet && len(l.pendingCandidates) > 0 {
		slog.Error("pending candidates survived remote description, draining",
			"peerID", l.peerID, "count", len(l.pendingCandidates))
		l.drainCandidates()
	}
}

func (l *Link) startOffer() {
	if l.phase == PhaseClosed {
		return
	}
	if l.phase == PhaseHaveLocalOffer {
		// offer already in flight
		return
	}

	if l.attempts == 0 {
		l.attempts = 1
	}

	offer, err := l.transport.CreateOffer()
	if err != nil {
		slog.Error("failed to create offer", "peerID", l.peerID, "error", err)
		l.failLink(err)
		return
	}

	l.phase = PhaseHaveLocalOffer
	l.emit(StateConnecting, nil)
	l.mgr.sender.Send(api.Envelope{
		Type:    api.MessageOffer,
		To:      l.peerID,
		Session: &offer,
	})
}

func (l *Link) handleRemoteOffer(offer webrtc.SessionDescription) {
	switch l.phase {
	case PhaseClosed:
		return

	case PhaseHaveLocalOffer:
		// Glare: both sides offered at once. The designated initiator's
		// offer stands; the polite side rolls back and answers.
		if l.isInitiator {
			slog.Info("glare: dropping remote offer, ours stands", "peerID", l.peerID)
			return
		}
		slog.Info("glare: rolling back local offer", "peerID", l.peerID)
		if err := l.transport.Rollback(); err != nil {
			slog.Error("rollback failed", "peerID", l.peerID, "error", err)
			l.failLink(err)
			return
		}
		l.phase = PhaseStable
		l.answerOffer(offer)

	case PhaseStable:
		l.answerOffer(offer)

	default:
		slog.Warn("dropping remote offer in unexpected phase", "peerID", l.peerID, "phase", l.phase.String())
	}
}

func (l *Link) answerOffer(offer webrtc.SessionDescription) {
	l.phase = PhaseHaveRemoteOffer
	l.emit(StateConnecting, nil)

	answer, err := l.transport.CreateAnswer(offer)
	if err != nil {
		slog.Error("failed to answer offer", "peerID", l.peerID, "error", err)
		l.phase = PhaseStable
		l.failLink(err)
		return
	}

	l.remoteSet = true
	l.drainCandidates()
	l.phase = PhaseStable

	l.mgr.sender.Send(api.Envelope{
		Type:    api.MessageAnswer,
		To:      l.peerID,
		Session: &answer,
	})
}

func (l *Link) handleRemoteAnswer(answer webrtc.SessionDescription, requeued bool) {
	if l.phase == PhaseClosed {
		return
	}

	if l.phase != PhaseHaveLocalOffer {
		if requeued {
			slog.Warn("discarding answer: still no pending local offer", "peerID", l.peerID, "phase", l.phase.String())
			return
		}
		// Reordering may deliver an answer before we notice our own offer
		// round; retry once after a short delay, never apply blindly.
		slog.Info("answer arrived out of phase, requeueing once", "peerID", l.peerID, "phase", l.phase.String())
		l.requeueTimer = time.AfterFunc(l.mgr.cfg.AnswerRequeueDelay(), func() {
			l.push(linkCommand{kind: cmdRemoteAnswer, desc: answer, requeued: true})
		})
		return
	}

	if err := l.transport.ApplyAnswer(answer); err != nil {
		slog.Error("failed to apply answer", "peerID", l.peerID, "error", err)
		l.failLink(err)
		return
	}

	l.remoteSet = true
	l.drainCandidates()
	l.phase = PhaseStable
}

func (l *Link) handleRemoteCandidate(cand webrtc.ICECandidateInit) {
	if l.phase == PhaseClosed {
		return
	}

	if !l.remoteSet {
		l.pendingCandidates = append(l.pendingCandidates, cand)
		return
	}

	if err := l.transport.AddICECandidate(cand); err != nil {
		slog.Warn("failed to add ICE candidate", "peerID", l.peerID, "error", err)
	}
}

// drainCandidates applies buffered candidates in arrival order once the
// remote description is set.
func (l *Link) drainCandidates() {
	for _, cand := range l.pendingCandidates {
		if err := l.transport.AddICECandidate(cand); err != nil {
			slog.Warn("failed to apply buffered ICE candidate", "peerID", l.peerID, "error", err)
		}
	}
	l.pendingCandidates = nil
}

func (l *Link) handleTransportState(state TransportState) {
	if l.phase == PhaseClosed {
		return
	}

	switch state {
	case TransportConnected:
		l.emit(StateConnected, nil)

	case TransportFailed:
		l.retryOrFail()

	case TransportClosed:
		// counterpart closed underneath us; surface it unless we did it
		slog.Debug("transport closed", "peerID", l.peerID)
	}
}

// retryOrFail implements the bounded-retry rule: the initiator renegotiates
// with a fresh transport and offer while attempts remain, everyone else
// (and an exhausted initiator) lands in the terminal failed state exactly
// once.
func (l *Link) retryOrFail() {
	if l.isInitiator && l.attempts < l.mgr.cfg.MaxConnectionAttempts {
		l.attempts++
		slog.Info("transport failed, retrying with fresh offer",
			"peerID", l.peerID, "attempt", l.attempts, "max", l.mgr.cfg.MaxConnectionAttempts)

		_ = l.transport.Close()
		transport, err := l.buildTransport()
		if err != nil {
			l.failLink(err)
			return
		}
		l.setTransport(transport)
		l.remoteSet = false
		l.pendingCandidates = nil
		l.phase = PhaseStable

		offer, err := l.transport.CreateOffer()
		if err != nil {
			l.failLink(err)
			return
		}
		l.phase = PhaseHaveLocalOffer
		l.emit(StateConnecting, nil)
		l.mgr.sender.Send(api.Envelope{
			Type:    api.MessageOffer,
			To:      l.peerID,
			Session: &offer,
		})
		return
	}

	l.failLink(fmt.Errorf("transport failed after %d attempts", l.attempts))
}

// failLink surfaces a terminal failure exactly once. The link stays around
// so a create-offer request can still revive it.
func (l *Link) failLink(err error) {
	if l.failedNotified {
		return
	}
	l.failedNotified = true
	l.emit(StateFailed, err)
}

// teardown releases everything the link holds. Idempotent: a second call,
// or tearing down a link that never connected, is a no-op.
func (l *Link) teardown() {
	if l.phase == PhaseClosed {
		return
	}
	l.phase = PhaseClosed

	if l.requeueTimer != nil {
		l.requeueTimer.Stop()
		l.requeueTimer = nil
	}
	l.pendingCandidates = nil
	l.remoteSet = false

	if err := l.transport.Close(); err != nil {
		slog.Debug("transport close", "peerID", l.peerID, "error", err)
	}

	l.emit(StateClosed, nil)
}

func (l *Link) emit(state LinkState, err error) {
	l.mgr.emit(LinkEvent{PeerID: l.peerID, State: state, Err: err})
}
