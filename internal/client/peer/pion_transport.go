package peer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/huddlekit/huddle/internal/client/media"
	"github.com/huddlekit/huddle/internal/config"
)

// PionTransport implements Transport over a real WebRTC peer connection.
// It also acts as a media sink so local track swaps propagate to the
// counterpart without renegotiation.
type PionTransport struct {
	peerID string
	pc     *webrtc.PeerConnection

	mu      sync.Mutex
	senders map[string]*webrtc.RTPSender
}

// NewPionFactory builds transports that carry the given local stream.
// onRemoteTrack fires for every inbound track; it may be nil.
func NewPionFactory(cfg config.ClientConfig, stream *media.LocalStream, onRemoteTrack func(peerID string, track *webrtc.TrackRemote)) TransportFactory {
	webrtcConfig := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.ICEServers}},
	}

	return func(peerID string, hooks TransportHooks) (Transport, error) {
		pc, err := webrtc.NewPeerConnection(webrtcConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create peer connection: %w", err)
		}

		t := &PionTransport{
			peerID:  peerID,
			pc:      pc,
			senders: make(map[string]*webrtc.RTPSender),
		}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return
			}
			if hooks.OnICECandidate != nil {
				hooks.OnICECandidate(c.ToJSON())
			}
		})

		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			slog.Debug("peer connection state changed", "peerID", peerID, "state", state.String())
			if hooks.OnStateChange == nil {
				return
			}
			switch state {
			case webrtc.PeerConnectionStateConnected:
				hooks.OnStateChange(TransportConnected)
			case webrtc.PeerConnectionStateFailed:
				hooks.OnStateChange(TransportFailed)
			case webrtc.PeerConnectionStateClosed:
				hooks.OnStateChange(TransportClosed)
			}
		})

		if onRemoteTrack != nil {
			pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
				onRemoteTrack(peerID, track)
			})
		}

		if stream != nil {
			for _, track := range stream.Tracks() {
				if err := t.AddTrack(track); err != nil {
					_ = pc.Close()
					return nil, err
				}
			}
			stream.Attach(t)
		}

		return t, nil
	}
}

func (t *PionTransport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local offer: %w", err)
	}
	return *t.pc.LocalDescription(), nil
}

func (t *PionTransport) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set remote offer: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("failed to set local answer: %w", err)
	}
	return *t.pc.LocalDescription(), nil
}

func (t *PionTransport) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("failed to set remote answer: %w", err)
	}
	return nil
}

func (t *PionTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

func (t *PionTransport) Rollback() error {
	return t.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}

// AddTrack attaches a local track for sending. Part of the media.Sink
// contract.
func (t *PionTransport) AddTrack(track webrtc.TrackLocal) error {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	t.mu.Lock()
	t.senders[track.Kind().String()] = sender
	t.mu.Unlock()

	// drain RTCP so interceptors keep running
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// ReplaceTrack swaps the outgoing track of the same kind in place, without
// renegotiation. Part of the media.Sink contract.
func (t *PionTransport) ReplaceTrack(track webrtc.TrackLocal) error {
	t.mu.Lock()
	sender, ok := t.senders[track.Kind().String()]
	t.mu.Unlock()

	if !ok {
		return t.AddTrack(track)
	}
	return sender.ReplaceTrack(track)
}

// InboundBytes sums bytes received across all inbound RTP streams. The
// quality controller samples this to estimate link health.
func (t *PionTransport) InboundBytes() uint64 {
	stats := t.pc.GetStats()
	var total uint64
	for _, s := range stats {
		if inbound, ok := s.(webrtc.InboundRTPStreamStats); ok {
			total += inbound.BytesReceived
		}
	}
	return total
}
