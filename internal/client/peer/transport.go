package peer

import "github.com/pion/webrtc/v4"

// TransportState is the connectivity signal a transport reports upward.
// Failure detection relies on this alone; there is no per-message timeout.
type TransportState string

const (
	TransportConnecting TransportState = "connecting"
	TransportConnected  TransportState = "connected"
	TransportFailed     TransportState = "failed"
	TransportClosed     TransportState = "closed"
)

// Transport is the negotiation primitive under one peer link. The real
// implementation wraps a WebRTC peer connection; tests inject a fake so the
// glare and retry rules can be exercised without a network.
type Transport interface {
	// CreateOffer builds a local offer and installs it as the local
	// description.
	CreateOffer() (webrtc.SessionDescription, error)

	// CreateAnswer installs the remote offer and returns a local answer,
	// already installed as the local description.
	CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	// ApplyAnswer installs the counterpart's answer as the remote
	// description.
	ApplyAnswer(answer webrtc.SessionDescription) error

	AddICECandidate(candidate webrtc.ICECandidateInit) error

	// Rollback discards the pending local offer, returning the transport
	// to a state where a remote offer can be applied.
	Rollback() error

	Close() error
}

// TransportHooks carry the callbacks a transport fires asynchronously.
type TransportHooks struct {
	OnICECandidate func(webrtc.ICECandidateInit)
	OnStateChange  func(TransportState)
}

// TransportFactory builds a fresh transport for a peer link. Bounded retry
// discards the failed transport and asks the factory for a new one.
type TransportFactory func(peerID string, hooks TransportHooks) (Transport, error)
