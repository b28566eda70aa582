package media

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/huddlekit/huddle/internal/domain"
)

// Source produces local capture tracks. Implementations wrap whatever
// capture pipeline the host offers; tests use static sample tracks.
type Source interface {
	VideoTrack() (webrtc.TrackLocal, error)
	AudioTrack() (webrtc.TrackLocal, error)
}

// Configurable is implemented by sources whose encoder settings can change
// at runtime. The quality controller drives it through ApplyTier.
type Configurable interface {
	Configure(params domain.TierParams) error
}

// Sink receives local tracks. Peer transports implement it so a track swap
// reaches every connected counterpart without renegotiation.
type Sink interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// LocalStream owns the local capture tracks and the set of sinks currently
// sending them. Acquisition degrades instead of failing: no camera means
// audio only, no microphone on top of that means a receive-only session.
type LocalStream struct {
	source Source

	mu    sync.Mutex
	video webrtc.TrackLocal
	audio webrtc.TrackLocal
	sinks []Sink
	media domain.MediaState
}

func NewLocalStream(source Source) *LocalStream {
	return &LocalStream{source: source}
}

// Acquire captures local media, falling back one device at a time. It only
// errors when the source itself is unusable, never for a missing device.
func (s *LocalStream) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return nil
	}

	video, err := s.source.VideoTrack()
	if err != nil {
		slog.Warn("video capture unavailable, continuing without camera", "error", err)
	} else {
		s.video = video
		s.media.CameraOn = true
	}

	audio, err := s.source.AudioTrack()
	if err != nil {
		slog.Warn("audio capture unavailable, continuing without microphone", "error", err)
	} else {
		s.audio = audio
		s.media.MicOn = true
	}

	return nil
}

// Tracks returns the currently held local tracks, in a stable order.
func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tracks []webrtc.TrackLocal
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	return tracks
}

// MediaState reports which devices are live, for the join announcement and
// media-update messages.
func (s *LocalStream) MediaState() domain.MediaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media
}

// Attach registers a sink so future track swaps reach it. The sink is
// expected to already carry the current tracks (transports add them at
// construction).
func (s *LocalStream) Attach(sink Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// ReplaceVideo swaps the outgoing video track on every sink. Used for
// screen sharing and for encoder reconfiguration that needs a new track.
func (s *LocalStream) ReplaceVideo(track webrtc.TrackLocal) {
	s.mu.Lock()
	s.video = track
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.ReplaceTrack(track); err != nil {
			slog.Warn("failed to replace video track on sink", "error", err)
		}
	}
}

// ApplyTier pushes encoder parameters down to the source. Sources that do
// not support reconfiguration simply keep their current settings.
func (s *LocalStream) ApplyTier(params domain.TierParams) error {
	if c, ok := s.source.(Configurable); ok {
		return c.Configure(params)
	}
	slog.Debug("source does not support reconfiguration, tier change is advisory",
		"width", params.Width, "height", params.Height)
	return nil
}

// SetMediaState records a local device toggle. The caller announces the
// change to the room separately.
func (s *LocalStream) SetMediaState(state domain.MediaState) {
	s.mu.Lock()
	s.media = state
	s.mu.Unlock()
}
