package quality

import (
	"sync"
	"testing"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/config"
	"github.com/huddlekit/huddle/internal/domain"
)

type fakeStats struct {
	mu    sync.Mutex
	peers []string
	bytes map[string]uint64
}

func (f *fakeStats) Peers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.peers...)
}

func (f *fakeStats) InboundBytes(peerID string) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bytes[peerID]
	return b, ok
}

func (f *fakeStats) setBytes(peerID string, b uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bytes[peerID] = b
}

type fakeEncoder struct {
	mu    sync.Mutex
	calls []domain.TierParams
}

func (f *fakeEncoder) ApplyTier(params domain.TierParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	return nil
}

func (f *fakeEncoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type collectSender struct {
	mu   sync.Mutex
	sent []api.Envelope
}

func (c *collectSender) Send(env api.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
}

func (c *collectSender) take() []api.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.sent
	c.sent = nil
	return out
}

func newTestController(peers ...string) (*Controller, *fakeStats, *fakeEncoder, *collectSender) {
	stats := &fakeStats{peers: peers, bytes: make(map[string]uint64)}
	for _, p := range peers {
		stats.bytes[p] = 0
	}
	encoder := &fakeEncoder{}
	sender := &collectSender{}
	ctrl := NewController(config.DefaultAppConfig().Quality, stats, encoder, sender, func() string { return "me" })
	return ctrl, stats, encoder, sender
}

func tierOf(t *testing.T, env api.Envelope) domain.QualityTier {
	t.Helper()
	if env.Type != api.MessageSetQualityRequest {
		t.Fatalf("expected set-quality-request, got %s", env.Type)
	}
	if env.Quality == nil {
		t.Fatal("quality payload missing")
	}
	return env.Quality.Tier
}

func TestNonPinnedPeersSteeredLow(t *testing.T) {
	ctrl, _, _, sender := newTestController("a", "b")

	ctrl.tick()

	sent := sender.take()
	if len(sent) != 2 {
		t.Fatalf("expected a directive per peer, got %d", len(sent))
	}
	for _, env := range sent {
		if tier := tierOf(t, env); tier != domain.QualityLow {
			t.Fatalf("non-pinned peer %s steered to %s, want low", env.To, tier)
		}
	}
}

func TestUnchangedTargetNotReissued(t *testing.T) {
	ctrl, _, _, sender := newTestController("a")

	ctrl.tick()
	if len(sender.take()) != 1 {
		t.Fatal("first tick must issue a directive")
	}

	ctrl.tick()
	if sent := sender.take(); len(sent) != 0 {
		t.Fatalf("unchanged target reissued: %d directives", len(sent))
	}
}

func TestPinnedPeerFollowsSampledRate(t *testing.T) {
	ctrl, stats, _, sender := newTestController("a", "b")
	ctrl.Pin("a")

	// first sample establishes a baseline; everyone starts Low
	ctrl.tick()
	sender.take()

	// a burst of inbound bytes clears the threshold: pinned goes High
	stats.setBytes("a", 5_000_000)
	ctrl.tick()

	sent := sender.take()
	if len(sent) != 1 || sent[0].To != "a" {
		t.Fatalf("expected exactly one directive for the pinned peer, got %+v", sent)
	}
	if tier := tierOf(t, sent[0]); tier != domain.QualityHigh {
		t.Fatalf("pinned peer above threshold steered to %s, want high", tier)
	}

	// rate collapses to zero: pinned drops back to Low, b stays untouched
	ctrl.tick()
	sent = sender.take()
	if len(sent) != 1 || sent[0].To != "a" {
		t.Fatalf("expected one directive back to low, got %+v", sent)
	}
	if tier := tierOf(t, sent[0]); tier != domain.QualityLow {
		t.Fatalf("pinned peer below threshold steered to %s, want low", tier)
	}
}

func TestIncomingDirectiveIsIdempotent(t *testing.T) {
	ctrl, _, encoder, sender := newTestController()

	req := api.Envelope{
		Type:    api.MessageSetQualityRequest,
		From:    "a",
		Quality: &api.QualityPayload{Tier: domain.QualityLow},
	}
	ctrl.HandleEnvelope(req)
	ctrl.HandleEnvelope(req)

	if encoder.callCount() != 1 {
		t.Fatalf("duplicate directive reconfigured the encoder %d times, want 1", encoder.callCount())
	}
	if got := ctrl.AppliedTier(); got != domain.QualityLow {
		t.Fatalf("applied tier %s, want low", got)
	}

	// every request is acknowledged, even a redundant one
	acks := 0
	for _, env := range sender.take() {
		if env.Type == api.MessageSetQualityDone && env.To == "a" {
			acks++
		}
	}
	if acks != 2 {
		t.Fatalf("expected 2 acks, got %d", acks)
	}
}

func TestBareDirectiveAppliedWithoutAck(t *testing.T) {
	ctrl, _, encoder, sender := newTestController()

	ctrl.HandleEnvelope(api.Envelope{
		Type:    api.MessageSetQuality,
		From:    "admin",
		Quality: &api.QualityPayload{Tier: domain.QualityMedium},
	})

	if encoder.callCount() != 1 {
		t.Fatalf("directive not applied, %d encoder calls", encoder.callCount())
	}
	if sent := sender.take(); len(sent) != 0 {
		t.Fatalf("bare set-quality must not be acknowledged, got %+v", sent)
	}
}

func TestConflictingPeerRequestsResolveToMax(t *testing.T) {
	ctrl, _, encoder, _ := newTestController()

	directive := func(from string, tier domain.QualityTier) api.Envelope {
		return api.Envelope{
			Type:    api.MessageSetQualityRequest,
			From:    from,
			Quality: &api.QualityPayload{Tier: tier},
		}
	}

	ctrl.HandleEnvelope(directive("a", domain.QualityHigh))
	if encoder.callCount() != 1 || ctrl.AppliedTier() != domain.QualityHigh {
		t.Fatalf("first request not applied: %d calls, tier %s", encoder.callCount(), ctrl.AppliedTier())
	}

	// a second peer asking for Low must not drag the encoder down while a
	// standing High request exists; the tiers would otherwise ping-pong
	// every sampling round
	ctrl.HandleEnvelope(directive("b", domain.QualityLow))
	ctrl.HandleEnvelope(directive("b", domain.QualityLow))
	if encoder.callCount() != 1 {
		t.Fatalf("conflicting Low request reconfigured the encoder, %d calls", encoder.callCount())
	}
	if got := ctrl.AppliedTier(); got != domain.QualityHigh {
		t.Fatalf("applied tier %s, want high while a High request stands", got)
	}

	// once the High requester relaxes, the remaining maximum wins
	ctrl.HandleEnvelope(directive("a", domain.QualityLow))
	if encoder.callCount() != 2 {
		t.Fatalf("relaxed request not applied, %d calls", encoder.callCount())
	}
	if got := ctrl.AppliedTier(); got != domain.QualityLow {
		t.Fatalf("applied tier %s, want low after both peers relax", got)
	}
}

func TestSelfPinAppliesHighLocally(t *testing.T) {
	ctrl, _, encoder, sender := newTestController()
	ctrl.Pin("me")

	ctrl.tick()

	if encoder.callCount() != 1 {
		t.Fatalf("self-pin must reconfigure the local encoder, %d calls", encoder.callCount())
	}
	if got := ctrl.AppliedTier(); got != domain.QualityHigh {
		t.Fatalf("self-pin applied %s, want high", got)
	}
	if sent := sender.take(); len(sent) != 0 {
		t.Fatalf("self-pin must not message the relay, got %+v", sent)
	}
}

func TestForgetDropsPeerState(t *testing.T) {
	ctrl, _, _, sender := newTestController("a")
	ctrl.Pin("a")

	ctrl.tick()
	sender.take()

	ctrl.Forget("a")
	if ctrl.Pinned() != "" {
		t.Fatal("forgetting the pinned peer must unpin it")
	}

	// the peer is gone from state: a rejoin gets a fresh directive
	ctrl.tick()
	if sent := sender.take(); len(sent) != 1 {
		t.Fatalf("expected a fresh directive after forget, got %d", len(sent))
	}
}
