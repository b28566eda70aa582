package quality

import (
	"log/slog"
	"sync"
	"time"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/config"
	"github.com/huddlekit/huddle/internal/domain"
	"github.com/huddlekit/huddle/internal/utils"
)

// StatsSource reports inbound throughput per peer. The peer manager
// satisfies it.
type StatsSource interface {
	Peers() []string
	InboundBytes(peerID string) (uint64, bool)
}

// EncoderControl adjusts the local sending pipeline. The local media stream
// satisfies it.
type EncoderControl interface {
	ApplyTier(params domain.TierParams) error
}

// Sender pushes envelopes toward the relay.
type Sender interface {
	Send(env api.Envelope)
}

// Controller keeps aggregate outgoing bandwidth bounded as the room grows.
// Only the pinned peer is ever steered toward High, and only while its
// inbound rate clears the threshold; every other peer is held at Low. The
// policy is deliberately non-uniform.
type Controller struct {
	cfg     config.QualityConfig
	stats   StatsSource
	encoder EncoderControl
	sender  Sender

	// selfID resolves the local participant id, which is only known once
	// the relay assigns it.
	selfID func() string

	mu         sync.Mutex
	pinned     string
	lastBytes  map[string]uint64
	lastSample map[string]time.Time
	targets    map[string]domain.QualityTier
	requested  map[string]domain.QualityTier
	effective  domain.QualityTier

	timer utils.IntervalTimer
}

func NewController(cfg config.QualityConfig, stats StatsSource, encoder EncoderControl, sender Sender, selfID func() string) *Controller {
	return &Controller{
		cfg:        cfg,
		stats:      stats,
		encoder:    encoder,
		sender:     sender,
		selfID:     selfID,
		lastBytes:  make(map[string]uint64),
		lastSample: make(map[string]time.Time),
		targets:    make(map[string]domain.QualityTier),
		requested:  make(map[string]domain.QualityTier),
	}
}

// Start begins periodic sampling. Idempotent.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		return
	}
	c.timer = utils.SetIntervalTimer(c.cfg.SampleInterval(), c.tick)
}

func (c *Controller) Stop() {
	c.mu.Lock()
	timer := c.timer
	c.timer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
}

// Pin marks peerID as the prioritized counterpart. An empty id unpins.
// Moving the pin away from ourselves releases the standing High request a
// self-pin holds on the local encoder.
func (c *Controller) Pin(peerID string) {
	c.mu.Lock()
	if c.pinned != peerID && c.selfID != nil && c.pinned == c.selfID() {
		delete(c.requested, c.pinned)
	}
	c.pinned = peerID
	c.mu.Unlock()
}

func (c *Controller) Pinned() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned
}

// tick runs one sampling round: decide a target tier per peer and issue
// directives for the ones that changed. Reissuing an unchanged tier is
// harmless but pointless, so unchanged targets are skipped.
func (c *Controller) tick() {
	c.mu.Lock()
	pinned := c.pinned
	c.mu.Unlock()

	// pinning yourself steers your own outgoing stream, no relay round trip
	if pinned != "" && c.selfID != nil && pinned == c.selfID() {
		c.apply(pinned, domain.QualityHigh)
		pinned = ""
	}

	for _, peerID := range c.stats.Peers() {
		target := domain.QualityLow
		if peerID == pinned && c.sampleRate(peerID) >= float64(c.cfg.HighThresholdBps) {
			target = domain.QualityHigh
		}
		c.issue(peerID, target)
	}
}

// sampleRate computes the instantaneous inbound bits-per-second for peerID
// since the previous sample. The first sample of a peer reports zero; no
// smoothing is applied, directives are cheap to re-issue.
func (c *Controller) sampleRate(peerID string) float64 {
	bytes, ok := c.stats.InboundBytes(peerID)
	if !ok {
		return 0
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, seen := c.lastBytes[peerID]
	prevAt := c.lastSample[peerID]
	c.lastBytes[peerID] = bytes
	c.lastSample[peerID] = now

	if !seen || bytes < prev {
		return 0
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes-prev) * 8 / elapsed
}

// issue sends a quality directive to peerID unless that tier is already the
// recorded target.
func (c *Controller) issue(peerID string, tier domain.QualityTier) {
	c.mu.Lock()
	if c.targets[peerID] == tier {
		c.mu.Unlock()
		return
	}
	c.targets[peerID] = tier
	c.mu.Unlock()

	slog.Info("steering peer quality", "peerID", peerID, "tier", tier)
	c.sender.Send(api.Envelope{
		Type:    api.MessageSetQualityRequest,
		To:      peerID,
		Quality: &api.QualityPayload{Tier: tier},
	})
}

// Forget drops all state for a departed peer, including its standing tier
// request; the encoder falls to what the remaining counterparts ask for.
func (c *Controller) Forget(peerID string) {
	c.mu.Lock()
	delete(c.lastBytes, peerID)
	delete(c.lastSample, peerID)
	delete(c.targets, peerID)
	delete(c.requested, peerID)
	if c.pinned == peerID {
		c.pinned = ""
	}

	eff := c.resolveLocked()
	changed := eff != "" && eff != c.effective
	if changed {
		c.effective = eff
	}
	c.mu.Unlock()

	if changed {
		c.reconfigure(eff)
	}
}

// HandleEnvelope processes the quality directive protocol. A
// set-quality-request adjusts our sending encoder and acknowledges with
// set-quality-done; a bare set-quality (admin or broadcast origin) applies
// without an ack; a set-quality-done just confirms the counterpart obeyed.
func (c *Controller) HandleEnvelope(env api.Envelope) {
	if env.Quality == nil {
		return
	}

	switch env.Type {
	case api.MessageSetQualityRequest:
		c.apply(env.From, env.Quality.Tier)
		c.sender.Send(api.Envelope{
			Type:    api.MessageSetQualityDone,
			To:      env.From,
			Quality: env.Quality,
		})

	case api.MessageSetQuality:
		c.apply(env.From, env.Quality.Tier)

	case api.MessageSetQualityDone:
		slog.Debug("peer acknowledged quality change", "peerID", env.From, "tier", env.Quality.Tier)
	}
}

// apply records what the requester asked for and reconfigures the encoder
// to the highest tier any counterpart currently wants. One tier is current
// per requester; the pinned peer asking for High must not fight the Low
// everyone else asks for, so conflicts resolve upward instead of thrashing.
// Repeating a request is a no-op, duplicate or reordered directives are
// safe.
func (c *Controller) apply(requester string, tier domain.QualityTier) {
	c.mu.Lock()
	if c.requested[requester] == tier {
		c.mu.Unlock()
		return
	}
	c.requested[requester] = tier

	eff := c.resolveLocked()
	if eff == c.effective {
		c.mu.Unlock()
		return
	}
	c.effective = eff
	c.mu.Unlock()

	c.reconfigure(eff)
}

// resolveLocked picks the highest requested tier. Caller holds c.mu.
func (c *Controller) resolveLocked() domain.QualityTier {
	var eff domain.QualityTier
	rank := -1
	for _, t := range c.requested {
		if r := tierRank(t); r > rank {
			rank = r
			eff = t
		}
	}
	return eff
}

func tierRank(t domain.QualityTier) int {
	switch t {
	case domain.QualityLow:
		return 0
	case domain.QualityMedium:
		return 1
	case domain.QualityHigh:
		return 2
	}
	return -1
}

func (c *Controller) reconfigure(tier domain.QualityTier) {
	params, ok := c.cfg.Tiers[tier]
	if !ok {
		slog.Warn("no parameters configured for tier", "tier", tier)
		return
	}
	if err := c.encoder.ApplyTier(params); err != nil {
		slog.Warn("failed to apply quality tier", "tier", tier, "error", err)
	}
}

// AppliedTier reports the tier our own encoder currently targets.
func (c *Controller) AppliedTier() domain.QualityTier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effective
}
