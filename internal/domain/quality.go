package domain

import "fmt"

// QualityTier is one of a small fixed set of media quality presets. Exactly
// one tier is current per outgoing stream per peer link.
type QualityTier string

const (
	QualityLow    QualityTier = "low"
	QualityMedium QualityTier = "medium"
	QualityHigh   QualityTier = "high"
)

// TierParams are the encoder parameters a tier maps to. The values are
// tunable configuration, not protocol invariants.
type TierParams struct {
	Width      int `json:"width" yaml:"width"`
	Height     int `json:"height" yaml:"height"`
	FrameRate  int `json:"frameRate" yaml:"frameRate"`
	MaxBitrate int `json:"maxBitrate" yaml:"maxBitrate"` // bits per second
}

func ParseQualityTier(s string) (QualityTier, error) {
	switch QualityTier(s) {
	case QualityLow, QualityMedium, QualityHigh:
		return QualityTier(s), nil
	}
	return "", fmt.Errorf("unknown quality tier %q", s)
}

func DefaultTierParams() map[QualityTier]TierParams {
	return map[QualityTier]TierParams{
		QualityLow:    {Width: 320, Height: 240, FrameRate: 15, MaxBitrate: 200_000},
		QualityMedium: {Width: 640, Height: 480, FrameRate: 24, MaxBitrate: 500_000},
		QualityHigh:   {Width: 1280, Height: 720, FrameRate: 30, MaxBitrate: 1_500_000},
	}
}
