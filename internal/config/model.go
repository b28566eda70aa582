package config

import (
	"net/netip"
	"time"

	"github.com/huddlekit/huddle/internal/domain"
)

type AppConfig struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Rooms    RoomsConfig    `json:"rooms" yaml:"rooms"`
	Quality  QualityConfig  `json:"quality" yaml:"quality"`
	Client   ClientConfig   `json:"client" yaml:"client"`
}

type ServerConfig struct {
	Port             int    `json:"port" yaml:"port"`
	PublicIP         string `json:"publicIp" yaml:"publicIp"`
	PingIntervalMsec int    `json:"pingIntervalMsec" yaml:"pingIntervalMsec"`
}

type SecurityConfig struct {
	AdminCredential *string        `json:"adminCredential" yaml:"adminCredential"`
	AdminNetworks   []netip.Prefix `json:"adminNetworks" yaml:"adminNetworks"`
	TLSCrtFile      *string        `json:"tlsCrtFile" yaml:"tlsCrtFile"`
	TLSKeyFile      *string        `json:"tlsKeyFile" yaml:"tlsKeyFile"`
}

type RoomsConfig struct {
	// EmptyGracePeriodMsec is how long an empty room survives before
	// deletion, absorbing rapid reconnects.
	EmptyGracePeriodMsec int `json:"emptyGracePeriodMsec" yaml:"emptyGracePeriodMsec"`
}

type QualityConfig struct {
	SampleIntervalMsec int                                   `json:"sampleIntervalMsec" yaml:"sampleIntervalMsec"`
	HighThresholdBps   int                                   `json:"highThresholdBps" yaml:"highThresholdBps"`
	Tiers              map[domain.QualityTier]domain.TierParams `json:"tiers" yaml:"tiers"`
}

type ClientConfig struct {
	MaxConnectionAttempts  int      `json:"maxConnectionAttempts" yaml:"maxConnectionAttempts"`
	AnswerRequeueDelayMsec int      `json:"answerRequeueDelayMsec" yaml:"answerRequeueDelayMsec"`
	ReconnectMaxAttempts   int      `json:"reconnectMaxAttempts" yaml:"reconnectMaxAttempts"`
	ReconnectBaseDelayMsec int      `json:"reconnectBaseDelayMsec" yaml:"reconnectBaseDelayMsec"`
	ICEServers             []string `json:"iceServers" yaml:"iceServers"`
}

func (s ServerConfig) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalMsec) * time.Millisecond
}

func (r RoomsConfig) EmptyGracePeriod() time.Duration {
	return time.Duration(r.EmptyGracePeriodMsec) * time.Millisecond
}

func (q QualityConfig) SampleInterval() time.Duration {
	return time.Duration(q.SampleIntervalMsec) * time.Millisecond
}

func (c ClientConfig) AnswerRequeueDelay() time.Duration {
	return time.Duration(c.AnswerRequeueDelayMsec) * time.Millisecond
}

func (c ClientConfig) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.ReconnectBaseDelayMsec) * time.Millisecond
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:             13478,
			PublicIP:         "",
			PingIntervalMsec: 30000,
		},
		Security: SecurityConfig{
			AdminCredential: nil,
			AdminNetworks: []netip.Prefix{
				netip.MustParsePrefix("0.0.0.0/0"),
			},
			TLSCrtFile: nil,
			TLSKeyFile: nil,
		},
		Rooms: RoomsConfig{
			EmptyGracePeriodMsec: 5000,
		},
		Quality: QualityConfig{
			SampleIntervalMsec: 3000,
			HighThresholdBps:   500_000,
			Tiers:              domain.DefaultTierParams(),
		},
		Client: ClientConfig{
			MaxConnectionAttempts:  3,
			AnswerRequeueDelayMsec: 500,
			ReconnectMaxAttempts:   5,
			ReconnectBaseDelayMsec: 1000,
			ICEServers:             []string{"stun:stun.l.google.com:19302"},
		},
	}
}
