package domain

import "time"

type NetworkQuality string

const (
	NetworkHigh   NetworkQuality = "high"
	NetworkMedium NetworkQuality = "medium"
	NetworkLow    NetworkQuality = "low"
)

// Effective connection classes as reported by host telemetry, slowest first.
const (
	EffectiveSlow2G = "slow-2g"
	Effective2G     = "2g"
	Effective3G     = "3g"
	Effective4G     = "4g"
)

// ConnectionInfo is one reading of host connection telemetry.
type ConnectionInfo struct {
	DownlinkMbps  float64       `json:"downlink_mbps"`
	EffectiveType string        `json:"effective_type"`
	RTT           time.Duration `json:"rtt"`
}

// NetworkSample is a classified telemetry reading. Superseded every sampling interval.
type NetworkSample struct {
	Info           ConnectionInfo `json:"info"`
	Quality        NetworkQuality `json:"quality"`
	TakenAt        time.Time      `json:"taken_at"`
	TelemetryValid bool           `json:"telemetry_valid"`
}

// ClassifyConnection maps telemetry onto a quality class.
func ClassifyConnection(info ConnectionInfo) NetworkQuality {
	switch {
	case info.DownlinkMbps > 10 || info.EffectiveType == Effective4G:
		return NetworkHigh
	case info.DownlinkMbps > 2 || info.EffectiveType == Effective3G:
		return NetworkMedium
	default:
		return NetworkLow
	}
}

// MinimumTier is the coarsest-allowed floor a network class imposes on the participant tier.
func (q NetworkQuality) MinimumTier() QualityTier {
	switch q {
	case NetworkMedium:
		return Tier2
	case NetworkLow:
		return Tier3
	default:
		return Tier1
	}
}
