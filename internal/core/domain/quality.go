package domain

import "fmt"

// QualityTier is one of four participant-count profiles, 1 being the richest.
type QualityTier int

const (
	Tier1 QualityTier = iota + 1
	Tier2
	Tier3
	Tier4
)

func (t QualityTier) String() string {
	return fmt.Sprintf("tier%d", int(t))
}

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type VideoConstraints struct {
	Ideal        Resolution `json:"ideal"`
	Max          Resolution `json:"max"`
	FrameRate    float64    `json:"frame_rate"`
	MaxFrameRate float64    `json:"max_frame_rate"`
}

type AudioConstraints struct {
	SampleRate       int  `json:"sample_rate"`
	ChannelCount     int  `json:"channel_count"`
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGainControl  bool `json:"auto_gain_control"`
}

// ConstraintBundle is the full capture profile applied to a stream. Bundles
// are values; comparing two with == tells whether re-applying is a no-op.
type ConstraintBundle struct {
	Tier  QualityTier      `json:"tier"`
	Video VideoConstraints `json:"video"`
	Audio AudioConstraints `json:"audio"`
}

var tierBundles = map[QualityTier]ConstraintBundle{
	Tier1: {
		Tier:  Tier1,
		Video: VideoConstraints{Ideal: Resolution{1280, 720}, Max: Resolution{1920, 1080}, FrameRate: 30, MaxFrameRate: 30},
		Audio: voiceAudio(48000),
	},
	Tier2: {
		Tier:  Tier2,
		Video: VideoConstraints{Ideal: Resolution{960, 540}, Max: Resolution{1280, 720}, FrameRate: 24, MaxFrameRate: 30},
		Audio: voiceAudio(44100),
	},
	Tier3: {
		Tier:  Tier3,
		Video: VideoConstraints{Ideal: Resolution{640, 360}, Max: Resolution{960, 540}, FrameRate: 20, MaxFrameRate: 24},
		Audio: voiceAudio(44100),
	},
	Tier4: {
		Tier:  Tier4,
		Video: VideoConstraints{Ideal: Resolution{480, 270}, Max: Resolution{640, 360}, FrameRate: 15, MaxFrameRate: 20},
		Audio: voiceAudio(32000),
	},
}

func voiceAudio(rate int) AudioConstraints {
	return AudioConstraints{
		SampleRate:       rate,
		ChannelCount:     1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// TierForParticipants is the step function from participant count to tier.
// Counts below 1 are treated as 1.
func TierForParticipants(n int) QualityTier {
	switch {
	case n <= 5:
		return Tier1
	case n <= 20:
		return Tier2
	case n <= 50:
		return Tier3
	default:
		return Tier4
	}
}

// BundleFor returns the constraint bundle of tier t, clamped to the known tiers.
func BundleFor(t QualityTier) ConstraintBundle {
	if t < Tier1 {
		t = Tier1
	}
	if t > Tier4 {
		t = Tier4
	}
	return tierBundles[t]
}
