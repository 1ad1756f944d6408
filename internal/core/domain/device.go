package domain

type DeviceKind string

const (
	DeviceCamera     DeviceKind = "camera"
	DeviceMicrophone DeviceKind = "microphone"
)

// DeviceDescriptor is a read-only snapshot of one capture device.
// Label stays empty until the platform grants capture permission.
type DeviceDescriptor struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Kind  DeviceKind `json:"kind"`
}

type DeviceList struct {
	Cameras     []DeviceDescriptor `json:"cameras"`
	Microphones []DeviceDescriptor `json:"microphones"`
}

// Labelled reports whether any device exposes a label, which only happens post-permission.
func (l DeviceList) Labelled() bool {
	for _, d := range l.Cameras {
		if d.Label != "" {
			return true
		}
	}
	for _, d := range l.Microphones {
		if d.Label != "" {
			return true
		}
	}
	return false
}

// CallReadiness is the outcome of validating a device list before a call.
type CallReadiness string

const (
	ReadyAudioVideo CallReadiness = "audio_video"
	ReadyAudioOnly  CallReadiness = "audio_only"
	ReadyBlocked    CallReadiness = "blocked"
)

// Readiness decides what kind of call the device list allows.
func (l DeviceList) Readiness() CallReadiness {
	switch {
	case len(l.Microphones) == 0:
		return ReadyBlocked
	case len(l.Cameras) == 0:
		return ReadyAudioOnly
	default:
		return ReadyAudioVideo
	}
}

// DeviceSelection names the devices chosen during calibration. Empty ids mean "default device".
type DeviceSelection struct {
	CameraID     string `json:"camera_id,omitempty"`
	MicrophoneID string `json:"microphone_id,omitempty"`
	AudioOnly    bool   `json:"audio_only,omitempty"`
}
