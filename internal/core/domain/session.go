package domain

import "fmt"

type SessionState string

const (
	SessionIdle        SessionState = "idle"
	SessionCalibrating SessionState = "calibrating"
	SessionJoining     SessionState = "joining"
	SessionInCall      SessionState = "in_call"
	SessionEnded       SessionState = "ended"
)

type SessionEvent string

const (
	EventOpenCalibration  SessionEvent = "open_calibration"
	EventCloseCalibration SessionEvent = "close_calibration"
	EventStartCall        SessionEvent = "start_call"
	EventJoined           SessionEvent = "joined"
	EventJoinFailed       SessionEvent = "join_failed"
	EventEndCall          SessionEvent = "end_call"
	EventReset            SessionEvent = "reset"
)

var sessionTransitions = map[SessionState]map[SessionEvent]SessionState{
	SessionIdle: {
		EventOpenCalibration: SessionCalibrating,
		EventStartCall:       SessionJoining,
	},
	SessionCalibrating: {
		EventCloseCalibration: SessionIdle,
		EventStartCall:        SessionJoining,
	},
	SessionJoining: {
		EventJoined:     SessionInCall,
		EventJoinFailed: SessionIdle,
		EventEndCall:    SessionEnded,
	},
	SessionInCall: {
		EventEndCall: SessionEnded,
	},
	SessionEnded: {
		EventReset: SessionIdle,
	},
}

// Transition is the pure session state machine. Illegal events leave the state
// unchanged and return ErrIllegalTransition.
func Transition(state SessionState, event SessionEvent) (SessionState, error) {
	next, ok := sessionTransitions[state][event]
	if !ok {
		return state, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, event, state)
	}
	return next, nil
}

// SessionSnapshot is the externally visible state of the session controller.
type SessionSnapshot struct {
	State        SessionState      `json:"state"`
	ConferenceID ConferenceID      `json:"conference_id,omitempty"`
	Participants int               `json:"participants,omitempty"`
	Network      NetworkQuality    `json:"network"`
	Constraints  *ConstraintBundle `json:"constraints,omitempty"`
	AudioLevel   float64           `json:"audio_level"`
}
