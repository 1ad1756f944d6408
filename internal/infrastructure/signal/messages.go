package signal

import "confline/internal/core/domain"

const (
	MessageParticipants = "participants"
	MessageLeave        = "leave"
	MessageError        = "error"
)

// Message is the single frame type exchanged on a room connection.
type Message struct {
	Type    string              `json:"type"`
	RoomID  domain.ConferenceID `json:"room_id,omitempty"`
	Count   int                 `json:"count,omitempty"`
	Message string              `json:"message,omitempty"`
}
