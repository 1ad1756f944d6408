package domain

import "time"

type EventType string

const (
	EventConferenceCreated   EventType = "conference.created"
	EventConferenceJoined    EventType = "conference.joined"
	EventConferenceEnded     EventType = "conference.ended"
	EventFavoriteChanged     EventType = "favorite.changed"
	EventParticipantsChanged EventType = "participants.changed"
)

// ConferenceEvent is published by the lifecycle manager after a state change
// has been accepted by the directory store.
type ConferenceEvent struct {
	Type         EventType    `json:"type"`
	ConferenceID ConferenceID `json:"conference_id"`
	Conference   *Conference  `json:"conference,omitempty"`
	Participants int          `json:"participants,omitempty"`
	At           time.Time    `json:"at"`
}
