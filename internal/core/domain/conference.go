package domain

import (
	"time"
)

type ConferenceID string
type UserID int64

type ConferenceStatus string

const (
	ConferenceActive ConferenceStatus = "active"
	ConferenceEnded  ConferenceStatus = "ended"
)

// HistoryLimit bounds the number of ended conferences kept for the user.
const HistoryLimit = 20

type Conference struct {
	ID           ConferenceID     `json:"id"`
	Name         string           `json:"name"`
	CreatorID    UserID           `json:"creator_id"`
	CreatorName  string           `json:"creator_name"`
	Participants []UserID         `json:"participants"`
	CreatedAt    time.Time        `json:"created_at"`
	Status       ConferenceStatus `json:"status"`
	IsFavorite   bool             `json:"is_favorite,omitempty"`
	Duration     int64            `json:"duration,omitempty"` // seconds
	EndedAt      *time.Time       `json:"ended_at,omitempty"`
}

// NewConference builds an active conference. The creator always comes first in
// the participant list and duplicates are dropped while preserving order.
func NewConference(id ConferenceID, name string, creator UserID, creatorName string, invitees []UserID, now time.Time) *Conference {
	c := &Conference{
		ID:           id,
		Name:         name,
		CreatorID:    creator,
		CreatorName:  creatorName,
		Participants: []UserID{creator},
		CreatedAt:    now,
		Status:       ConferenceActive,
	}
	for _, u := range invitees {
		c.AddParticipant(u)
	}
	return c
}

func (c *Conference) IsActive() bool {
	return c.Status == ConferenceActive
}

func (c *Conference) IsCreator(u UserID) bool {
	return c.CreatorID == u
}

func (c *Conference) HasParticipant(u UserID) bool {
	for _, p := range c.Participants {
		if p == u {
			return true
		}
	}
	return false
}

// AddParticipant appends u unless already present. Reports whether the set changed.
func (c *Conference) AddParticipant(u UserID) bool {
	if c.HasParticipant(u) {
		return false
	}
	c.Participants = append(c.Participants, u)
	return true
}

// End moves the conference to its terminal state and fills in duration and end time.
func (c *Conference) End(caller UserID, now time.Time) error {
	if !c.IsCreator(caller) {
		return ErrNotCreator
	}
	if !c.IsActive() {
		return ErrConferenceEnded
	}

	ended := now
	c.Status = ConferenceEnded
	c.EndedAt = &ended
	c.Duration = int64(now.Sub(c.CreatedAt).Round(time.Second) / time.Second)
	if c.Duration < 0 {
		c.Duration = 0
	}
	return nil
}

// Validate checks the structural invariants of a conference record.
func (c *Conference) Validate() error {
	if c.ID == "" {
		return ErrInvalidConference
	}
	if len(c.Participants) == 0 || !c.HasParticipant(c.CreatorID) {
		return ErrInvalidConference
	}
	switch c.Status {
	case ConferenceActive:
	case ConferenceEnded:
	default:
		return ErrInvalidConference
	}
	return nil
}

// Clone returns a deep copy so projections never share slices with callers.
func (c *Conference) Clone() *Conference {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = append([]UserID(nil), c.Participants...)
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// Identity is the local user on whose behalf the controller acts.
type Identity struct {
	UserID      UserID `json:"user_id"`
	DisplayName string `json:"display_name"`
}
