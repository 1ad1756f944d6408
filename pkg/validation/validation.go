package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates room identifiers accepted by the session surface
	RoomIDRegex = regexp.MustCompile(`^[a-z0-9]+$`)
)

const (
	MaxConferenceNameLength = 100
	MaxDisplayNameLength    = 64
	MaxParticipants         = 1000
)

// ValidateConferenceName validates conference display name
func ValidateConferenceName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("conference name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("conference name contains invalid characters")
	}
	if utf8.RuneCountInString(name) > MaxConferenceNameLength {
		return fmt.Errorf("conference name is too long (max %d characters)", MaxConferenceNameLength)
	}
	return nil
}

// ValidateRoomID validates room identifier
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room ID is required")
	}
	if len(roomID) > 64 {
		return fmt.Errorf("room ID is too long (max 64 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room ID format (lowercase letters and digits only)")
	}
	return nil
}

// ValidateDisplayName validates the name shown to other participants
func ValidateDisplayName(name string) error {
	if err := ValidateNonEmptyString(name, "display name"); err != nil {
		return err
	}
	return ValidateStringLength(strings.TrimSpace(name), 1, MaxDisplayNameLength, "display name")
}

// ValidateParticipantIDs validates the invitee list of a new conference
func ValidateParticipantIDs(ids []int64) error {
	if len(ids) > MaxParticipants {
		return fmt.Errorf("too many participants (max %d)", MaxParticipants)
	}
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("invalid participant ID %d", id)
		}
	}
	return nil
}

// ValidateParticipantCount validates a live participant count
func ValidateParticipantCount(n int) error {
	if n < 1 {
		return fmt.Errorf("participant count must be at least 1")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
