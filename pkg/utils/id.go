package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// GenerateRoomID returns a room identifier made of a base-36 millisecond
// timestamp followed by a random suffix. The session surface only accepts
// alphanumeric room names, so the result is sanitized to [a-z0-9].
func GenerateRoomID() string {
	ts := strconv.FormatInt(Now().UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return AlphanumericOnly("room" + ts + suffix)
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return fmt.Sprintf("req_%d_%s", Now().UnixNano(), uuid.NewString()[:8])
}
