package utils

import (
	"fmt"
	"strconv"
)

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// SystemTopic carries everything every member of the room may see.
func SystemTopic(roomID int64) string {
	return fmt.Sprintf("game-%d-system", roomID)
}

// MemberTopic carries messages meant for one member only, like voice tokens.
func MemberTopic(roomID, memberID int64) string {
	return fmt.Sprintf("game-%d-member-%d", roomID, memberID)
}

// ParseID reads a positive int64 id from a path or query value.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be positive", raw)
	}
	return id, nil
}
