package ratelimit

import (
	"fmt"
	"strings"
)

// KeyFor builds the limiter key for a user action; empty means unthrottled.
func KeyFor(userID uint64, action Action) string {
	name := strings.TrimSpace(string(action))
	if userID == 0 || name == "" {
		return ""
	}
	return fmt.Sprintf("u:%d:%s", userID, name)
}
