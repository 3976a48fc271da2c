package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLen bounds a single chat message, in bytes.
const MaxMessageLen = 32 * 1024

// ValidateMessage checks a chat message before it enters a transcript.
// The text itself is passed upstream unchanged.
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message cannot be empty")
	}

	if len(message) > MaxMessageLen {
		return fmt.Errorf("message must not exceed %d bytes", MaxMessageLen)
	}

	if !utf8.ValidString(message) {
		return fmt.Errorf("message must be valid UTF-8")
	}

	return nil
}
