package store

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// HashPropertyContent computes SHA-256 of source + message for deduplication.
//
// Including the source means the same message posted in two different chat
// exports creates two rows, one per origin. Surrounding whitespace is
// ignored so re-exports with different line endings still collide.
func HashPropertyContent(message, source string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0}) // separator
	h.Write([]byte(strings.TrimSpace(message)))
	return fmt.Sprintf("%x", h.Sum(nil))
}
