package granola

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Meeting is the normalized representation of one recorded conversation.
// Meetings are ephemeral: they are derived fresh from the cache file on
// every read and never persisted.
type Meeting struct {
	// ID is the stable external identifier. When the source provides
	// none, a generated identifier is used; such records cannot be
	// deduplicated across reads.
	ID string `json:"id"`

	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	Participants []string  `json:"participants,omitempty"`
	Notes        string    `json:"notes"`
	Transcript   string    `json:"transcript"`

	// Raw is the source record kept as an opaque debug side-channel.
	// It is excluded from deduplication and equality semantics.
	Raw map[string]any `json:"-"`
}

// HasContent reports whether the meeting carries any notes or transcript.
// Meetings without content are dropped during normalization.
func (m Meeting) HasContent() bool {
	return m.Notes != "" || m.Transcript != ""
}

// generateID builds a fallback identifier for records the source did not
// key. Timestamp plus random suffix; not stable across reads.
func generateID(now time.Time) string {
	return fmt.Sprintf("meeting_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
