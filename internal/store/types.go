package store

import (
	"fmt"
	"time"

	"github.com/KarlRaf/granola-linear-integration/internal/linear"
)

// UnassignedSentinel is the assignee value used when extraction could
// not attribute an item to anyone.
const UnassignedSentinel = "Unassigned"

// ActionItem is one task extracted from a meeting, tracked through the
// review lifecycle. Items are owned exclusively by the Store: they are
// never deleted, only status-transitioned.
type ActionItem struct {
	// ID is deterministic: {meetingID}_action_{index}, where index is the
	// item's position in that meeting's extraction result. Re-running
	// extraction with identical output reproduces the same IDs.
	ID string `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	Priority    string `json:"priority"`
	Deadline    string `json:"deadline,omitempty"`

	Status Status `json:"status"`

	MeetingID    string    `json:"meeting_id"`
	MeetingTitle string    `json:"meeting_title"`
	MeetingDate  time.Time `json:"meeting_date"`
	ExtractedAt  time.Time `json:"extracted_at"`

	// LinearIssue is the opaque record returned by the issue tracker
	// once the item reaches the created state.
	LinearIssue *linear.Issue `json:"linear_issue,omitempty"`
}

// ItemID builds the deterministic action item identifier.
func ItemID(meetingID string, index int) string {
	return fmt.Sprintf("%s_action_%d", meetingID, index)
}

// Marker records that a meeting has been run through extraction.
// Presence of a marker is the sole deduplication signal.
type Marker struct {
	ProcessedAt   time.Time `json:"processed_at"`
	ActionItemIDs []string  `json:"action_item_ids"`
}

// Settings holds user-tunable behavior. Settings survive ResetAll.
type Settings struct {
	// CustomPrompt overrides the default extraction instructions.
	CustomPrompt string `json:"custom_prompt,omitempty"`

	// DefaultTeamID is the Linear team issues are created under when a
	// request does not name one.
	DefaultTeamID string `json:"default_team_id,omitempty"`
}

// state is the full serialized content of the store file.
type state struct {
	ActionItems map[string]*ActionItem `json:"action_items"`
	Processed   map[string]Marker      `json:"processed_meetings"`
	Settings    Settings               `json:"settings"`
}

func newState() *state {
	return &state{
		ActionItems: make(map[string]*ActionItem),
		Processed:   make(map[string]Marker),
	}
}
