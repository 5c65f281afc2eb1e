package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/KarlRaf/granola-linear-integration/internal/granola"
)

// defaultPrompt is the extraction instruction set used when the user has
// not configured a custom prompt.
const defaultPrompt = `You are an expert at extracting action items from meeting notes and transcripts.

Identify every concrete task someone committed to or was assigned during the meeting. Ignore vague intentions, questions, and general discussion.

Respond with a JSON array where each element has:
- "title": Short imperative summary of the task (required)
- "description": One or two sentences of context from the meeting
- "assignee": The person responsible, or "Unassigned" if nobody was named
- "priority": "High", "Medium", or "Low" based on urgency signals in the discussion
- "deadline": The stated deadline as mentioned (e.g. "Friday", "2026-09-15"), omitted if none

Respond ONLY with the JSON array, no additional text. Respond with [] if the meeting contains no action items.`

// maxContentChars bounds how much meeting content is sent upstream.
// Long transcripts are truncated from the end; the notes section is
// kept whole since it is the denser signal.
const maxContentChars = 60000

// systemPrompt returns the instruction set for a run, applying the
// user's custom prompt when present.
func systemPrompt(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return defaultPrompt
}

// meetingContent renders the meeting as the user message for the
// completion request.
func meetingContent(m granola.Meeting) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Meeting: %s\n", m.Title)
	if !m.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", m.Date.Format(time.RFC3339))
	}
	if len(m.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(m.Participants, ", "))
	}

	if m.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:\n%s\n", m.Notes)
	}

	if m.Transcript != "" {
		transcript := m.Transcript
		if remaining := maxContentChars - b.Len(); len(transcript) > remaining {
			if remaining <= 0 {
				transcript = ""
			} else {
				transcript = transcript[:remaining]
			}
		}
		if transcript != "" {
			fmt.Fprintf(&b, "\nTranscript:\n%s\n", transcript)
		}
	}

	return b.String()
}
