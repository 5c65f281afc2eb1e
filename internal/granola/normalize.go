package granola

import (
	"sort"
	"strings"
	"time"
)

// knownTypes is the allow-set for candidate type tags. A candidate with a
// tag outside this set is discarded before field extraction. Candidates
// without a tag are kept.
var knownTypes = map[string]bool{
	"document": true,
	"meeting":  true,
	"note":     true,
}

// fieldProbe is one step of an ordered fallback chain for a single
// attribute. Probes run in order; the first one that yields a non-empty
// value wins.
type fieldProbe struct {
	name    string
	extract func(raw map[string]any) (string, bool)
}

// stringField returns a probe reading a plain string key.
func stringField(key string) fieldProbe {
	return fieldProbe{
		name: key,
		extract: func(raw map[string]any) (string, bool) {
			s, ok := raw[key].(string)
			if !ok || strings.TrimSpace(s) == "" {
				return "", false
			}
			return s, true
		},
	}
}

// titleProbes resolve the meeting title.
var titleProbes = []fieldProbe{
	stringField("title"),
	stringField("name"),
	stringField("subject"),
}

// notesProbes resolve the notes body. Order matters: the richer formats
// come first, raw fallbacks last.
var notesProbes = []fieldProbe{
	stringField("notes_markdown"),
	stringField("notes_plain"),
	{
		name: "panels",
		extract: func(raw map[string]any) (string, bool) {
			panels, ok := raw["panels"].([]any)
			if !ok {
				return "", false
			}
			var parts []string
			for _, p := range panels {
				pm, ok := p.(map[string]any)
				if !ok {
					continue
				}
				if s := collectText(pm["content"]); s != "" {
					parts = append(parts, s)
				} else if s, ok := pm["content"].(string); ok && strings.TrimSpace(s) != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) == 0 {
				return "", false
			}
			return strings.Join(parts, "\n\n"), true
		},
	},
	stringField("notes"),
	{
		name: "content",
		extract: func(raw map[string]any) (string, bool) {
			s := collectText(raw["content"])
			if s == "" {
				return "", false
			}
			return s, true
		},
	},
	stringField("enhanced_notes"),
}

// firstMatch runs an ordered probe chain and returns the first hit.
func firstMatch(probes []fieldProbe, raw map[string]any) (string, bool) {
	for _, p := range probes {
		if v, ok := p.extract(raw); ok {
			return v, true
		}
	}
	return "", false
}

// normalize converts one candidate record into a Meeting.
//
// key is the identifier the candidate was indexed under in its container
// (empty for list-shaped containers). transcripts is the externally
// indexed transcript mapping, which wins over any inline transcript field
// because it is the more complete form in the primary cache shape.
//
// Returns false when the candidate is discarded: unknown type tag, not a
// mapping, or no derivable notes and no derivable transcript.
func normalize(key string, candidate any, transcripts map[string]string, now time.Time) (Meeting, bool) {
	raw, ok := candidate.(map[string]any)
	if !ok {
		return Meeting{}, false
	}

	if tag, ok := raw["type"].(string); ok && !knownTypes[tag] {
		return Meeting{}, false
	}

	m := Meeting{Raw: raw}

	m.ID = candidateID(key, raw)
	if m.ID == "" {
		m.ID = generateID(now)
	}

	if title, ok := firstMatch(titleProbes, raw); ok {
		m.Title = title
	} else {
		m.Title = "Untitled Meeting"
	}

	// Absence of a date must not exclude a meeting
	if date, ok := candidateDate(raw); ok {
		m.Date = date
	} else {
		m.Date = now
	}

	m.Participants = candidateParticipants(raw)

	if notes, ok := firstMatch(notesProbes, raw); ok {
		m.Notes = notes
	}

	if t, ok := transcripts[m.ID]; ok && t != "" {
		m.Transcript = t
	} else {
		m.Transcript = inlineTranscript(raw)
	}

	if !m.HasContent() {
		return Meeting{}, false
	}

	return m, true
}

// candidateID resolves the record identifier from its fields or its
// container key.
func candidateID(key string, raw map[string]any) string {
	for _, k := range []string{"id", "document_id", "documentId"} {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return key
}

// candidateDate parses the meeting date from the usual timestamp fields.
// Accepts RFC3339 strings and numeric epoch values (seconds or millis).
func candidateDate(raw map[string]any) (time.Time, bool) {
	for _, k := range []string{"created_at", "createdAt", "date", "updated_at", "updatedAt"} {
		switch v := raw[k].(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t, true
			}
			if t, err := time.Parse("2006-01-02T15:04:05", v); err == nil {
				return t, true
			}
		case float64:
			// Heuristic: values past the year 33658 in seconds are millis
			if v > 1e12 {
				return time.UnixMilli(int64(v)), true
			}
			if v > 0 {
				return time.Unix(int64(v), 0), true
			}
		}
	}
	return time.Time{}, false
}

// candidateParticipants reads the attendee list from the usual fields.
// Elements may be plain strings or objects carrying name/email.
func candidateParticipants(raw map[string]any) []string {
	for _, k := range []string{"people", "participants", "attendees"} {
		list, ok := raw[k].([]any)
		if !ok {
			continue
		}
		var out []string
		for _, el := range list {
			switch v := el.(type) {
			case string:
				if v != "" {
					out = append(out, v)
				}
			case map[string]any:
				if name, ok := v["name"].(string); ok && name != "" {
					out = append(out, name)
				} else if email, ok := v["email"].(string); ok && email != "" {
					out = append(out, email)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// inlineTranscript reads a transcript carried on the record itself,
// either as a plain string or as a list of segments.
func inlineTranscript(raw map[string]any) string {
	switch v := raw["transcript"].(type) {
	case string:
		return v
	case []any:
		return joinSegments(v)
	}
	return ""
}

// joinSegments flattens a transcript segment list into plain text.
// Segments may be strings or objects with a "text" field.
func joinSegments(segments []any) string {
	var parts []string
	for _, seg := range segments {
		switch v := seg.(type) {
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		case map[string]any:
			if text, ok := v["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// collectText walks an arbitrarily nested document tree (the cache stores
// editor documents as nested node objects) and gathers every "text" leaf
// in document order.
func collectText(v any) string {
	var parts []string
	var walk func(any)
	walk = func(node any) {
		switch n := node.(type) {
		case map[string]any:
			if text, ok := n["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
			if content, ok := n["content"].([]any); ok {
				for _, c := range content {
					walk(c)
				}
			}
		case []any:
			for _, c := range n {
				walk(c)
			}
		}
	}
	walk(v)
	return strings.Join(parts, "\n")
}

// sortMeetings orders meetings newest first. The sort is stable: records
// with equal dates keep their input relative order.
func sortMeetings(meetings []Meeting) {
	sort.SliceStable(meetings, func(i, j int) bool {
		return meetings[i].Date.After(meetings[j].Date)
	})
}
