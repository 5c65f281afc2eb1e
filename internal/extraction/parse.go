package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseItems parses the completion response into items.
//
// LLMs sometimes wrap JSON in markdown code fences; those are stripped
// first. A response that still fails to parse as a JSON array is an
// error: silently treating garbage as "no action items" would mark the
// meeting processed and lose its items forever.
func parseItems(content string) ([]Item, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var items []Item
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, fmt.Errorf("malformed extraction response: %w", err)
	}

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		if strings.TrimSpace(item.Assignee) == "" {
			item.Assignee = "Unassigned"
		}
		item.Priority = normalizePriority(item.Priority)
		out = append(out, item)
	}

	return out, nil
}

// normalizePriority maps free-form priority text onto the known set.
func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high", "urgent", "critical":
		return "High"
	case "low":
		return "Low"
	default:
		return "Medium"
	}
}
