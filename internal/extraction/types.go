// Package extraction turns meeting notes and transcripts into action
// item candidates using a completion API. It supports Anthropic and
// OpenAI backends behind a single Extractor interface.
package extraction

import (
	"context"
	"time"

	"github.com/KarlRaf/granola-linear-integration/internal/granola"
)

// Item is one action item candidate returned by the extractor, before
// it is persisted and assigned a lifecycle.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	Priority    string `json:"priority"`
	Deadline    string `json:"deadline,omitempty"`
}

// Extractor extracts action items from a meeting.
//
// promptOverride replaces the default extraction instructions when
// non-empty. A malformed upstream response is an error, never a silent
// empty result; callers isolate failures per meeting.
type Extractor interface {
	Extract(ctx context.Context, meeting granola.Meeting, promptOverride string) ([]Item, error)
}

// Config holds per-provider completion API settings.
type Config struct {
	APIKey  string        `json:"-"` // Never serialize API keys
	Model   string        `json:"model"`
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}
