package extraction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KarlRaf/granola-linear-integration/internal/granola"
)

func testMeeting() granola.Meeting {
	return granola.Meeting{
		ID:           "x1",
		Title:        "Weekly Sync",
		Date:         time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Participants: []string{"Alice", "Bob"},
		Notes:        "Bob will send the report by Friday",
	}
}

func TestParseItems(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []Item
		wantErr bool
	}{
		{
			name:    "plain array",
			content: `[{"title": "Send report", "assignee": "Bob", "priority": "Medium", "deadline": "Friday"}]`,
			want: []Item{{
				Title: "Send report", Assignee: "Bob", Priority: "Medium", Deadline: "Friday",
			}},
		},
		{
			name:    "markdown fenced",
			content: "```json\n[{\"title\": \"Send report\"}]\n```",
			want:    []Item{{Title: "Send report", Assignee: "Unassigned", Priority: "Medium"}},
		},
		{
			name:    "empty array",
			content: `[]`,
			want:    []Item{},
		},
		{
			name:    "untitled items dropped",
			content: `[{"title": "", "assignee": "Bob"}, {"title": "Real task"}]`,
			want:    []Item{{Title: "Real task", Assignee: "Unassigned", Priority: "Medium"}},
		},
		{
			name:    "not json is an error",
			content: "Sure! Here are the action items I found:",
			wantErr: true,
		},
		{
			name:    "object instead of array is an error",
			content: `{"title": "Send report"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := parseItems(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "malformed extraction response")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, items)
		})
	}
}

func TestNormalizePriority(t *testing.T) {
	assert.Equal(t, "High", normalizePriority("high"))
	assert.Equal(t, "High", normalizePriority("Urgent"))
	assert.Equal(t, "Low", normalizePriority(" low "))
	assert.Equal(t, "Medium", normalizePriority("medium"))
	assert.Equal(t, "Medium", normalizePriority(""))
	assert.Equal(t, "Medium", normalizePriority("p2"))
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, defaultPrompt, systemPrompt(""))
	assert.Equal(t, defaultPrompt, systemPrompt("   "))
	assert.Equal(t, "custom", systemPrompt("custom"))
}

func TestMeetingContent(t *testing.T) {
	content := meetingContent(testMeeting())

	assert.Contains(t, content, "Meeting: Weekly Sync")
	assert.Contains(t, content, "Alice, Bob")
	assert.Contains(t, content, "Bob will send the report by Friday")
}

func TestMeetingContentTruncatesTranscript(t *testing.T) {
	m := testMeeting()
	m.Transcript = strings.Repeat("a", maxContentChars*2)

	content := meetingContent(m)
	assert.LessOrEqual(t, len(content), maxContentChars+100)
	// Notes survive truncation
	assert.Contains(t, content, "Bob will send the report")
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("bard", Config{APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("anthropic", Config{})
	require.Error(t, err)

	_, err = New("openai", Config{})
	require.Error(t, err)
}

func TestAnthropicExtract(t *testing.T) {
	var gotReq anthropicRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": `[{"title": "Send report", "assignee": "Bob", "priority": "Medium", "deadline": "Friday"}]`},
			},
		})
	}))
	defer srv.Close()

	e, err := New("anthropic", Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	items, err := e.Extract(context.Background(), testMeeting(), "")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "Send report", items[0].Title)
	assert.Equal(t, "Bob", items[0].Assignee)
	assert.Equal(t, defaultPrompt, gotReq.System)
	assert.Contains(t, gotReq.Messages[0].Content, "Weekly Sync")
}

func TestAnthropicExtractCustomPrompt(t *testing.T) {
	var gotReq anthropicRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": `[]`}},
		})
	}))
	defer srv.Close()

	e, err := New("anthropic", Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), testMeeting(), "only extract deadlines")
	require.NoError(t, err)
	assert.Equal(t, "only extract deadlines", gotReq.System)
}

func TestAnthropicExtractMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "not json at all"}},
		})
	}))
	defer srv.Close()

	e, err := New("anthropic", Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), testMeeting(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed extraction response")
}

func TestAnthropicExtractRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": `[]`}},
		})
	}))
	defer srv.Close()

	e, err := New("anthropic", Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	e.(*anthropicExtractor).maxRetries = 3

	// Shrink backoff for the test
	start := time.Now()
	items, err := e.Extract(context.Background(), testMeeting(), "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 3, attempts)
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestAnthropicExtractDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "bad model"},
		})
	}))
	defer srv.Close()

	e, err := New("anthropic", Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), testMeeting(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, 1, attempts)
}

func TestOpenAIExtract(t *testing.T) {
	var gotReq openAIRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `[{"title": "Send report", "priority": "high"}]`}},
			},
		})
	}))
	defer srv.Close()

	e, err := New("openai", Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	items, err := e.Extract(context.Background(), testMeeting(), "")
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "High", items[0].Priority)
	assert.Equal(t, "Unassigned", items[0].Assignee)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(assert.AnError))
	assert.True(t, isRetryableError(&retryableError{err: assert.AnError}))
}
