package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KarlRaf/granola-linear-integration/internal/linear"
	"github.com/KarlRaf/granola-linear-integration/internal/logging"
	"github.com/KarlRaf/granola-linear-integration/internal/metrics"
	"github.com/KarlRaf/granola-linear-integration/internal/store"
)

type stubIssueCreator struct {
	issue *linear.Issue
	err   error

	mu    sync.Mutex
	last  linear.IssueRequest
	calls int

	// started/release let a test suspend a call mid-flight
	started chan struct{}
	release chan struct{}
}

func (s *stubIssueCreator) CreateIssue(ctx context.Context, req linear.IssueRequest) (*linear.Issue, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}

	s.mu.Lock()
	s.last = req
	s.calls++
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return s.issue, nil
}

func (s *stubIssueCreator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubIssueCreator) lastRequest() linear.IssueRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type stubTriggerer struct {
	count atomic.Int64
}

func (s *stubTriggerer) Trigger() {
	s.count.Add(1)
}

type testEnv struct {
	server  *Server
	store   *store.Store
	issues  *stubIssueCreator
	trigger *stubTriggerer
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "state.json"), logging.NewNop())
	require.NoError(t, err)

	issues := &stubIssueCreator{
		issue: &linear.Issue{ID: "iss-1", Identifier: "ENG-42", Title: "Do the thing", URL: "https://linear.app/x/ENG-42"},
	}
	trigger := &stubTriggerer{}

	reg := prometheus.NewRegistry()
	srv, err := NewServer(st, issues, trigger, metrics.New(reg), reg, logging.NewNop(), &Config{
		Host:          "localhost",
		Port:          8787,
		DefaultTeamID: "team-config",
	})
	require.NoError(t, err)

	return &testEnv{server: srv, store: st, issues: issues, trigger: trigger}
}

func seedItem(t *testing.T, st *store.Store, id string, status store.Status) store.ActionItem {
	t.Helper()
	item := store.ActionItem{
		ID:           id,
		Title:        "Follow up on rollout",
		Description:  "Check the deploy dashboard",
		Assignee:     "Dana",
		Priority:     store.PriorityHigh,
		Status:       store.StatusPendingReview,
		MeetingID:    "meeting_1",
		MeetingTitle: "Weekly Sync",
		MeetingDate:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		ExtractedAt:  time.Now().UTC(),
	}
	st.SaveActionItems(context.Background(), []store.ActionItem{item})
	if status != store.StatusPendingReview {
		updated, err := st.UpdateStatus(context.Background(), id, status)
		require.NoError(t, err)
		return updated
	}
	return item
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("returns error when store is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, nil, nil, nil, logging.NewNop(), nil)
		assert.ErrorContains(t, err, "store is required")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		st, err := store.Open(filepath.Join(t.TempDir(), "state.json"), logging.NewNop())
		require.NoError(t, err)

		_, err = NewServer(st, nil, nil, nil, nil, nil, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		st, err := store.Open(filepath.Join(t.TempDir(), "state.json"), logging.NewNop())
		require.NoError(t, err)

		srv, err := NewServer(st, nil, nil, nil, nil, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", srv.config.Host)
		assert.Equal(t, 8787, srv.config.Port)
	})
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t)

	rec := doJSON(t, env.server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	env := setupTestServer(t)

	rec := doJSON(t, env.server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "granolad_")
}

func TestHandleTrigger(t *testing.T) {
	env := setupTestServer(t)

	rec := doJSON(t, env.server, http.MethodPost, "/api/v1/trigger", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int64(1), env.trigger.count.Load())
}

func TestHandleListActionItems(t *testing.T) {
	env := setupTestServer(t)
	seedItem(t, env.store, "meeting_1_action_0", store.StatusPendingReview)
	seedItem(t, env.store, "meeting_1_action_1", store.StatusApproved)

	t.Run("lists all without filter", func(t *testing.T) {
		rec := doJSON(t, env.server, http.MethodGet, "/api/v1/action-items", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
	})

	t.Run("filters by status", func(t *testing.T) {
		rec := doJSON(t, env.server, http.MethodGet, "/api/v1/action-items?status=approved", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "meeting_1_action_1", resp.Items[0].ID)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		rec := doJSON(t, env.server, http.MethodGet, "/api/v1/action-items?status=done", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleStats(t *testing.T) {
	env := setupTestServer(t)
	seedItem(t, env.store, "meeting_1_action_0", store.StatusPendingReview)

	rec := doJSON(t, env.server, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats["total"])
	assert.Equal(t, 1, stats["pending_review"])
}

func TestHandleApproveReject(t *testing.T) {
	t.Run("approves a pending item", func(t *testing.T) {
		env := setupTestServer(t)
		seedItem(t, env.store, "meeting_1_action_0", store.StatusPendingReview)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/approve", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		var item store.ActionItem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
		assert.Equal(t, store.StatusApproved, item.Status)
	})

	t.Run("rejects a pending item", func(t *testing.T) {
		env := setupTestServer(t)
		seedItem(t, env.store, "meeting_1_action_0", store.StatusPendingReview)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/reject", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("returns 404 for unknown item", func(t *testing.T) {
		env := setupTestServer(t)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/nope/approve", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 409 for invalid transition", func(t *testing.T) {
		env := setupTestServer(t)
		seedItem(t, env.store, "meeting_1_action_0", store.StatusRejected)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/approve", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandleCreateIssue(t *testing.T) {
	t.Run("creates issue for approved item", func(t *testing.T) {
		env := setupTestServer(t)
		seedItem(t, env.store, "meeting_1_action_0", store.StatusApproved)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/create-issue",
			CreateIssueRequest{TeamID: "team-req"})
		assert.Equal(t, http.StatusCreated, rec.Code)

		var item store.ActionItem
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
		assert.Equal(t, store.StatusCreated, item.Status)
		require.NotNil(t, item.LinearIssue)
		assert.Equal(t, "ENG-42", item.LinearIssue.Identifier)

		assert.Equal(t, "team-req", env.issues.lastRequest().TeamID)
		assert.Equal(t, "Follow up on rollout", env.issues.lastRequest().Title)
		assert.Contains(t, env.issues.lastRequest().Description, "Weekly Sync")
	})

	t.Run("falls back to settings team id", func(t *testing.T) {
		env := setupTestServer(t)
		env.store.SaveSettings(context.Background(), store.Settings{DefaultTeamID: "team-settings"})
		seedItem(t, env.store, "meeting_1_action_0", store.StatusApproved)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/create-issue", nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "team-settings", env.issues.lastRequest().TeamID)
	})

	t.Run("falls back to configured team id", func(t *testing.T) {
		env := setupTestServer(t)
		seedItem(t, env.store, "meeting_1_action_0", store.StatusApproved)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/create-issue", nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "team-config", env.issues.lastRequest().TeamID)
	})

	t.Run("rejects non-approved items", func(t *testing.T) {
		env := setupTestServer(t)
		seedItem(t, env.store, "meeting_1_action_0", store.StatusPendingReview)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/create-issue", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("concurrent requests create exactly one issue", func(t *testing.T) {
		env := setupTestServer(t)
		seedItem(t, env.store, "meeting_1_action_0", store.StatusApproved)

		env.issues.started = make(chan struct{}, 2)
		env.issues.release = make(chan struct{})

		codes := make(chan int, 2)
		request := func() {
			rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/create-issue", nil)
			codes <- rec.Code
		}

		// First request suspends inside the tracker call; the second
		// arrives while it is in flight.
		go request()
		<-env.issues.started
		go request()
		close(env.issues.release)

		got := []int{<-codes, <-codes}
		sort.Ints(got)
		assert.Equal(t, []int{http.StatusCreated, http.StatusConflict}, got)
		assert.Equal(t, 1, env.issues.callCount())
	})

	t.Run("returns 502 when issue creation fails", func(t *testing.T) {
		env := setupTestServer(t)
		env.issues.err = errors.New("linear unavailable")
		seedItem(t, env.store, "meeting_1_action_0", store.StatusApproved)

		rec := doJSON(t, env.server, http.MethodPost, "/api/v1/action-items/meeting_1_action_0/create-issue", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		// Item stays approved for another attempt
		item, ok := env.store.Get("meeting_1_action_0")
		require.True(t, ok)
		assert.Equal(t, store.StatusApproved, item.Status)
	})
}

func TestHandleSettings(t *testing.T) {
	env := setupTestServer(t)

	rec := doJSON(t, env.server, http.MethodPut, "/api/v1/settings",
		map[string]string{"custom_prompt": "extract only decisions"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.server, http.MethodGet, "/api/v1/settings", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var settings store.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "extract only decisions", settings.CustomPrompt)

	// Partial update keeps the prompt
	rec = doJSON(t, env.server, http.MethodPut, "/api/v1/settings",
		map[string]string{"default_team_id": "team-x"})
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "extract only decisions", settings.CustomPrompt)
	assert.Equal(t, "team-x", settings.DefaultTeamID)
}

func TestHandleReset(t *testing.T) {
	env := setupTestServer(t)
	seedItem(t, env.store, "meeting_1_action_0", store.StatusPendingReview)
	env.store.MarkProcessed(context.Background(), "meeting_1", []string{"meeting_1_action_0"})
	env.store.SaveSettings(context.Background(), store.Settings{DefaultTeamID: "team-x"})

	rec := doJSON(t, env.server, http.MethodPost, "/api/v1/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats["total"])

	assert.False(t, env.store.IsProcessed("meeting_1"))
	assert.Equal(t, "team-x", env.store.GetSettings().DefaultTeamID)
}
