// Package server exposes the review and control HTTP API for granolad.
//
// All state mutations go through the store's lifecycle rules; the API
// never bypasses transition validation. The server is optional: the
// daemon runs headless when it is disabled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/KarlRaf/granola-linear-integration/internal/linear"
	"github.com/KarlRaf/granola-linear-integration/internal/logging"
	"github.com/KarlRaf/granola-linear-integration/internal/metrics"
	"github.com/KarlRaf/granola-linear-integration/internal/store"
)

// Triggerer requests an on-demand processing pass. The pass runs
// asynchronously; the request returns before it completes.
type Triggerer interface {
	Trigger()
}

// IssueCreator creates tracker issues for approved action items.
type IssueCreator interface {
	CreateIssue(ctx context.Context, req linear.IssueRequest) (*linear.Issue, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// DefaultTeamID is the configured fallback when neither the request
	// nor the stored settings name a Linear team.
	DefaultTeamID string
}

// Server provides HTTP endpoints for granolad.
type Server struct {
	echo     *echo.Echo
	store    *store.Store
	issues   IssueCreator
	trigger  Triggerer
	metrics  *metrics.Metrics
	registry prometheus.Gatherer
	logger   *logging.Logger
	config   *Config

	// createMu serializes issue creation so two requests for the same
	// item cannot both pass the status check and create duplicates.
	createMu sync.Mutex
}

// NewServer creates a new HTTP server. The issue creator and triggerer
// may be nil; the corresponding endpoints then report the feature as
// unavailable.
func NewServer(st *store.Store, issues IssueCreator, trigger Triggerer, m *metrics.Metrics, registry prometheus.Gatherer, logger *logging.Logger, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8787,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			duration := time.Since(start)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		store:    st,
		issues:   issues,
		trigger:  trigger,
		metrics:  m,
		registry: registry,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	if s.registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/trigger", s.handleTrigger)
	v1.GET("/action-items", s.handleListActionItems)
	v1.GET("/stats", s.handleStats)
	v1.POST("/action-items/:id/approve", s.handleApprove)
	v1.POST("/action-items/:id/reject", s.handleReject)
	v1.POST("/action-items/:id/create-issue", s.handleCreateIssue)
	v1.GET("/settings", s.handleGetSettings)
	v1.PUT("/settings", s.handlePutSettings)
	v1.POST("/reset", s.handleReset)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// TriggerResponse is the response body for POST /api/v1/trigger.
type TriggerResponse struct {
	Triggered bool `json:"triggered"`
}

// ListResponse is the response body for GET /api/v1/action-items.
type ListResponse struct {
	Items []store.ActionItem `json:"items"`
	Count int                `json:"count"`
}

// CreateIssueRequest is the request body for create-issue. The team ID
// is optional; stored settings and daemon configuration act as
// fallbacks in that order.
type CreateIssueRequest struct {
	TeamID string `json:"team_id"`
}

// SettingsRequest is the request body for PUT /api/v1/settings.
type SettingsRequest struct {
	CustomPrompt  *string `json:"custom_prompt"`
	DefaultTeamID *string `json:"default_team_id"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleTrigger starts a processing pass. The pass is coalesced with
// any already-pending trigger and skipped entirely if one is in flight.
func (s *Server) handleTrigger(c echo.Context) error {
	if s.trigger == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "processing trigger not available")
	}
	s.trigger.Trigger()
	return c.JSON(http.StatusAccepted, TriggerResponse{Triggered: true})
}

// handleListActionItems lists items, optionally filtered by status.
// Without a filter every status is included.
func (s *Server) handleListActionItems(c echo.Context) error {
	raw := c.QueryParam("status")

	var items []store.ActionItem
	if raw == "" {
		items = s.store.ListByStatus("")
	} else {
		status, err := store.ParseStatus(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
		}
		items = s.store.ListByStatus(status)
	}

	return c.JSON(http.StatusOK, ListResponse{Items: items, Count: len(items)})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Stats())
}

func (s *Server) handleApprove(c echo.Context) error {
	return s.transition(c, store.StatusApproved)
}

func (s *Server) handleReject(c echo.Context) error {
	return s.transition(c, store.StatusRejected)
}

func (s *Server) transition(c echo.Context, next store.Status) error {
	id := c.Param("id")

	item, err := s.store.UpdateStatus(c.Request().Context(), id, next)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "action item not found")
		case errors.Is(err, store.ErrInvalidTransition):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "status update failed")
		}
	}

	return c.JSON(http.StatusOK, item)
}

// handleCreateIssue creates a tracker issue for an approved item and
// moves it to the created state. Only approved items are eligible.
func (s *Server) handleCreateIssue(c echo.Context) error {
	if s.issues == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "issue creation not configured")
	}

	// Held across the external call: the status check and AttachIssue
	// must be atomic with respect to other create-issue requests.
	s.createMu.Lock()
	defer s.createMu.Unlock()

	id := c.Param("id")
	ctx := c.Request().Context()

	item, ok := s.store.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "action item not found")
	}
	if item.Status != store.StatusApproved {
		return echo.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("action item is %s, only approved items can become issues", item.Status))
	}

	var req CreateIssueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	teamID := s.resolveTeamID(req.TeamID)
	if teamID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, linear.ErrNoTeam.Error())
	}

	issue, err := s.issues.CreateIssue(ctx, linear.IssueRequest{
		Title:       item.Title,
		Description: issueDescription(item),
		Priority:    item.Priority,
		TeamID:      teamID,
	})
	if err != nil {
		s.logger.Error(ctx, "issue creation failed",
			zap.String("action_item_id", id),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusBadGateway, "issue creation failed")
	}

	updated, err := s.store.AttachIssue(ctx, id, issue)
	if err != nil {
		// The issue exists in Linear but the local transition failed.
		// Surface the conflict rather than retry and duplicate.
		s.logger.Error(ctx, "issue created but item update failed",
			zap.String("action_item_id", id),
			zap.String("issue_id", issue.ID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusConflict, "issue created but item update failed")
	}

	s.metrics.RecordIssueCreated()

	return c.JSON(http.StatusCreated, updated)
}

// resolveTeamID picks the Linear team: explicit request value, then
// stored settings, then daemon configuration.
func (s *Server) resolveTeamID(requested string) string {
	if requested != "" {
		return requested
	}
	if settings := s.store.GetSettings(); settings.DefaultTeamID != "" {
		return settings.DefaultTeamID
	}
	return s.config.DefaultTeamID
}

// issueDescription renders the issue body with meeting provenance.
func issueDescription(item store.ActionItem) string {
	desc := item.Description
	if desc == "" {
		desc = item.Title
	}
	out := fmt.Sprintf("%s\n\n---\nFrom meeting: %s (%s)",
		desc, item.MeetingTitle, item.MeetingDate.Format("2006-01-02"))
	if item.Assignee != "" && item.Assignee != store.UnassignedSentinel {
		out += "\nAssignee: " + item.Assignee
	}
	if item.Deadline != "" {
		out += "\nDeadline: " + item.Deadline
	}
	return out
}

func (s *Server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.GetSettings())
}

// handlePutSettings applies a partial settings update. Absent fields
// keep their current values; empty strings clear them.
func (s *Server) handlePutSettings(c echo.Context) error {
	var req SettingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	settings := s.store.GetSettings()
	if req.CustomPrompt != nil {
		settings.CustomPrompt = *req.CustomPrompt
	}
	if req.DefaultTeamID != nil {
		settings.DefaultTeamID = *req.DefaultTeamID
	}
	s.store.SaveSettings(c.Request().Context(), settings)

	return c.JSON(http.StatusOK, settings)
}

// handleReset clears action items and processed-meeting markers so the
// next pass re-extracts everything. Settings survive.
func (s *Server) handleReset(c echo.Context) error {
	ctx := c.Request().Context()
	s.store.ResetAll(ctx)
	s.logger.Warn(ctx, "store reset, all meetings will be reprocessed")
	return c.JSON(http.StatusOK, s.store.Stats())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
