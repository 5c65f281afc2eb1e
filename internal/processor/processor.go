// Package processor orchestrates the meeting processing pipeline:
// load meetings from the cache, filter out the already-processed set,
// extract action items per new meeting, and persist the results.
//
// The processor guarantees at most one concurrent pass and
// exactly-once-per-meeting extraction. Triggers (file watch, poll
// timer, manual call, startup catch-up) can fire concurrently and in
// rapid succession; all of them funnel into Run.
package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KarlRaf/granola-linear-integration/internal/extraction"
	"github.com/KarlRaf/granola-linear-integration/internal/granola"
	"github.com/KarlRaf/granola-linear-integration/internal/logging"
	"github.com/KarlRaf/granola-linear-integration/internal/metrics"
	"github.com/KarlRaf/granola-linear-integration/internal/store"
)

// MeetingSource loads normalized meetings, newest first.
// *granola.Reader is the production implementation.
type MeetingSource interface {
	Load(ctx context.Context) []granola.Meeting
}

// Result is the aggregate outcome of one processing pass.
type Result struct {
	// Skipped is set when the pass found another pass in flight and
	// performed no work. A defined no-op, not an error.
	Skipped bool

	// ProcessedCount is the number of meetings extracted and marked.
	ProcessedCount int

	// ActionItemCount is the total items persisted across meetings.
	ActionItemCount int

	// Failures maps meeting id to its extraction error. Failed meetings
	// are not marked processed and stay eligible for retry.
	Failures map[string]error
}

// Processor runs processing passes. Construct once per process.
type Processor struct {
	source    MeetingSource
	store     *store.Store
	extractor extraction.Extractor
	logger    *logging.Logger
	metrics   *metrics.Metrics

	// inFlight is the only synchronization between trigger sources.
	inFlight atomic.Bool
}

// New creates a processor.
func New(source MeetingSource, st *store.Store, extractor extraction.Extractor, logger *logging.Logger, m *metrics.Metrics) (*Processor, error) {
	if source == nil {
		return nil, errors.New("meeting source is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Processor{
		source:    source,
		store:     st,
		extractor: extractor,
		logger:    logger.Named("processor"),
		metrics:   m,
	}, nil
}

// Run executes one processing pass.
//
// If another pass is in flight the call returns immediately with
// Result{Skipped: true} and touches nothing. A single meeting's
// extraction failure never aborts the batch, and no error from the
// cache, the extractor, or the store escapes this method.
func (p *Processor) Run(ctx context.Context) Result {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug(ctx, "processing pass already in flight, skipping")
		p.metrics.RecordRun(metrics.OutcomeSkipped)
		return Result{Skipped: true}
	}
	// Guard release is unconditional: a panic below must not wedge the
	// pipeline forever.
	defer p.inFlight.Store(false)

	ctx = logging.WithRunID(ctx, uuid.NewString()[:8])
	start := time.Now()

	meetings := p.source.Load(ctx)
	settings := p.store.GetSettings()

	unprocessed := make([]granola.Meeting, 0, len(meetings))
	for _, m := range meetings {
		if !p.store.IsProcessed(m.ID) {
			unprocessed = append(unprocessed, m)
		}
	}

	p.logger.Info(ctx, "processing pass started",
		zap.Int("meetings", len(meetings)),
		zap.Int("unprocessed", len(unprocessed)))

	result := Result{Failures: make(map[string]error)}

	// Strictly in reader order, one at a time: extraction calls are
	// rate-sensitive external calls.
	for _, m := range unprocessed {
		mctx := logging.WithMeetingID(ctx, m.ID)

		items, err := p.extractor.Extract(mctx, m, settings.CustomPrompt)
		if err != nil {
			// Meeting stays unmarked so the next pass retries it.
			result.Failures[m.ID] = err
			p.metrics.RecordExtractionFailure()
			p.logger.Warn(mctx, "extraction failed, meeting left for retry",
				zap.String("title", m.Title),
				zap.Error(err))
			continue
		}

		actionItems, ids := p.buildActionItems(m, items)
		p.store.SaveActionItems(mctx, actionItems)
		p.store.MarkProcessed(mctx, m.ID, ids)

		result.ProcessedCount++
		result.ActionItemCount += len(actionItems)
		p.metrics.RecordMeetingProcessed(len(actionItems))

		p.logger.Info(mctx, "meeting processed",
			zap.String("title", m.Title),
			zap.Int("action_items", len(actionItems)))
	}

	p.metrics.RecordRun(metrics.OutcomeCompleted)
	p.logger.Info(ctx, "processing pass finished",
		zap.Int("processed", result.ProcessedCount),
		zap.Int("action_items", result.ActionItemCount),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("duration", time.Since(start)))

	return result
}

// buildActionItems converts extractor output into persisted items with
// deterministic ids derived from the meeting id and item position.
func (p *Processor) buildActionItems(m granola.Meeting, items []extraction.Item) ([]store.ActionItem, []string) {
	now := time.Now().UTC()

	actionItems := make([]store.ActionItem, 0, len(items))
	ids := make([]string, 0, len(items))

	for i, item := range items {
		id := store.ItemID(m.ID, i)
		assignee := item.Assignee
		if assignee == "" {
			assignee = store.UnassignedSentinel
		}

		actionItems = append(actionItems, store.ActionItem{
			ID:           id,
			Title:        item.Title,
			Description:  item.Description,
			Assignee:     assignee,
			Priority:     store.NormalizePriority(item.Priority),
			Deadline:     item.Deadline,
			Status:       store.StatusPendingReview,
			MeetingID:    m.ID,
			MeetingTitle: m.Title,
			MeetingDate:  m.Date,
			ExtractedAt:  now,
		})
		ids = append(ids, id)
	}

	return actionItems, ids
}
