package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KarlRaf/granola-linear-integration/internal/linear"
	"github.com/KarlRaf/granola-linear-integration/internal/logging"
)

var (
	// ErrNotFound indicates the action item id is unknown to the store.
	ErrNotFound = errors.New("action item not found")

	// ErrInvalidTransition indicates the requested status change is not
	// permitted by the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the durable state owner. Not safe for multi-process use; the
// mutex serializes in-process callers only.
type Store struct {
	path   string
	logger *logging.Logger

	mu    sync.Mutex
	state *state
}

// Open loads the store file at path, or starts empty when the file does
// not exist yet. The parent directory is created on demand.
func Open(path string, logger *logging.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Store{
		path:   path,
		logger: logger.Named("store"),
		state:  newState(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", path, err)
	}
	if st.ActionItems == nil {
		st.ActionItems = make(map[string]*ActionItem)
	}
	if st.Processed == nil {
		st.Processed = make(map[string]Marker)
	}
	s.state = &st

	return s, nil
}

// persistLocked rewrites the store file in full. Write failures are
// logged, not returned: in-memory state is allowed to run ahead of disk
// until a future write succeeds (local single-user deployment).
// Callers must hold s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		s.logger.Error(ctx, "failed to serialize store state", zap.Error(err))
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		s.logger.Error(ctx, "failed to create store directory", zap.Error(err))
		return
	}

	// Write-then-rename keeps the previous state intact if the write
	// is interrupted.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		s.logger.Error(ctx, "failed to write store file", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error(ctx, "failed to replace store file", zap.Error(err))
	}
}

// IsProcessed reports whether the meeting id has a processed marker.
func (s *Store) IsProcessed(meetingID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.Processed[meetingID]
	return ok
}

// MarkProcessed records that a meeting has been run through extraction.
// Idempotent: an existing marker for the id is overwritten.
func (s *Store) MarkProcessed(ctx context.Context, meetingID string, actionItemIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(actionItemIDs))
	copy(ids, actionItemIDs)

	s.state.Processed[meetingID] = Marker{
		ProcessedAt:   time.Now().UTC(),
		ActionItemIDs: ids,
	}
	s.persistLocked(ctx)
}

// Marker returns the processed marker for a meeting id.
func (s *Store) Marker(meetingID string) (Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.Processed[meetingID]
	return m, ok
}

// SaveActionItems upserts items by id.
func (s *Store) SaveActionItems(ctx context.Context, items []ActionItem) {
	if len(items) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range items {
		item := items[i]
		s.state.ActionItems[item.ID] = &item
	}
	s.persistLocked(ctx)
}

// Get returns an action item by id.
func (s *Store) Get(id string) (ActionItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.state.ActionItems[id]
	if !ok {
		return ActionItem{}, false
	}
	return *item, true
}

// UpdateStatus transitions an item through the lifecycle. Returns
// ErrNotFound for unknown ids (never creates) and ErrInvalidTransition
// for moves the lifecycle forbids, leaving the item untouched.
func (s *Store) UpdateStatus(ctx context.Context, id string, next Status) (ActionItem, error) {
	if !next.IsValid() {
		return ActionItem{}, fmt.Errorf("%w: %q", ErrInvalidTransition, next)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.state.ActionItems[id]
	if !ok {
		return ActionItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if !item.Status.CanTransitionTo(next) {
		return ActionItem{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, next)
	}

	item.Status = next
	s.persistLocked(ctx)
	return *item, nil
}

// AttachIssue moves an approved item to created and stores the issue
// record returned by Linear.
func (s *Store) AttachIssue(ctx context.Context, id string, issue *linear.Issue) (ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.state.ActionItems[id]
	if !ok {
		return ActionItem{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if !item.Status.CanTransitionTo(StatusCreated) {
		return ActionItem{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, StatusCreated)
	}

	item.Status = StatusCreated
	item.LinearIssue = issue
	s.persistLocked(ctx)
	return *item, nil
}

// ListByStatus returns items in the given state, or all items when
// status is empty. Results are ordered newest extraction first, with id
// as the tie-break.
func (s *Store) ListByStatus(status Status) []ActionItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]ActionItem, 0, len(s.state.ActionItems))
	for _, item := range s.state.ActionItems {
		if status != "" && item.Status != status {
			continue
		}
		items = append(items, *item)
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].ExtractedAt.Equal(items[j].ExtractedAt) {
			return items[i].ExtractedAt.After(items[j].ExtractedAt)
		}
		return items[i].ID < items[j].ID
	})

	return items
}

// Stats returns item counts per lifecycle state plus a "total" entry.
func (s *Store) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(allStatuses)+1)
	for _, st := range allStatuses {
		counts[string(st)] = 0
	}
	for _, item := range s.state.ActionItems {
		counts[string(item.Status)]++
	}
	counts["total"] = len(s.state.ActionItems)
	return counts
}

// GetSettings returns the current settings.
func (s *Store) GetSettings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Settings
}

// SaveSettings replaces the settings.
func (s *Store) SaveSettings(ctx context.Context, settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Settings = settings
	s.persistLocked(ctx)
}

// ResetAll clears action items and processed markers. Settings are
// preserved.
func (s *Store) ResetAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ActionItems = make(map[string]*ActionItem)
	s.state.Processed = make(map[string]Marker)
	s.persistLocked(ctx)

	s.logger.Info(ctx, "store reset, settings preserved")
}
