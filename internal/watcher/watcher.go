// Package watcher funnels every processing trigger into the processor:
// cache file-change events, a fixed-interval poll, manual triggers, and
// a startup catch-up pass.
//
// The file watch is best-effort. If the filesystem watcher cannot be
// set up (missing directory, permissions), the watcher degrades to
// poll-only operation instead of failing: the interval timer is the
// designed fallback for missed file events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/KarlRaf/granola-linear-integration/internal/logging"
	"github.com/KarlRaf/granola-linear-integration/internal/processor"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Runner executes one processing pass. *processor.Processor is the
// production implementation.
type Runner interface {
	Run(ctx context.Context) processor.Result
}

// Config configures the watcher.
type Config struct {
	// CachePath is the cache file to watch.
	CachePath string

	// PollInterval is the fallback poll period.
	PollInterval time.Duration

	// Debounce coalesces bursts of file events into one run. Note-taking
	// apps rewrite their cache repeatedly while a meeting is live.
	Debounce time.Duration
}

// Watcher owns the trigger sources for the processing pipeline.
type Watcher struct {
	config  Config
	runner  Runner
	logger  *logging.Logger
	watcher *fsnotify.Watcher // nil when running poll-only
	trigger chan struct{}
	stop    chan struct{}
}

// New creates a watcher. Start must be called to begin triggering.
func New(cfg Config, runner Runner, logger *logging.Logger) (*Watcher, error) {
	if cfg.CachePath == "" {
		return nil, errors.New("cache path is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Watcher{
		config:  cfg,
		runner:  runner,
		logger:  logger.Named("watcher"),
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}, nil
}

// Start begins watching and runs the startup catch-up pass.
//
// The trigger loop runs in a background goroutine until Stop is called
// or ctx is cancelled. Only invalid construction is an error; a failed
// filesystem watch degrades to poll-only.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.setupFileWatch(ctx); err != nil {
		// Poll remains the detection path; deliberate redundancy for
		// missed or unavailable file events.
		w.logger.Warn(ctx, "file watch unavailable, falling back to polling",
			zap.String("path", w.config.CachePath),
			zap.Error(err))
	}

	go w.loop(ctx)

	return nil
}

// setupFileWatch watches the cache file's directory. Editors and apps
// replace files via rename, which drops watches on the file itself, so
// the directory is watched and events are filtered by name.
func (w *Watcher) setupFileWatch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	dir := filepath.Dir(w.config.CachePath)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w.watcher = fsw
	w.logger.Debug(ctx, "watching cache directory", zap.String("dir", dir))
	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
		return
	default:
		close(w.stop)
		if w.watcher != nil {
			_ = w.watcher.Close() // Best-effort cleanup, ignore error
		}
	}
}

// Trigger requests a processing pass. Non-blocking: if a trigger is
// already pending it is coalesced.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// loop multiplexes all trigger sources into runner.Run.
func (w *Watcher) loop(ctx context.Context) {
	// Startup catch-up: meetings recorded while the daemon was down
	w.run(ctx, "startup")

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errs chan error
	if w.watcher != nil {
		events = w.watcher.Events
		errs = w.watcher.Errors
	}

	// debounceC is armed by file events and fires once per burst
	var debounceC <-chan time.Time

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if w.isCacheEvent(event) {
				debounceC = time.After(w.debounce())
			}

		case <-debounceC:
			debounceC = nil
			w.run(ctx, "file-change")

		case <-ticker.C:
			w.run(ctx, "poll")

		case <-w.trigger:
			w.run(ctx, "manual")

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn(ctx, "file watch error", zap.Error(err))
		}
	}
}

// isCacheEvent reports whether the event concerns the cache file.
func (w *Watcher) isCacheEvent(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != filepath.Base(w.config.CachePath) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) debounce() time.Duration {
	if w.config.Debounce > 0 {
		return w.config.Debounce
	}
	return 2 * time.Second
}

// run invokes one pass and logs its outcome against the trigger source.
func (w *Watcher) run(ctx context.Context, source string) {
	result := w.runner.Run(ctx)
	if result.Skipped {
		w.logger.Debug(ctx, "trigger skipped, pass already in flight",
			zap.String("trigger", source))
		return
	}
	w.logger.Debug(ctx, "trigger completed",
		zap.String("trigger", source),
		zap.Int("processed", result.ProcessedCount))
}
