package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 2 * time.Second

// ReconcileScheduler runs background scans on a fixed interval and, when an
// uploads directory is watched, shortly after files disappear from it.
// Scans run on the scheduler goroutine one at a time.
type ReconcileScheduler struct {
	service  *ReconcileService
	interval time.Duration
	watchDir string
	debounce time.Duration
	logger   *slog.Logger

	// scanned is signalled after each scheduled scan; tests use it.
	scanned chan ScanResult
}

// NewReconcileScheduler builds a scheduler. A zero interval disables the
// periodic scan and an empty watchDir disables the watch.
func NewReconcileScheduler(service *ReconcileService, interval time.Duration, watchDir string, debounce time.Duration, logger *slog.Logger) *ReconcileScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	return &ReconcileScheduler{
		service:  service,
		interval: interval,
		watchDir: watchDir,
		debounce: debounce,
		logger:   logger.With("component", "reconcile-scheduler"),
	}
}

// Enabled reports whether the scheduler has anything to do.
func (s *ReconcileScheduler) Enabled() bool {
	return s != nil && s.service != nil && (s.interval > 0 || s.watchDir != "")
}

// Run blocks until ctx is done.
func (s *ReconcileScheduler) Run(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		events  <-chan fsnotify.Event
		errs    <-chan error
		watcher *fsnotify.Watcher
	)
	if s.watchDir != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create uploads watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(s.watchDir); err != nil {
			return fmt.Errorf("watch %s: %w", s.watchDir, err)
		}
		events = watcher.Events
		errs = watcher.Errors
		s.logger.Info("watching uploads directory", "dir", s.watchDir, "debounce", s.debounce)
	}
	if s.interval > 0 {
		s.logger.Info("periodic scan enabled", "interval", s.interval)
	}

	debounce := time.NewTimer(s.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			s.runScan(ctx, "interval")
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.logger.Debug("uploads change", "op", event.Op.String(), "name", event.Name)
				debounce.Reset(s.debounce)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("uploads watcher error", "error", err)
		case <-debounce.C:
			s.runScan(ctx, "watch")
		}
	}
}

func (s *ReconcileScheduler) runScan(ctx context.Context, trigger string) {
	result, err := s.service.Scan(ctx)
	switch {
	case errors.Is(err, ErrScanInProgress):
		s.logger.Debug("scan skipped, another is running", "trigger", trigger)
		return
	case err != nil:
		if ctx.Err() == nil {
			s.logger.Error("scheduled scan failed", "trigger", trigger, "error", err)
		}
		return
	}
	s.logger.Debug("scheduled scan finished", "trigger", trigger, "registered", result.Registered)
	if s.scanned != nil {
		select {
		case s.scanned <- result:
		default:
		}
	}
}
