// Package scheduler provides cron-based scheduling for watch-directory
// imports.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/recordvault/recordvault/internal/config"
)

// ScanFunc is the callback invoked when a scheduled scan should run. It
// receives the watch entry and returns the number of archives imported.
type ScanFunc func(ctx context.Context, watch config.WatchEntry) (int, error)

// WatchStatus represents the scan status of a scheduled watch directory.
type WatchStatus struct {
	Dir          string    `json:"dir"`
	Case         string    `json:"case"`
	Schedule     string    `json:"schedule"`
	Running      bool      `json:"running"`
	LastRun      time.Time `json:"last_run,omitempty"`
	NextRun      time.Time `json:"next_run"`
	LastImported int       `json:"last_imported,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-based scanning of watch directories.
type Scheduler struct {
	cron     *cron.Cron
	scanFunc ScanFunc
	logger   *slog.Logger

	mu           sync.RWMutex
	jobs         map[string]cron.EntryID      // dir -> cron entry ID
	watches      map[string]config.WatchEntry // dir -> watch entry
	running      map[string]bool              // dir -> currently scanning
	lastRun      map[string]time.Time         // dir -> last successful run
	lastImported map[string]int               // dir -> archives imported by last run
	lastErr      map[string]error             // dir -> last error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running scan goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

// New creates a new Scheduler with the given scan callback.
func New(scanFunc ScanFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		scanFunc:     scanFunc,
		logger:       slog.Default(),
		jobs:         make(map[string]cron.EntryID),
		watches:      make(map[string]config.WatchEntry),
		running:      make(map[string]bool),
		lastRun:      make(map[string]time.Time),
		lastImported: make(map[string]int),
		lastErr:      make(map[string]error),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddWatch schedules scanning for a watch directory using its cron
// expression. Returns an error if the expression is invalid. Adding a
// directory that is already scheduled replaces its schedule.
func (s *Scheduler) AddWatch(watch config.WatchEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := watch.Dir
	if entryID, exists := s.jobs[dir]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, dir)
		delete(s.watches, dir)
	}

	entryID, err := s.cron.AddFunc(watch.Schedule, func() {
		s.mu.Lock()
		if s.stopped || s.running[dir] {
			s.mu.Unlock()
			return
		}
		s.running[dir] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runScan(dir)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", watch.Schedule, err)
	}

	s.jobs[dir] = entryID
	s.watches[dir] = watch
	s.logger.Info("scheduled watch",
		"dir", dir,
		"case", watch.Case,
		"schedule", watch.Schedule,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddWatchesFromConfig adds all enabled watch entries from the config.
// Returns the number of watches scheduled and any errors encountered.
func (s *Scheduler) AddWatchesFromConfig(cfg *config.Config) (int, []error) {
	var errors []error
	scheduled := 0

	for _, w := range cfg.EnabledWatches() {
		if err := s.AddWatch(w); err != nil {
			errors = append(errors, fmt.Errorf("%s: %w", w.Dir, err))
		} else {
			scheduled++
		}
	}

	return scheduled, errors
}

// RemoveWatch removes the schedule for a watch directory.
func (s *Scheduler) RemoveWatch(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[dir]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, dir)
		delete(s.watches, dir)
		s.logger.Info("removed watch", "dir", dir)
	}
}

// IsScheduled returns true if the directory has been added to the scheduler.
func (s *Scheduler) IsScheduled(dir string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[dir]
	return exists
}

// Start begins executing scheduled scans.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "watches", len(s.jobs))
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop gracefully stops the scheduler, cancels running scans, and waits
// for them to finish. Returns a context that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel() // signal running scans to stop

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// TriggerScan starts an immediate scan of every scheduled watch directory.
// Watches already mid-scan are skipped. Returns an error if the scheduler
// has been stopped or nothing is scheduled.
func (s *Scheduler) TriggerScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if len(s.jobs) == 0 {
		return fmt.Errorf("no watch directories scheduled")
	}

	for dir := range s.jobs {
		if s.running[dir] {
			continue
		}
		s.running[dir] = true
		s.wg.Add(1)
		go s.runScan(dir)
	}
	return nil
}

// runScan executes the scan for one watch directory (called by cron or
// TriggerScan). The caller must have already called wg.Add(1) and set
// running[dir] = true.
func (s *Scheduler) runScan(dir string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[dir] = false
		s.mu.Unlock()
	}()

	s.mu.RLock()
	watch, ok := s.watches[dir]
	s.mu.RUnlock()
	if !ok {
		// Removed between scheduling and execution.
		return
	}

	s.logger.Info("starting watch scan", "dir", dir, "case", watch.Case)
	start := time.Now()

	imported, err := s.scanFunc(s.ctx, watch)

	s.mu.Lock()
	if err != nil {
		s.lastErr[dir] = err
		s.logger.Error("watch scan failed",
			"dir", dir,
			"case", watch.Case,
			"imported", imported,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[dir] = time.Now()
		s.lastImported[dir] = imported
		s.lastErr[dir] = nil
		s.logger.Info("watch scan completed",
			"dir", dir,
			"case", watch.Case,
			"imported", imported,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// Status returns the current status of all scheduled watches, ordered by
// directory.
func (s *Scheduler) Status() []WatchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []WatchStatus
	for dir, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		watch := s.watches[dir]
		status := WatchStatus{
			Dir:          dir,
			Case:         watch.Case,
			Schedule:     watch.Schedule,
			Running:      s.running[dir],
			LastRun:      s.lastRun[dir],
			NextRun:      entry.Next,
			LastImported: s.lastImported[dir],
		}
		if err := s.lastErr[dir]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Dir < statuses[j].Dir })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
