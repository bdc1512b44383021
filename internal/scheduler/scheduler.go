// Package scheduler runs the polling loop: fetch a snapshot, detect
// changes against the last known one, adopt it, and hand detected
// changes to the dispatcher, backing off while the source is down.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/vnmetals/silverwatch/internal/detector"
	"github.com/vnmetals/silverwatch/internal/logger"
	"github.com/vnmetals/silverwatch/internal/models"
)

// Fetcher produces a price snapshot. An error or an empty snapshot
// both count as a failed poll.
type Fetcher interface {
	Fetch(ctx context.Context) (models.Snapshot, error)
}

// Notifier delivers a detected change batch.
type Notifier interface {
	Dispatch(changes []models.ChangeRecord) models.DeliveryReport
}

// Alerter carries system-health messages to the group destination.
type Alerter interface {
	SendHealthAlert(failures int, lastSuccess time.Time) error
	SendRecovery(failures int) error
}

// SnapshotWriter persists adopted snapshots.
type SnapshotWriter interface {
	AppendSnapshot(snapshot models.Snapshot) error
}

// Config holds polling behavior configuration.
type Config struct {
	Interval         time.Duration
	FailureThreshold int
	BackoffStep      time.Duration
	BackoffMax       time.Duration
}

// State is the scheduler-owned poll state, readable by the command
// shell for status display.
type State struct {
	ConsecutiveFailures int
	LastSuccessAt       time.Time
	Alerted             bool
}

// Scheduler owns the poll loop. It is the only writer of the poll
// state and the only caller of Detect, Adopt, and Dispatch.
type Scheduler struct {
	fetcher   Fetcher
	store     *detector.Store
	notifier  Notifier
	alerter   Alerter
	persist   SnapshotWriter
	predicate detector.Predicate
	cfg       Config

	mu    sync.Mutex // guards state; the command shell reads concurrently
	state State
}

// New creates a scheduler. Zero config fields fall back to defaults:
// 1m interval, failure threshold 3, 30s backoff step capped at 5m.
func New(fetcher Fetcher, store *detector.Store, notifier Notifier, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = 30 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Minute
	}
	return &Scheduler{
		fetcher:   fetcher,
		store:     store,
		notifier:  notifier,
		predicate: detector.AnyChange,
		cfg:       cfg,
	}
}

// SetAlerter enables health and recovery notices.
func (s *Scheduler) SetAlerter(a Alerter) { s.alerter = a }

// SetSnapshotWriter enables snapshot persistence on adoption.
func (s *Scheduler) SetSnapshotWriter(w SnapshotWriter) { s.persist = w }

// SetPredicate swaps the change notification policy.
func (s *Scheduler) SetPredicate(p detector.Predicate) {
	if p != nil {
		s.predicate = p
	}
}

// State returns a copy of the current poll state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes the poll loop until ctx is cancelled. The first cycle
// runs immediately; subsequent cycles wait for the poll interval plus
// any failure backoff.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("Polling scheduler started (interval: %v, failure_threshold: %d)",
		s.cfg.Interval, s.cfg.FailureThreshold)
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Polling scheduler stopped")
			return
		case <-time.After(s.nextDelay()):
			s.runCycle(ctx)
		}
	}
}

// nextDelay is the poll interval plus linear failure backoff, capped.
func (s *Scheduler) nextDelay() time.Duration {
	st := s.State()
	if st.ConsecutiveFailures == 0 {
		return s.cfg.Interval
	}
	backoff := time.Duration(st.ConsecutiveFailures) * s.cfg.BackoffStep
	if backoff > s.cfg.BackoffMax {
		backoff = s.cfg.BackoffMax
	}
	return s.cfg.Interval + backoff
}

func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()
	snapshot, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.recordFailure(err)
		return
	}
	if snapshot.Empty() {
		s.recordFailure(nil)
		return
	}
	s.recordSuccess()

	previous, hadPrevious := s.store.Last()
	var changes []models.ChangeRecord
	if hadPrevious {
		changes = detector.Detect(&previous, snapshot, s.predicate)
	} else {
		logger.Info("Adopting baseline snapshot with %d product(s)", len(snapshot.Prices))
	}

	s.store.Adopt(snapshot)
	if s.persist != nil {
		if err := s.persist.AppendSnapshot(snapshot); err != nil {
			logger.Warn("Failed to persist snapshot: %v", err)
		}
	}

	if hadPrevious && len(changes) > 0 {
		logger.Info("Detected %d price change(s)", len(changes))
		s.notifier.Dispatch(changes)
	}

	logger.Debug("Poll cycle completed in %v (%d products, %d changes)",
		time.Since(start), len(snapshot.Prices), len(changes))
}

func (s *Scheduler) recordFailure(err error) {
	s.mu.Lock()
	s.state.ConsecutiveFailures++
	failures := s.state.ConsecutiveFailures
	lastSuccess := s.state.LastSuccessAt
	shouldAlert := failures >= s.cfg.FailureThreshold && !s.state.Alerted
	if shouldAlert {
		s.state.Alerted = true
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("Snapshot fetch failed (%d consecutive): %v", failures, err)
	} else {
		logger.Error("Snapshot fetch returned no records (%d consecutive)", failures)
	}

	// At most one health alert per sustained outage; the latch clears
	// on the next success.
	if shouldAlert && s.alerter != nil {
		if sendErr := s.alerter.SendHealthAlert(failures, lastSuccess); sendErr != nil {
			logger.Warn("Failed to send health alert: %v", sendErr)
		}
	}
}

func (s *Scheduler) recordSuccess() {
	s.mu.Lock()
	failures := s.state.ConsecutiveFailures
	wasAlerted := s.state.Alerted
	s.state.ConsecutiveFailures = 0
	s.state.Alerted = false
	s.state.LastSuccessAt = time.Now()
	s.mu.Unlock()

	if failures > 0 {
		logger.Info("Snapshot fetch recovered after %d failure(s)", failures)
	}
	if wasAlerted && s.alerter != nil {
		if err := s.alerter.SendRecovery(failures); err != nil {
			logger.Warn("Failed to send recovery notice: %v", err)
		}
	}
}
