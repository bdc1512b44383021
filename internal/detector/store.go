package detector

import (
	"sync"
	"time"

	"github.com/vnmetals/silverwatch/internal/models"
)

// DefaultHistoryCap bounds the in-memory snapshot history.
const DefaultHistoryCap = 100

// Store holds the last adopted snapshot and a bounded, ordered history
// of past snapshots (most recent last). The history feeds status and
// history displays only; change detection compares against the single
// last snapshot. The polling loop is the only writer, but the command
// shell reads concurrently, so access is guarded.
type Store struct {
	mu      sync.RWMutex
	last    *models.Snapshot
	history []models.Snapshot
	cap     int
}

// NewStore creates a store with the given history cap.
// A cap below 1 falls back to DefaultHistoryCap.
func NewStore(historyCap int) *Store {
	if historyCap < 1 {
		historyCap = DefaultHistoryCap
	}
	return &Store{cap: historyCap}
}

// Last returns the last adopted snapshot and whether one exists.
func (s *Store) Last() (models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return models.Snapshot{}, false
	}
	return *s.last, true
}

// Adopt replaces the last snapshot and appends to the history,
// evicting the oldest entry once the cap is exceeded.
func (s *Store) Adopt(snapshot models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot
	s.last = &snap
	s.appendLocked(snapshot)
}

// Seed appends historical snapshots without touching the last snapshot,
// so a restart can warm the history display while the detector still
// starts from an absent baseline.
func (s *Store) Seed(snapshots []models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snapshots {
		s.appendLocked(snap)
	}
}

func (s *Store) appendLocked(snapshot models.Snapshot) {
	s.history = append(s.history, snapshot)
	if len(s.history) > s.cap {
		s.history = s.history[len(s.history)-s.cap:]
	}
}

// HistoryWithin returns the ordered subsequence of history captured
// within d of now.
func (s *Store) HistoryWithin(d time.Duration) []models.Snapshot {
	cutoff := time.Now().Add(-d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recent []models.Snapshot
	for _, snap := range s.history {
		if !snap.CapturedAt.Before(cutoff) {
			recent = append(recent, snap)
		}
	}
	return recent
}

// HistoryLen returns the number of retained snapshots.
func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}
