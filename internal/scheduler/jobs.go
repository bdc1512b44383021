package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/vnmetals/silverwatch/internal/detector"
	"github.com/vnmetals/silverwatch/internal/logger"
	"github.com/vnmetals/silverwatch/internal/models"
	"github.com/vnmetals/silverwatch/internal/render"
)

// GroupSender delivers one message to the group destination.
type GroupSender interface {
	SendToGroup(text string) error
}

// Broadcaster fans one message out to the group and every subscriber.
type Broadcaster interface {
	Broadcast(text string) models.DeliveryReport
}

// TimeOfDay is a wall-clock time in the source timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ParseTimesOfDay parses a list of "HH:MM" strings.
func ParseTimesOfDay(ss []string) ([]TimeOfDay, error) {
	times := make([]TimeOfDay, 0, len(ss))
	for _, s := range ss {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, nil
}

// next returns the first occurrence of t strictly after now, in now's
// location.
func (t TimeOfDay) next(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

type jobKind int

const (
	jobUpdate jobKind = iota
	jobSummary
)

// JobsConfig holds the fixed-time notification schedule.
type JobsConfig struct {
	UpdateTimes []TimeOfDay
	SummaryTime TimeOfDay
	Primary     string
	Location    *time.Location
}

// Jobs runs the fixed-time notifications: the periodic group price
// update and the end-of-day summary. Jobs read the price store but
// never adopt snapshots, so they can not suppress a change alert the
// poll loop would have produced.
type Jobs struct {
	fetcher   Fetcher
	store     *detector.Store
	group     GroupSender
	broadcast Broadcaster
	cfg       JobsConfig
}

// NewJobs creates the fixed-time job runner.
func NewJobs(fetcher Fetcher, store *detector.Store, group GroupSender, broadcast Broadcaster, cfg JobsConfig) *Jobs {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Jobs{
		fetcher:   fetcher,
		store:     store,
		group:     group,
		broadcast: broadcast,
		cfg:       cfg,
	}
}

// Run executes the job schedule until ctx is cancelled.
func (j *Jobs) Run(ctx context.Context) {
	logger.Info("Job schedule started (%d periodic update(s), summary at %02d:%02d)",
		len(j.cfg.UpdateTimes), j.cfg.SummaryTime.Hour, j.cfg.SummaryTime.Minute)
	for {
		at, kind := j.nextRun(time.Now().In(j.cfg.Location))
		select {
		case <-ctx.Done():
			logger.Info("Job schedule stopped")
			return
		case <-time.After(time.Until(at)):
			switch kind {
			case jobUpdate:
				j.runUpdate(ctx)
			case jobSummary:
				j.runSummary(ctx)
			}
		}
	}
}

// nextRun picks the earliest upcoming job occurrence after now.
func (j *Jobs) nextRun(now time.Time) (time.Time, jobKind) {
	at := j.cfg.SummaryTime.next(now)
	kind := jobSummary
	for _, t := range j.cfg.UpdateTimes {
		if candidate := t.next(now); candidate.Before(at) {
			at = candidate
			kind = jobUpdate
		}
	}
	return at, kind
}

// runUpdate sends the periodic price update to the group. The previous
// adopted snapshot supplies the movement line; the fetched snapshot is
// never adopted.
func (j *Jobs) runUpdate(ctx context.Context) {
	snapshot, err := j.fetcher.Fetch(ctx)
	if err != nil || snapshot.Empty() {
		if err != nil {
			logger.Warn("Periodic update fetch failed, skipping: %v", err)
		} else {
			logger.Warn("Periodic update fetch returned no records, skipping")
		}
		return
	}

	var previous *models.Snapshot
	if last, ok := j.store.Last(); ok {
		previous = &last
	}

	if err := j.group.SendToGroup(render.ScheduledUpdate(snapshot, previous, j.cfg.Primary)); err != nil {
		logger.Error("Failed to deliver periodic update: %v", err)
		return
	}
	logger.Info("Delivered periodic price update (%d products)", len(snapshot.Prices))
}

// runSummary computes the day's high and low for the primary product
// from the retained history and broadcasts the end-of-day report to
// the group and every subscriber.
func (j *Jobs) runSummary(ctx context.Context) {
	snapshot, err := j.fetcher.Fetch(ctx)
	if err != nil || snapshot.Empty() {
		if err != nil {
			logger.Warn("Daily summary fetch failed, falling back to last snapshot: %v", err)
		}
		var ok bool
		if snapshot, ok = j.store.Last(); !ok {
			logger.Warn("Daily summary skipped: no prices observed today")
			return
		}
	}

	current, ok := snapshot.Prices[j.cfg.Primary]
	if !ok {
		logger.Warn("Daily summary skipped: %q not quoted", j.cfg.Primary)
		return
	}

	now := time.Now().In(j.cfg.Location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, j.cfg.Location)
	high, low, seen := j.dayRange(now.Sub(midnight))
	if !seen {
		high, low = current.BuyPrice, current.BuyPrice
	}
	if current.BuyPrice > high {
		high = current.BuyPrice
	}
	if current.BuyPrice < low {
		low = current.BuyPrice
	}

	report := j.broadcast.Broadcast(render.DailySummary(j.cfg.Primary, high, low, current.BuyPrice, now))
	logger.Info("Delivered daily summary: group=%t delivered=%d", report.GroupDelivered, report.Delivered)
}

// dayRange scans the retained history within d of now for the primary
// product's buy price extremes.
func (j *Jobs) dayRange(d time.Duration) (high, low int64, seen bool) {
	for _, snap := range j.store.HistoryWithin(d) {
		r, ok := snap.Prices[j.cfg.Primary]
		if !ok {
			continue
		}
		if !seen {
			high, low, seen = r.BuyPrice, r.BuyPrice, true
			continue
		}
		if r.BuyPrice > high {
			high = r.BuyPrice
		}
		if r.BuyPrice < low {
			low = r.BuyPrice
		}
	}
	return high, low, seen
}
