package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/domain"
)

// Promoter runs one automatic promotion cycle, usually *service.PromotionService.
type Promoter interface {
	PromoteNext(ctx context.Context) (*domain.Entry, error)
}

// TimeOfDay is a wall-clock minute, e.g. 23:00.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// on returns the start of the configured minute on the calendar day of ref in loc.
func (t TimeOfDay) on(ref time.Time, loc *time.Location) time.Time {
	local := ref.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// NextFire returns when the scheduler should next trigger at or after now.
// Inside the configured minute it returns now itself, so a process started
// during that minute still fires that day.
func NextFire(now time.Time, at TimeOfDay, loc *time.Location) time.Time {
	start := at.on(now, loc)
	switch {
	case now.Before(start):
		return start
	case now.Before(start.Add(time.Minute)):
		return now
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, at.Hour, at.Minute, 0, 0, loc)
}

// DailyScheduler triggers one promotion cycle per calendar day at a fixed
// local time. It sleeps on a timer until the next fire instant instead of
// polling, and a FireGuard keeps it to at most one trigger per day.
type DailyScheduler struct {
	promoter Promoter
	at       TimeOfDay
	loc      *time.Location
	guard    FireGuard
	logger   *zap.Logger
	now      func() time.Time
}

func NewDailyScheduler(
	promoter Promoter,
	at TimeOfDay,
	loc *time.Location,
	guard FireGuard,
	logger *zap.Logger,
) *DailyScheduler {
	if guard == nil {
		guard = NewMemoryFireGuard()
	}
	return &DailyScheduler{
		promoter: promoter,
		at:       at,
		loc:      loc,
		guard:    guard,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *DailyScheduler) WithClock(now func() time.Time) *DailyScheduler {
	s.now = now
	return s
}

// Run blocks until ctx is cancelled, firing once per day at the configured time.
func (s *DailyScheduler) Run(ctx context.Context) {
	s.logger.Info("promotion scheduler started",
		zap.Stringer("at", s.at), zap.String("tz", s.loc.String()))

	from := s.now()
	for {
		next := NextFire(from, s.at, s.loc)
		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		s.logger.Debug("next promotion scheduled", zap.Time("at", next), zap.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("promotion scheduler stopping")
			return
		case <-timer.C:
		}

		s.fire(ctx, next)

		from = s.at.on(next, s.loc).Add(time.Minute)
		if now := s.now(); now.After(from) {
			from = now
		}
	}
}

func (s *DailyScheduler) fire(ctx context.Context, at time.Time) {
	day := at.In(s.loc).Format("2006-01-02")
	log := s.logger.With(zap.String("day", day))

	ok, err := s.guard.Acquire(ctx, day)
	if err != nil {
		log.Error("fire guard unavailable, skipping trigger", zap.Error(err))
		return
	}
	if !ok {
		log.Info("promotion already triggered today")
		return
	}

	e, err := s.promoter.PromoteNext(ctx)
	switch {
	case errors.Is(err, domain.ErrNothingToPromote):
		log.Info("no unpromoted entries")
	case err != nil:
		log.Error("scheduled promotion failed", zap.Error(err))
	default:
		log.Info("scheduled promotion done", zap.String("title", e.Title))
	}
}
