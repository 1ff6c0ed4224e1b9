package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type ReportSender interface {
	Send(ctx context.Context, days int) error
}

// Scheduler sends the report once a day at a fixed wall-clock time.
type Scheduler struct {
	sender ReportSender
	hour   int
	minute int
	days   int
	logger *slog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("parse report time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func NewScheduler(sender ReportSender, hour, minute, days int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sender: sender,
		hour:   hour,
		minute: minute,
		days:   days,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// Next returns the first fire time strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, s.minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is cancelled. A failed report is logged and retried the next day.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.now()
		next := s.Next(now)
		s.logger.Info("next analytics report scheduled", "at", next)

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(now)):
		}

		if err := s.sender.Send(ctx, s.days); err != nil {
			s.logger.Error("failed to send analytics report", "error", err)
		}
	}
}
