package notify

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"

	"challenge-chat/internal/feed"
	"challenge-chat/internal/models"
	"challenge-chat/internal/observability"
)

// DefaultReminderCron fires every morning at nine.
const DefaultReminderCron = "0 9 * * *"

// ReminderSource lists who needs a nudge.
type ReminderSource interface {
	ListActiveChallenges(ctx context.Context, now time.Time) ([]models.Challenge, error)
	ListMembersWithoutCheckIn(ctx context.Context, challengeID int64, from, to time.Time) ([]models.ReminderTarget, error)
}

// Scheduler sends check-in reminders on each challenge's cron schedule.
type Scheduler struct {
	source   ReminderSource
	notifier *Notifier
	bucketer feed.Bucketer
	interval time.Duration
	now      func() time.Time
}

// NewScheduler builds a Scheduler evaluating schedules in loc every interval.
func NewScheduler(source ReminderSource, notifier *Notifier, loc *time.Location, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		source:   source,
		notifier: notifier,
		bucketer: feed.NewBucketer(loc),
		interval: interval,
		now:      time.Now,
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("reminders scheduler started interval=%s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("reminders scheduler stopping")
			return nil
		case <-ticker.C:
			sent, err := s.Tick(ctx, s.now())
			if err != nil {
				observability.IncReminderTick("error")
				log.Printf("reminders tick failed: %v", err)
				continue
			}
			observability.IncReminderTick("ok")
			if sent > 0 {
				log.Printf("reminders sent count=%d", sent)
			}
		}
	}
}

// Tick sends reminders for every challenge whose schedule is due at now and
// returns how many were queued.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	challenges, err := s.source.ListActiveChallenges(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list challenges: %w", err)
	}

	local := now.In(s.bucketer.Location).Truncate(time.Minute)
	from := s.bucketer.StartOfDay(now)
	to := from.AddDate(0, 0, 1)

	gron := gronx.New()
	sent := 0
	for _, c := range challenges {
		expr := c.ReminderCron
		if expr == "" {
			expr = DefaultReminderCron
		}
		due, err := gron.IsDue(expr, local)
		if err != nil {
			log.Printf("reminders invalid cron challenge_id=%d cron=%q err=%v", c.ID, expr, err)
			continue
		}
		if !due {
			continue
		}

		targets, err := s.source.ListMembersWithoutCheckIn(ctx, c.ID, from, to)
		if err != nil {
			return sent, fmt.Errorf("list members challenge_id=%d: %w", c.ID, err)
		}
		for _, target := range targets {
			note := Notification{
				Kind:        KindReminder,
				RecipientID: target.UserID,
				ChallengeID: target.ChallengeID,
				Subject:     "Time to check in",
				Text:        ReminderText(target, now, s.bucketer),
			}
			if err := s.notifier.Send(ctx, note); err != nil {
				return sent, err
			}
			sent++
		}
	}
	return sent, nil
}

// ReminderText renders e.g. "Plank month: Day 3 of 30, time to check in".
func ReminderText(target models.ReminderTarget, now time.Time, b feed.Bucketer) string {
	if target.StartedOn.IsZero() {
		return fmt.Sprintf("%s: time to check in", target.ChallengeTitle)
	}
	// started_on is a calendar date; read it in the viewer's zone.
	start := time.Date(target.StartedOn.Year(), target.StartedOn.Month(), target.StartedOn.Day(), 0, 0, 0, 0, b.StartOfDay(now).Location())
	day := int(math.Round(b.StartOfDay(now).Sub(start).Hours()/24)) + 1
	if day < 1 {
		return fmt.Sprintf("%s starts %s", target.ChallengeTitle, humanize.RelTime(start, now, "ago", "from now"))
	}
	if target.NumDays > 0 {
		return fmt.Sprintf("%s: Day %d of %d, time to check in", target.ChallengeTitle, day, target.NumDays)
	}
	return fmt.Sprintf("%s: Day %d, time to check in", target.ChallengeTitle, day)
}
