package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/cabinet-scheduling/internal/appointment"
	"github.com/clinicore/cabinet-scheduling/internal/config"
	"github.com/clinicore/cabinet-scheduling/internal/notify"
	"github.com/clinicore/cabinet-scheduling/internal/observability/metrics"
	redisclient "github.com/clinicore/cabinet-scheduling/internal/redis"
	"github.com/clinicore/cabinet-scheduling/pkg/logging"
)

// overdueLookback bounds how far back one cabinet scan reaches for rows
// still awaiting a timed transition after downtime.
const overdueLookback = 24 * time.Hour

// Scheduler runs the recurring tenant-scoped sweep: it applies due
// time-based lifecycle transitions and emits threshold reminders. It is the
// only caller of timed transitions.
type Scheduler struct {
	repo     appointment.Repository
	svc      *appointment.Service
	locker   redisclient.Locker
	dedup    DedupStore
	notifier notify.Dispatcher
	cfg      config.Config
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

func NewScheduler(repo appointment.Repository, svc *appointment.Service, locker redisclient.Locker, dedup DedupStore, notifier notify.Dispatcher, cfg config.Config, m *metrics.SchedulingMetrics, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		repo:     repo,
		svc:      svc,
		locker:   locker,
		dedup:    dedup,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Component("reminder"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep scans every cabinet with reminders enabled. Cabinets are processed
// one at a time; on shutdown the current cabinet finishes its batch and the
// rest are picked up by the next run.
func (s *Scheduler) Sweep(ctx context.Context) error {
	started := s.now()

	cabinets, err := s.repo.ListReminderCabinets(ctx)
	if err != nil {
		return fmt.Errorf("list cabinets: %w", err)
	}

	for _, cab := range cabinets {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cab := cab
		err := s.locker.WithLock(ctx, redisclient.SweepScope(cab.ID), func(lockCtx context.Context) error {
			return s.sweepCabinet(lockCtx, cab)
		})
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			// Another sweep owns this cabinet right now.
			continue
		case err != nil:
			s.logger.Error("cabinet sweep failed", "error", err, "cabinet_id", cab.ID)
		}
	}

	s.metrics.ObserveSweepDuration(time.Since(started).Seconds())
	return nil
}

func (s *Scheduler) sweepCabinet(ctx context.Context, cab appointment.Cabinet) error {
	now := s.now()
	from := now.Add(-overdueLookback)
	to := now.Add(s.horizon())

	appts, err := s.repo.ListInWindow(ctx, cab.ID, from, to)
	if err != nil {
		return fmt.Errorf("load window: %w", err)
	}

	for i := range appts {
		appt := &appts[i]

		if updated, applied, err := s.svc.ApplyDueTimedTransition(ctx, appt, now); err != nil {
			s.logger.Error("timed transition failed", "error", err, "appointment_id", appt.ID)
			continue
		} else if applied {
			appt = updated
		}

		s.emitReminders(ctx, appt, now)
	}
	return nil
}

// emitReminders emits one high-priority reminder per crossed threshold,
// deduplicated on the (appointment, threshold) key.
func (s *Scheduler) emitReminders(ctx context.Context, appt *appointment.Appointment, now time.Time) {
	if appt.Status != appointment.StatusScheduled && appt.Status != appointment.StatusConfirmed {
		return
	}
	timeToStart := appt.ScheduledAt.Sub(now)
	if timeToStart <= 0 {
		return
	}

	for _, thresholdMinutes := range s.cfg.ReminderThresholds {
		if timeToStart > time.Duration(thresholdMinutes)*time.Minute {
			continue
		}

		key := notify.ReminderDedupKey(appt.ID, thresholdMinutes)
		ttl := timeToStart + overdueLookback
		first, err := s.dedup.Once(ctx, key, ttl)
		if err != nil {
			// Fail toward silence: a retry next tick is better than a
			// duplicate reminder now.
			s.logger.Error("dedup claim failed", "error", err, "key", key)
			continue
		}
		if !first {
			continue
		}

		appointmentID := appt.ID
		msg := notify.Message{
			Type:          notify.TypeReminder,
			Category:      "appointment",
			Title:         fmt.Sprintf("Appointment in %d minutes", thresholdMinutes),
			Body:          fmt.Sprintf("Starts at %s", appt.ScheduledAt.Format(time.RFC3339)),
			Priority:      notify.PriorityHigh,
			CabinetID:     appt.CabinetID,
			AppointmentID: &appointmentID,
		}
		if err := s.notifier.Publish(ctx, msg); err != nil {
			s.logger.Error("reminder publish failed", "error", err, "appointment_id", appt.ID)
			continue
		}
		s.metrics.ObserveReminder()
	}
}

// horizon is how far ahead the window fetch must reach so that the largest
// threshold crossing is never missed between ticks.
func (s *Scheduler) horizon() time.Duration {
	if len(s.cfg.ReminderThresholds) == 0 {
		return time.Hour
	}
	largest := time.Duration(s.cfg.ReminderThresholds[0]) * time.Minute
	return largest + s.cfg.SweepInterval
}
