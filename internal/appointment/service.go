package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/cabinet-scheduling/internal/access"
	"github.com/clinicore/cabinet-scheduling/internal/config"
	"github.com/clinicore/cabinet-scheduling/internal/notify"
	"github.com/clinicore/cabinet-scheduling/internal/observability/metrics"
	redisclient "github.com/clinicore/cabinet-scheduling/internal/redis"
	"github.com/clinicore/cabinet-scheduling/pkg/logging"
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	guard    *access.Guard
	detector *Detector
	notifier notify.Dispatcher
	cfg      config.Config
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, guard *access.Guard, notifier notify.Dispatcher, cfg config.Config, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		guard:    guard,
		detector: NewDetector(repo),
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Component("appointment"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateInput struct {
	CabinetID       *uuid.UUID // nil resolves to the actor's single assignment
	PatientID       uuid.UUID
	PractitionerID  *uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Title           string
	ServiceType     string
	Notes           string
	PriceCents      *int64
}

// Create books a new appointment. Guard first, then conflict check and write
// under the practitioner's scheduling lock so concurrent requests for the
// same calendar cannot both commit overlapping windows.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (*Appointment, error) {
	cabinetID, err := s.guard.ResolveEffectiveCabinet(ctx, actor, in.CabinetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, cabinetID, access.OpCreate); err != nil {
		return nil, err
	}
	if err := validateWindow(in.ScheduledAt, in.DurationMinutes); err != nil {
		return nil, err
	}
	if in.PriceCents != nil && *in.PriceCents < 0 {
		return nil, fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}

	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient.CabinetID != cabinetID {
		return nil, ErrTenantMismatch
	}
	if in.PractitionerID != nil {
		practitioner, err := s.repo.GetPractitionerByID(ctx, *in.PractitionerID)
		if err != nil {
			return nil, fmt.Errorf("load practitioner: %w", err)
		}
		if practitioner.CabinetID != cabinetID {
			return nil, ErrTenantMismatch
		}
	}

	now := s.now()
	appt := &Appointment{
		ID:              uuid.New(),
		CabinetID:       cabinetID,
		PatientID:       in.PatientID,
		PractitionerID:  in.PractitionerID,
		ScheduledAt:     in.ScheduledAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		Status:          StatusScheduled,
		Title:           in.Title,
		ServiceType:     in.ServiceType,
		Notes:           in.Notes,
		PriceCents:      in.PriceCents,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var created *Appointment
	commit := func(lockCtx context.Context) error {
		res, err := s.detector.Check(lockCtx, Candidate{
			CabinetID:       cabinetID,
			PractitionerID:  in.PractitionerID,
			ScheduledAt:     appt.ScheduledAt,
			DurationMinutes: appt.DurationMinutes,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
		}
		if !res.Available {
			return &SlotConflictError{ConflictingAppointmentID: res.ConflictingAppointmentID}
		}

		created, err = s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	}

	if in.PractitionerID == nil {
		// No practitioner means no conflict surface, so no lock either.
		err = commit(ctx)
	} else {
		err = s.locker.WithLock(ctx, redisclient.ScheduleScope(cabinetID, *in.PractitionerID), commit)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = ErrSlotBusy
		}
	}
	if err != nil {
		s.reportBookingFailure(ctx, cabinetID, nil, err)
		return nil, err
	}

	s.publish(ctx, notify.Message{
		Type:          notify.TypeStatusChange,
		Category:      "appointment",
		Title:         "Appointment booked",
		Body:          fmt.Sprintf("Appointment scheduled for %s", created.ScheduledAt.Format(time.RFC3339)),
		Priority:      notify.PriorityLow,
		CabinetID:     created.CabinetID,
		AppointmentID: &created.ID,
	})
	return created, nil
}

// ScheduleChange rewrites the appointment's window. Nil fields keep their
// current value; ClearPractitioner unassigns.
type ScheduleChange struct {
	ScheduledAt       *time.Time
	DurationMinutes   *int
	PractitionerID    *uuid.UUID
	ClearPractitioner bool
}

// Reschedule moves an appointment to a new window. The conflict check runs
// against the new window with the appointment's own row excluded, and the
// write is a single atomic statement: on conflict the prior schedule stands.
func (s *Service) Reschedule(ctx context.Context, actor access.Actor, id uuid.UUID, change ScheduleChange) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := s.authorize(ctx, actor, appt.CabinetID, access.OpUpdate); err != nil {
		return nil, err
	}
	if appt.Status.IsTerminal() {
		return nil, ErrAppointmentTerminal
	}

	newStart := appt.ScheduledAt
	if change.ScheduledAt != nil {
		newStart = change.ScheduledAt.UTC()
	}
	newDuration := appt.DurationMinutes
	if change.DurationMinutes != nil {
		newDuration = *change.DurationMinutes
	}
	newPractitioner := appt.PractitionerID
	if change.ClearPractitioner {
		newPractitioner = nil
	} else if change.PractitionerID != nil {
		newPractitioner = change.PractitionerID
	}

	if err := validateWindow(newStart, newDuration); err != nil {
		return nil, err
	}
	if newPractitioner != nil {
		practitioner, err := s.repo.GetPractitionerByID(ctx, *newPractitioner)
		if err != nil {
			return nil, fmt.Errorf("load practitioner: %w", err)
		}
		if practitioner.CabinetID != appt.CabinetID {
			return nil, ErrTenantMismatch
		}
	}

	oldStart := appt.ScheduledAt
	var updated *Appointment
	commit := func(lockCtx context.Context) error {
		res, err := s.detector.Check(lockCtx, Candidate{
			CabinetID:       appt.CabinetID,
			PractitionerID:  newPractitioner,
			ScheduledAt:     newStart,
			DurationMinutes: newDuration,
			ExcludeID:       appt.ID,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
		}
		if !res.Available {
			return &SlotConflictError{ConflictingAppointmentID: res.ConflictingAppointmentID}
		}

		updated, err = s.repo.UpdateSchedule(lockCtx, appt.ID, newStart, newDuration, newPractitioner)
		if err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		return nil
	}

	if newPractitioner == nil {
		err = commit(ctx)
	} else {
		err = s.locker.WithLock(ctx, redisclient.ScheduleScope(appt.CabinetID, *newPractitioner), commit)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = ErrSlotBusy
		}
	}
	if err != nil {
		s.reportBookingFailure(ctx, appt.CabinetID, &appt.ID, err)
		return nil, err
	}

	s.publish(ctx, notify.Message{
		Type:          notify.TypeReschedule,
		Category:      "appointment",
		Title:         "Appointment rescheduled",
		Body:          fmt.Sprintf("Moved from %s to %s", oldStart.Format(time.RFC3339), updated.ScheduledAt.Format(time.RFC3339)),
		Priority:      notify.PriorityMedium,
		CabinetID:     updated.CabinetID,
		AppointmentID: &updated.ID,
	})
	return updated, nil
}

// Transition applies a manual status move. Completion additionally requires
// the caller's explicit confirmation flag.
func (s *Service) Transition(ctx context.Context, actor access.Actor, id uuid.UUID, to Status, confirmed bool) (*Appointment, error) {
	if !to.valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := s.authorize(ctx, actor, appt.CabinetID, access.OpUpdate); err != nil {
		return nil, err
	}
	if err := ValidateTransition(appt.Status, to, TriggerManual); err != nil {
		return nil, err
	}
	if to == StatusCompleted && !confirmed {
		return nil, ErrCompletionNotConfirmed
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The CAS missed: someone moved the row first. Report against
			// the fresh status so the caller sees why.
			if fresh, freshErr := s.repo.GetAppointmentByID(ctx, id); freshErr == nil {
				return nil, &InvalidTransitionError{From: fresh.Status, To: to}
			}
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.metrics.ObserveTransition(string(appt.Status), string(to), string(TriggerManual))

	priority := notify.PriorityMedium
	if to == StatusConfirmed {
		priority = notify.PriorityLow
	}
	s.publish(ctx, notify.Message{
		Type:          notify.TypeStatusChange,
		Category:      "appointment",
		Title:         "Appointment " + string(to),
		Body:          fmt.Sprintf("Status changed %s -> %s", appt.Status, to),
		Priority:      priority,
		CabinetID:     updated.CabinetID,
		AppointmentID: &updated.ID,
	})
	return updated, nil
}

// ApplyDueTimedTransition applies the time-based transition the appointment
// is due for, if any. Called only by the reminder sweep; runs as the system
// actor, which bypasses manual authorization but still leaves an audit
// entry. A missed CAS means another sweep won the race and is not an error,
// which keeps the status-change notification exactly-once.
func (s *Service) ApplyDueTimedTransition(ctx context.Context, a *Appointment, now time.Time) (*Appointment, bool, error) {
	tt, due := DueTimedTransition(a, now, s.cfg.NoShowGrace)
	if !due {
		return nil, false, nil
	}

	if err := s.guard.Authorize(ctx, access.System, a.CabinetID, access.ResourceAppointment, access.OpUpdate); err != nil {
		return nil, false, err
	}

	updated, err := s.repo.UpdateStatus(ctx, a.ID, tt.From, tt.To)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("apply timed transition: %w", err)
	}

	s.metrics.ObserveTransition(string(tt.From), string(tt.To), string(TriggerTimed))
	s.publish(ctx, notify.Message{
		Type:          notify.TypeStatusChange,
		Category:      "appointment",
		Title:         "Appointment " + string(tt.To),
		Body:          fmt.Sprintf("Status changed %s -> %s", tt.From, tt.To),
		Priority:      notify.PriorityMedium,
		CabinetID:     updated.CabinetID,
		AppointmentID: &updated.ID,
	})
	return updated, true, nil
}

// Get loads one appointment after a tenant-scoped read check.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := s.authorize(ctx, actor, appt.CabinetID, access.OpRead); err != nil {
		return nil, err
	}
	return appt, nil
}

// List returns appointments for the actor's resolved cabinet scope. The
// filter's tenant portion is sanitized by the guard before it reaches the
// repository; an out-of-assignment cabinet fails closed.
func (s *Service) List(ctx context.Context, actor access.Actor, filter ListFilter) ([]Appointment, error) {
	scope, err := s.guard.SanitizeScope(ctx, actor, filter.Scope)
	if err != nil {
		s.observeDenial(err)
		return nil, err
	}
	filter.Scope = scope

	for _, id := range scopeCabinets(scope) {
		if err := s.authorize(ctx, actor, id, access.OpRead); err != nil {
			return nil, err
		}
	}

	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	appts, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) authorize(ctx context.Context, actor access.Actor, cabinetID uuid.UUID, operation string) error {
	err := s.guard.Authorize(ctx, actor, cabinetID, access.ResourceAppointment, operation)
	s.observeDenial(err)
	return err
}

func (s *Service) observeDenial(err error) {
	var denied *access.DeniedError
	if errors.As(err, &denied) {
		s.metrics.ObserveDenial(access.ResourceAppointment)
	}
}

// reportBookingFailure emits the urgent conflict notification for rejected
// bookings and reschedules. Lock contention and storage failures are counted
// but not broadcast to the cabinet topic.
func (s *Service) reportBookingFailure(ctx context.Context, cabinetID uuid.UUID, appointmentID *uuid.UUID, err error) {
	var conflict *SlotConflictError
	switch {
	case errors.As(err, &conflict):
		s.metrics.ObserveConflict("overlap")
		s.publish(ctx, notify.Message{
			Type:          notify.TypeConflict,
			Category:      "appointment",
			Title:         "Booking conflict",
			Body:          fmt.Sprintf("Requested window overlaps appointment %s", conflict.ConflictingAppointmentID),
			Priority:      notify.PriorityUrgent,
			CabinetID:     cabinetID,
			AppointmentID: appointmentID,
		})
	case errors.Is(err, ErrSlotBusy):
		s.metrics.ObserveConflict("lock_contention")
	case errors.Is(err, ErrPersistenceUnavailable):
		s.metrics.ObserveConflict("persistence")
	}
}

func (s *Service) publish(ctx context.Context, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, msg); err != nil {
		s.logger.Error("notification publish failed", "error", err, "type", msg.Type, "cabinet_id", msg.CabinetID)
	}
}

func validateWindow(start time.Time, durationMinutes int) error {
	if start.IsZero() {
		return fmt.Errorf("%w: scheduled_at is required", ErrInvalidInput)
	}
	if durationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	return nil
}

func scopeCabinets(scope access.CabinetScope) []uuid.UUID {
	if scope.CabinetID != nil {
		return []uuid.UUID{*scope.CabinetID}
	}
	return scope.CabinetIDs
}
