package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all store interactions needed by the scheduling core.
// The core holds no mutable state of its own; everything lives behind this
// interface so the concurrency guarantees can ride on real transactions.
type Repository interface {
	GetCabinetByID(ctx context.Context, id uuid.UUID) (*Cabinet, error)
	ListReminderCabinets(ctx context.Context) ([]Cabinet, error)

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListInWindow returns the cabinet's non-cancelled appointments whose
	// scheduled_at falls in [from, to). Used by the conflict detector and
	// the reminder sweep.
	ListInWindow(ctx context.Context, cabinetID uuid.UUID, from, to time.Time) ([]Appointment, error)

	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// UpdateSchedule atomically rewrites time, duration and practitioner in
	// one statement. The store's exclusion constraint turns a racing
	// overlap into a SlotConflictError.
	UpdateSchedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time, durationMinutes int, practitionerID *uuid.UUID) (*Appointment, error)

	// UpdateStatus is a compare-and-swap: the row moves from -> to only if
	// it still holds from. A missed swap surfaces as ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
}
