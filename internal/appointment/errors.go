package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrCabinetNotFound      = errors.New("cabinet not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")

	// ErrSlotBusy means the scheduling lock for the practitioner's calendar
	// is currently held by another request. Safe to retry.
	ErrSlotBusy = errors.New("slot is currently being booked, please retry")

	// ErrTenantMismatch means a write tried to span cabinets, e.g. an
	// appointment referencing a patient or practitioner from another cabinet.
	ErrTenantMismatch = errors.New("referenced record belongs to a different cabinet")

	// ErrAppointmentTerminal means the appointment is in a terminal status
	// and can no longer be rescheduled.
	ErrAppointmentTerminal = errors.New("appointment is in a terminal status")

	// ErrCompletionNotConfirmed means an InProgress -> Completed move was
	// requested without the explicit confirmation flag.
	ErrCompletionNotConfirmed = errors.New("completion requires explicit confirmation")

	ErrInvalidInput = errors.New("invalid input")

	// ErrPersistenceUnavailable wraps transient storage failures. Callers
	// may retry with backoff; this core never retries on its own.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// SlotConflictError reports that a candidate window overlaps an existing
// appointment for the same practitioner. Carries the blocking row so the
// caller can pick another time.
type SlotConflictError struct {
	ConflictingAppointmentID uuid.UUID
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot conflicts with appointment %s", e.ConflictingAppointmentID)
}

// InvalidTransitionError reports a status move outside the lifecycle table.
// The stored status is left unchanged.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
