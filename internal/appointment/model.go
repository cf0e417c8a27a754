package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/cabinet-scheduling/internal/access"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// IsTerminal reports whether no further transition is defined from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Cabinet struct {
	ID               uuid.UUID
	Name             string
	Timezone         string
	RemindersEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Patient struct {
	ID        uuid.UUID
	CabinetID uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Practitioner struct {
	ID        uuid.UUID
	CabinetID uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment occupies the half-open window [ScheduledAt, EndAt()) on one
// practitioner's calendar within one cabinet. PractitionerID may be nil for
// unassigned appointments, which never participate in conflict checks.
type Appointment struct {
	ID              uuid.UUID
	CabinetID       uuid.UUID
	PatientID       uuid.UUID
	PractitionerID  *uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Status          Status
	Title           string
	ServiceType     string
	Notes           string
	PriceCents      *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a *Appointment) EndAt() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// ListFilter is the resolved, typed query filter that reaches the
// repository. The cabinet portion is injected by the access guard, never by
// the caller directly.
type ListFilter struct {
	Scope          access.CabinetScope
	From           *time.Time
	To             *time.Time
	Statuses       []Status
	PractitionerID *uuid.UUID
	PatientID      *uuid.UUID
	Limit          int
	Offset         int
}
