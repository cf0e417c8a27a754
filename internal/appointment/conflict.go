package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// conflictLookupPad bounds the window fetch around a candidate. One day on
// each side is enough because appointment durations are bounded well below
// that.
const conflictLookupPad = 24 * time.Hour

// Candidate is a proposed window on a practitioner's calendar.
type Candidate struct {
	CabinetID       uuid.UUID
	PractitionerID  *uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int

	// ExcludeID drops the appointment's own row from the scan when
	// rescheduling. Zero for new bookings.
	ExcludeID uuid.UUID
}

func (c Candidate) endAt() time.Time {
	return c.ScheduledAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

// CheckResult is boolean-plus-reason, never a silent default.
type CheckResult struct {
	Available                bool
	ConflictingAppointmentID uuid.UUID
}

// Detector decides whether a candidate window is free. Only same-cabinet,
// same-practitioner collisions are checked; room and resource contention is
// out of scope.
type Detector struct {
	repo Repository
}

func NewDetector(repo Repository) *Detector {
	return &Detector{repo: repo}
}

// Check reports whether the candidate may occupy its window. Any internal
// error fails closed: the result is unavailable and the error is returned,
// never converted into availability.
func (d *Detector) Check(ctx context.Context, c Candidate) (CheckResult, error) {
	// Unassigned appointments never conflict with anything.
	if c.PractitionerID == nil {
		return CheckResult{Available: true}, nil
	}

	from := c.ScheduledAt.Add(-conflictLookupPad)
	to := c.endAt().Add(conflictLookupPad)

	existing, err := d.repo.ListInWindow(ctx, c.CabinetID, from, to)
	if err != nil {
		return CheckResult{}, fmt.Errorf("conflict scan: %w", err)
	}

	for i := range existing {
		other := &existing[i]
		if other.ID == c.ExcludeID {
			continue
		}
		if other.Status == StatusCancelled {
			continue
		}
		if other.PractitionerID == nil || *other.PractitionerID != *c.PractitionerID {
			continue
		}
		if overlaps(c.ScheduledAt, c.endAt(), other.ScheduledAt, other.EndAt()) {
			return CheckResult{ConflictingAppointmentID: other.ID}, nil
		}
	}

	return CheckResult{Available: true}, nil
}

// overlaps implements half-open interval overlap: [a0,a1) and [b0,b1)
// collide iff a0 < b1 && b0 < a1. Back-to-back windows are free.
func overlaps(a0, a1, b0, b1 time.Time) bool {
	return a0.Before(b1) && b0.Before(a1)
}
