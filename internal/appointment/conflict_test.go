package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorOverlap(t *testing.T) {
	repo := newMemRepo()
	detector := NewDetector(repo)
	ctx := context.Background()

	cabinetID := uuid.New()
	practitionerID := uuid.New()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	existing := repo.addAppointment(Appointment{
		CabinetID:       cabinetID,
		PatientID:       uuid.New(),
		PractitionerID:  &practitionerID,
		ScheduledAt:     start,
		DurationMinutes: 30,
	})

	// 10:15 lands inside the existing 10:00-10:30 window.
	res, err := detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		PractitionerID:  &practitionerID,
		ScheduledAt:     start.Add(15 * time.Minute),
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, existing.ID, res.ConflictingAppointmentID)

	// A window fully containing the existing one also conflicts.
	res, err = detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		PractitionerID:  &practitionerID,
		ScheduledAt:     start.Add(-15 * time.Minute),
		DurationMinutes: 90,
	})
	require.NoError(t, err)
	assert.False(t, res.Available)
}

func TestDetectorBackToBackIsFree(t *testing.T) {
	repo := newMemRepo()
	detector := NewDetector(repo)
	ctx := context.Background()

	cabinetID := uuid.New()
	practitionerID := uuid.New()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	repo.addAppointment(Appointment{
		CabinetID:       cabinetID,
		PatientID:       uuid.New(),
		PractitionerID:  &practitionerID,
		ScheduledAt:     start,
		DurationMinutes: 30,
	})

	// Ends exactly when the next starts: half-open windows do not touch.
	res, err := detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		PractitionerID:  &practitionerID,
		ScheduledAt:     start.Add(30 * time.Minute),
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.True(t, res.Available)

	res, err = detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		PractitionerID:  &practitionerID,
		ScheduledAt:     start.Add(-30 * time.Minute),
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.True(t, res.Available)
}

func TestDetectorScopedToPractitioner(t *testing.T) {
	repo := newMemRepo()
	detector := NewDetector(repo)
	ctx := context.Background()

	cabinetID := uuid.New()
	busy := uuid.New()
	other := uuid.New()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	repo.addAppointment(Appointment{
		CabinetID:       cabinetID,
		PatientID:       uuid.New(),
		PractitionerID:  &busy,
		ScheduledAt:     start,
		DurationMinutes: 30,
	})

	// A different practitioner shares the room without conflict.
	res, err := detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		PractitionerID:  &other,
		ScheduledAt:     start,
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.True(t, res.Available)

	// An unassigned candidate never conflicts, even on the busy window.
	res, err = detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		ScheduledAt:     start,
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.True(t, res.Available)
}

func TestDetectorStatusHandling(t *testing.T) {
	repo := newMemRepo()
	detector := NewDetector(repo)
	ctx := context.Background()

	cabinetID := uuid.New()
	practitionerID := uuid.New()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	cancelled := repo.addAppointment(Appointment{
		CabinetID:       cabinetID,
		PatientID:       uuid.New(),
		PractitionerID:  &practitionerID,
		ScheduledAt:     start,
		DurationMinutes: 30,
		Status:          StatusCancelled,
	})
	_ = cancelled

	res, err := detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		PractitionerID:  &practitionerID,
		ScheduledAt:     start,
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.True(t, res.Available, "cancelled appointments free their window")

	// A no-show keeps blocking until it is explicitly rebooked.
	noShow := repo.addAppointment(Appointment{
		CabinetID:       cabinetID,
		PatientID:       uuid.New(),
		PractitionerID:  &practitionerID,
		ScheduledAt:     start,
		DurationMinutes: 30,
		Status:          StatusNoShow,
	})
	res, err = detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		PractitionerID:  &practitionerID,
		ScheduledAt:     start,
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, noShow.ID, res.ConflictingAppointmentID)
}

func TestDetectorExcludesOwnRow(t *testing.T) {
	repo := newMemRepo()
	detector := NewDetector(repo)
	ctx := context.Background()

	cabinetID := uuid.New()
	practitionerID := uuid.New()
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	own := repo.addAppointment(Appointment{
		CabinetID:       cabinetID,
		PatientID:       uuid.New(),
		PractitionerID:  &practitionerID,
		ScheduledAt:     start,
		DurationMinutes: 30,
	})

	// Shifting an appointment within its own window must not self-conflict.
	res, err := detector.Check(ctx, Candidate{
		CabinetID:       cabinetID,
		PractitionerID:  &practitionerID,
		ScheduledAt:     start.Add(10 * time.Minute),
		DurationMinutes: 30,
		ExcludeID:       own.ID,
	})
	require.NoError(t, err)
	assert.True(t, res.Available)
}

func TestDetectorFailsClosed(t *testing.T) {
	repo := newMemRepo()
	repo.windowErr = errors.New("connection reset")
	detector := NewDetector(repo)

	practitionerID := uuid.New()
	res, err := detector.Check(context.Background(), Candidate{
		CabinetID:       uuid.New(),
		PractitionerID:  &practitionerID,
		ScheduledAt:     time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
	})
	require.Error(t, err)
	assert.False(t, res.Available, "a failed scan never reports availability")
}

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	at := func(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

	assert.True(t, overlaps(at(0), at(30), at(15), at(45)))
	assert.True(t, overlaps(at(15), at(45), at(0), at(30)))
	assert.True(t, overlaps(at(0), at(60), at(15), at(30)))
	assert.False(t, overlaps(at(0), at(30), at(30), at(60)))
	assert.False(t, overlaps(at(30), at(60), at(0), at(30)))
	assert.False(t, overlaps(at(0), at(30), at(45), at(60)))
}
