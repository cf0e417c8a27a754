package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgExclusionViolation is raised by the appointments_no_overlap constraint
// when a racing write slips past the in-process conflict check.
const pgExclusionViolation = "23P01"

const appointmentColumns = `id, cabinet_id, patient_id, practitioner_id, scheduled_at, duration_minutes, status, title, service_type, notes, price_cents, created_at, updated_at`

// DB is the subset of pgxpool.Pool the repository needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanCabinet(row pgx.Row) (*Cabinet, error) {
	var c Cabinet
	err := row.Scan(&c.ID, &c.Name, &c.Timezone, &c.RemindersEnabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCabinetNotFound
		}
		return nil, storeErr(err)
	}
	return &c, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.CabinetID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, storeErr(err)
	}
	return &p, nil
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.CabinetID, &p.Name, &p.Specialty, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, storeErr(err)
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.CabinetID,
		&a.PatientID,
		&a.PractitionerID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Status,
		&a.Title,
		&a.ServiceType,
		&a.Notes,
		&a.PriceCents,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, storeErr(err)
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return result, nil
}

// storeErr marks infrastructure failures so callers can distinguish them
// from business errors. The API layer never surfaces the driver text.
func storeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
}

// Interface methods

func (r *PgRepository) GetCabinetByID(ctx context.Context, id uuid.UUID) (*Cabinet, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, timezone, reminders_enabled, created_at, updated_at
		FROM cabinets
		WHERE id = $1
	`, id)
	return scanCabinet(row)
}

func (r *PgRepository) ListReminderCabinets(ctx context.Context) ([]Cabinet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, timezone, reminders_enabled, created_at, updated_at
		FROM cabinets
		WHERE reminders_enabled
		ORDER BY id
	`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var result []Cabinet
	for rows.Next() {
		c, err := scanCabinet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return result, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, cabinet_id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, cabinet_id, name, specialty, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListInWindow(ctx context.Context, cabinetID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE cabinet_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status <> 'cancelled'
		ORDER BY scheduled_at
	`, cabinetID, from, to)
	if err != nil {
		return nil, storeErr(err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	var args []any
	argIdx := 1

	add := func(clause string, value any) {
		query += fmt.Sprintf(" AND "+clause, argIdx)
		args = append(args, value)
		argIdx++
	}

	switch {
	case filter.Scope.CabinetID != nil:
		add("cabinet_id = $%d", *filter.Scope.CabinetID)
	case len(filter.Scope.CabinetIDs) > 0:
		add("cabinet_id = ANY($%d)", filter.Scope.CabinetIDs)
	}
	if filter.From != nil {
		add("scheduled_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("scheduled_at < $%d", *filter.To)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", filter.Statuses)
	}
	if filter.PractitionerID != nil {
		add("practitioner_id = $%d", *filter.PractitionerID)
	}
	if filter.PatientID != nil {
		add("patient_id = $%d", *filter.PatientID)
	}

	query += " ORDER BY scheduled_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, cabinet_id, patient_id, practitioner_id, scheduled_at, duration_minutes, status, title, service_type, notes, price_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.CabinetID, a.PatientID, a.PractitionerID, a.ScheduledAt, a.DurationMinutes, a.Status, a.Title, a.ServiceType, a.Notes, a.PriceCents)

	created, err := scanAppointment(row)
	if err != nil {
		if conflict := r.asConflict(ctx, err, a.CabinetID, a.PractitionerID, a.ScheduledAt, a.DurationMinutes, a.ID); conflict != nil {
			return nil, conflict
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time, durationMinutes int, practitionerID *uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    duration_minutes = $3,
		    practitioner_id = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, scheduledAt, durationMinutes, practitionerID)

	updated, err := scanAppointment(row)
	if err != nil {
		var cabinetID uuid.UUID
		if current, getErr := r.GetAppointmentByID(ctx, id); getErr == nil {
			cabinetID = current.CabinetID
		}
		if conflict := r.asConflict(ctx, err, cabinetID, practitionerID, scheduledAt, durationMinutes, id); conflict != nil {
			return nil, conflict
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

// asConflict recognizes the exclusion-constraint violation and upgrades it
// to a SlotConflictError, looking up the blocking row best-effort so the
// caller learns which appointment holds the window.
func (r *PgRepository) asConflict(ctx context.Context, err error, cabinetID uuid.UUID, practitionerID *uuid.UUID, scheduledAt time.Time, durationMinutes int, excludeID uuid.UUID) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgExclusionViolation {
		return nil
	}

	conflict := &SlotConflictError{}
	if practitionerID != nil && cabinetID != uuid.Nil {
		endAt := scheduledAt.Add(time.Duration(durationMinutes) * time.Minute)
		row := r.db.QueryRow(ctx, `
			SELECT id FROM appointments
			WHERE cabinet_id = $1
			  AND practitioner_id = $2
			  AND status <> 'cancelled'
			  AND id <> $5
			  AND scheduled_at < $4
			  AND scheduled_at + make_interval(mins => duration_minutes) > $3
			ORDER BY scheduled_at
			LIMIT 1
		`, cabinetID, *practitionerID, scheduledAt, endAt, excludeID)
		_ = row.Scan(&conflict.ConflictingAppointmentID)
	}
	return conflict
}

var _ Repository = (*PgRepository)(nil)
