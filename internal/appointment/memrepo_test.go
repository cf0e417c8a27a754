package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository used by the conflict and service tests.
type memRepo struct {
	mu            sync.Mutex
	cabinets      map[uuid.UUID]Cabinet
	patients      map[uuid.UUID]Patient
	practitioners map[uuid.UUID]Practitioner
	appointments  map[uuid.UUID]Appointment

	windowErr        error  // forced failure for ListInWindow
	afterGetAppt     func() // runs once after the next GetAppointmentByID
	afterGetApptUsed bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		cabinets:      make(map[uuid.UUID]Cabinet),
		patients:      make(map[uuid.UUID]Patient),
		practitioners: make(map[uuid.UUID]Practitioner),
		appointments:  make(map[uuid.UUID]Appointment),
	}
}

func (r *memRepo) addCabinet(c Cabinet) Cabinet {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.cabinets[c.ID] = c
	return c
}

func (r *memRepo) addPatient(p Patient) Patient {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.patients[p.ID] = p
	return p
}

func (r *memRepo) addPractitioner(p Practitioner) Practitioner {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.practitioners[p.ID] = p
	return p
}

func (r *memRepo) addAppointment(a Appointment) Appointment {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	r.appointments[a.ID] = a
	return a
}

func (r *memRepo) GetCabinetByID(_ context.Context, id uuid.UUID) (*Cabinet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cabinets[id]
	if !ok {
		return nil, ErrCabinetNotFound
	}
	return &c, nil
}

func (r *memRepo) ListReminderCabinets(_ context.Context) ([]Cabinet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Cabinet
	for _, c := range r.cabinets {
		if c.RemindersEnabled {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) GetPractitionerByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	a, ok := r.appointments[id]
	hook := r.afterGetAppt
	if hook != nil && !r.afterGetApptUsed {
		r.afterGetApptUsed = true
	} else {
		hook = nil
	}
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) ListInWindow(_ context.Context, cabinetID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.windowErr != nil {
		return nil, r.windowErr
	}
	var out []Appointment
	for _, a := range r.appointments {
		if a.CabinetID != cabinetID || a.Status == StatusCancelled {
			continue
		}
		if a.ScheduledAt.Before(from) || !a.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *memRepo) ListAppointments(_ context.Context, filter ListFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inScope := func(id uuid.UUID) bool {
		if filter.Scope.CabinetID != nil {
			return *filter.Scope.CabinetID == id
		}
		if len(filter.Scope.CabinetIDs) > 0 {
			for _, c := range filter.Scope.CabinetIDs {
				if c == id {
					return true
				}
			}
			return false
		}
		return true
	}

	var out []Appointment
	for _, a := range r.appointments {
		if !inScope(a.CabinetID) {
			continue
		}
		if filter.From != nil && a.ScheduledAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !a.ScheduledAt.Before(*filter.To) {
			continue
		}
		if filter.PractitionerID != nil && (a.PractitionerID == nil || *a.PractitionerID != *filter.PractitionerID) {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if a.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *a
	r.appointments[stored.ID] = stored
	return &stored, nil
}

func (r *memRepo) UpdateSchedule(_ context.Context, id uuid.UUID, scheduledAt time.Time, durationMinutes int, practitionerID *uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.ScheduledAt = scheduledAt
	a.DurationMinutes = durationMinutes
	a.PractitionerID = practitionerID
	r.appointments[id] = a
	return &a, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	r.appointments[id] = a
	return &a, nil
}

var _ Repository = (*memRepo)(nil)
