package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/cabinet-scheduling/internal/access"
	"github.com/clinicore/cabinet-scheduling/internal/appointment"
)

// fakeService returns canned results and records the last call's arguments.
type fakeService struct {
	appt  *appointment.Appointment
	appts []appointment.Appointment
	err   error

	lastActor  access.Actor
	lastCreate appointment.CreateInput
	lastChange appointment.ScheduleChange
	lastTarget appointment.Status
	lastFilter appointment.ListFilter
	confirmed  bool
}

func (f *fakeService) Create(_ context.Context, actor access.Actor, in appointment.CreateInput) (*appointment.Appointment, error) {
	f.lastActor, f.lastCreate = actor, in
	return f.appt, f.err
}

func (f *fakeService) Reschedule(_ context.Context, actor access.Actor, _ uuid.UUID, change appointment.ScheduleChange) (*appointment.Appointment, error) {
	f.lastActor, f.lastChange = actor, change
	return f.appt, f.err
}

func (f *fakeService) Transition(_ context.Context, actor access.Actor, _ uuid.UUID, to appointment.Status, confirmed bool) (*appointment.Appointment, error) {
	f.lastActor, f.lastTarget, f.confirmed = actor, to, confirmed
	return f.appt, f.err
}

func (f *fakeService) Get(_ context.Context, actor access.Actor, _ uuid.UUID) (*appointment.Appointment, error) {
	f.lastActor = actor
	return f.appt, f.err
}

func (f *fakeService) List(_ context.Context, actor access.Actor, filter appointment.ListFilter) ([]appointment.Appointment, error) {
	f.lastActor, f.lastFilter = actor, filter
	return f.appts, f.err
}

func testActor() access.Actor {
	return access.Actor{UserID: "mgr-1", Role: access.RoleManager, AssignedCabinets: []uuid.UUID{uuid.New()}}
}

// testRouter mounts the handlers with a fixed actor injected, sidestepping
// token parsing.
func testRouter(svc SchedulingService, actor access.Actor) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), actorKey, actor)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/appointments", createAppointmentHandler(svc))
	r.Get("/appointments", listAppointmentsHandler(svc))
	r.Get("/appointments/{id}", getAppointmentHandler(svc))
	r.Patch("/appointments/{id}/schedule", rescheduleAppointmentHandler(svc))
	r.Post("/appointments/{id}/status", transitionAppointmentHandler(svc))
	return r
}

func sampleAppointment() *appointment.Appointment {
	practitionerID := uuid.New()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return &appointment.Appointment{
		ID:              uuid.New(),
		CabinetID:       uuid.New(),
		PatientID:       uuid.New(),
		PractitionerID:  &practitionerID,
		ScheduledAt:     now.Add(2 * time.Hour),
		DurationMinutes: 30,
		Status:          appointment.StatusScheduled,
		ServiceType:     "Consultation",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreateAppointmentHandler(t *testing.T) {
	want := sampleAppointment()
	svc := &fakeService{appt: want}
	router := testRouter(svc, testActor())

	body, _ := json.Marshal(CreateAppointmentRequest{
		PatientID:       want.PatientID.String(),
		PractitionerID:  want.PractitionerID,
		ScheduledAt:     want.ScheduledAt,
		DurationMinutes: 30,
		ServiceType:     "Consultation",
	})
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, want.ID, resp.ID)
	assert.Equal(t, "scheduled", resp.Status)
	assert.Equal(t, want.ScheduledAt.Add(30*time.Minute), resp.EndAt)

	assert.Equal(t, want.PatientID, svc.lastCreate.PatientID)
	assert.Equal(t, 30, svc.lastCreate.DurationMinutes)
}

func TestCreateAppointmentHandlerBadInput(t *testing.T) {
	router := testRouter(&fakeService{}, testActor())

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ := json.Marshal(CreateAppointmentRequest{PatientID: "not-a-uuid"})
	req = httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"denied", &access.DeniedError{Reason: "outside assignment"}, http.StatusForbidden, "access_denied"},
		{"conflict", &appointment.SlotConflictError{ConflictingAppointmentID: uuid.New()}, http.StatusConflict, "slot_conflict"},
		{"invalid transition", &appointment.InvalidTransitionError{From: appointment.StatusCompleted, To: appointment.StatusScheduled}, http.StatusConflict, "invalid_status_transition"},
		{"slot busy", appointment.ErrSlotBusy, http.StatusConflict, "slot_busy"},
		{"terminal", appointment.ErrAppointmentTerminal, http.StatusConflict, "appointment_finalized"},
		{"tenant mismatch", appointment.ErrTenantMismatch, http.StatusUnprocessableEntity, "tenant_mismatch"},
		{"confirmation required", appointment.ErrCompletionNotConfirmed, http.StatusBadRequest, "confirmation_required"},
		{"invalid input", appointment.ErrInvalidInput, http.StatusBadRequest, "invalid_request"},
		{"no cabinet", access.ErrNoCabinetResolved, http.StatusBadRequest, "invalid_request"},
		{"appointment missing", appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{"patient missing", appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
		{"store down", appointment.ErrPersistenceUnavailable, http.StatusServiceUnavailable, "temporarily_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{err: tc.err}
			router := testRouter(svc, testActor())

			body, _ := json.Marshal(CreateAppointmentRequest{
				PatientID:       uuid.New().String(),
				ScheduledAt:     time.Now().Add(time.Hour),
				DurationMinutes: 30,
			})
			req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantCode, resp.Error)
		})
	}
}

func TestStorageErrorsStayGeneric(t *testing.T) {
	// Driver details must never leak into the response body.
	svc := &fakeService{err: appointment.ErrPersistenceUnavailable}
	router := testRouter(svc, testActor())

	req := httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "please retry shortly", resp.Details)
	assert.NotContains(t, rec.Body.String(), "persistence")
}

func TestListAppointmentsHandlerFilters(t *testing.T) {
	svc := &fakeService{appts: []appointment.Appointment{*sampleAppointment()}}
	router := testRouter(svc, testActor())

	cabinetID := uuid.New()
	practitionerID := uuid.New()
	url := "/appointments?cabinet_id=" + cabinetID.String() +
		"&practitioner_id=" + practitionerID.String() +
		"&from=2026-03-10T00:00:00Z&to=2026-03-11T00:00:00Z" +
		"&status=scheduled,confirmed&limit=25&offset=5"

	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, svc.lastFilter.Scope.CabinetID)
	assert.Equal(t, cabinetID, *svc.lastFilter.Scope.CabinetID)
	require.NotNil(t, svc.lastFilter.PractitionerID)
	assert.Equal(t, practitionerID, *svc.lastFilter.PractitionerID)
	assert.Equal(t, []appointment.Status{appointment.StatusScheduled, appointment.StatusConfirmed}, svc.lastFilter.Statuses)
	assert.Equal(t, 25, svc.lastFilter.Limit)
	assert.Equal(t, 5, svc.lastFilter.Offset)

	var resp []AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 1)
}

func TestListAppointmentsHandlerRejectsBadFilter(t *testing.T) {
	router := testRouter(&fakeService{}, testActor())

	for _, url := range []string{
		"/appointments?cabinet_id=abc",
		"/appointments?from=yesterday",
		"/appointments?limit=many",
	} {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
	}
}

func TestRescheduleHandler(t *testing.T) {
	want := sampleAppointment()
	svc := &fakeService{appt: want}
	router := testRouter(svc, testActor())

	newStart := want.ScheduledAt.Add(time.Hour)
	body, _ := json.Marshal(RescheduleRequest{ScheduledAt: &newStart, ClearPractitioner: true})
	req := httptest.NewRequest(http.MethodPatch, "/appointments/"+want.ID.String()+"/schedule", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastChange.ScheduledAt)
	assert.True(t, svc.lastChange.ScheduledAt.Equal(newStart))
	assert.True(t, svc.lastChange.ClearPractitioner)
}

func TestTransitionHandler(t *testing.T) {
	want := sampleAppointment()
	want.Status = appointment.StatusCompleted
	svc := &fakeService{appt: want}
	router := testRouter(svc, testActor())

	body, _ := json.Marshal(TransitionRequest{Target: "completed", Confirmed: true})
	req := httptest.NewRequest(http.MethodPost, "/appointments/"+want.ID.String()+"/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusCompleted, svc.lastTarget)
	assert.True(t, svc.confirmed)
}

func TestHandlersRejectBadIDs(t *testing.T) {
	router := testRouter(&fakeService{}, testActor())

	for _, tc := range []struct{ method, url string }{
		{http.MethodGet, "/appointments/nope"},
		{http.MethodPatch, "/appointments/nope/schedule"},
		{http.MethodPost, "/appointments/nope/status"},
	} {
		req := httptest.NewRequest(tc.method, tc.url, bytes.NewReader([]byte("{}")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.url)
	}
}
