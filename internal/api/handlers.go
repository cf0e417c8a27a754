package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/cabinet-scheduling/internal/access"
	"github.com/clinicore/cabinet-scheduling/internal/appointment"
)

// SchedulingService is the slice of the appointment service the handlers
// need. Narrowed to an interface so handler tests can inject a fake.
type SchedulingService interface {
	Create(ctx context.Context, actor access.Actor, in appointment.CreateInput) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, actor access.Actor, id uuid.UUID, change appointment.ScheduleChange) (*appointment.Appointment, error)
	Transition(ctx context.Context, actor access.Actor, id uuid.UUID, to appointment.Status, confirmed bool) (*appointment.Appointment, error)
	Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)
	List(ctx context.Context, actor access.Actor, filter appointment.ListFilter) ([]appointment.Appointment, error)
}

func createAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.Create(r.Context(), actor, appointment.CreateInput{
			CabinetID:       req.CabinetID,
			PatientID:       patientID,
			PractitionerID:  req.PractitionerID,
			ScheduledAt:     req.ScheduledAt,
			DurationMinutes: req.DurationMinutes,
			Title:           req.Title,
			ServiceType:     req.ServiceType,
			Notes:           req.Notes,
			PriceCents:      req.PriceCents,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		filter, err := parseListFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}

		appts, err := svc.List(r.Context(), actor, filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func rescheduleAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Reschedule(r.Context(), actor, id, appointment.ScheduleChange{
			ScheduledAt:       req.ScheduledAt,
			DurationMinutes:   req.DurationMinutes,
			PractitionerID:    req.PractitionerID,
			ClearPractitioner: req.ClearPractitioner,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "no authenticated actor")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Transition(r.Context(), actor, id, appointment.Status(req.Target), req.Confirmed)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func parseListFilter(r *http.Request) (appointment.ListFilter, error) {
	var filter appointment.ListFilter
	q := r.URL.Query()

	if raw := q.Get("cabinet_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New("cabinet_id must be a valid UUID")
		}
		filter.Scope.CabinetID = &id
	}
	if raw := q.Get("practitioner_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New("practitioner_id must be a valid UUID")
		}
		filter.PractitionerID = &id
	}
	if raw := q.Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New("patient_id must be a valid UUID")
		}
		filter.PatientID = &id
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("from must be RFC3339")
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("to must be RFC3339")
		}
		filter.To = &t
	}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, appointment.Status(strings.TrimSpace(s)))
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.New("limit must be a number")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.New("offset must be a number")
		}
		filter.Offset = n
	}

	return filter, nil
}

// handleServiceError maps the core error taxonomy onto HTTP. Storage
// failures are reported generically so driver internals never reach end
// users.
func handleServiceError(w http.ResponseWriter, err error) {
	var denied *access.DeniedError
	var conflict *appointment.SlotConflictError
	var invalid *appointment.InvalidTransitionError

	switch {
	case errors.As(err, &denied):
		writeError(w, http.StatusForbidden, "access_denied", denied.Reason)
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_busy", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrAppointmentTerminal):
		writeError(w, http.StatusConflict, "appointment_finalized", err.Error())
	case errors.Is(err, appointment.ErrTenantMismatch):
		writeError(w, http.StatusUnprocessableEntity, "tenant_mismatch", err.Error())
	case errors.Is(err, appointment.ErrCompletionNotConfirmed):
		writeError(w, http.StatusBadRequest, "confirmation_required", err.Error())
	case errors.Is(err, appointment.ErrInvalidInput), errors.Is(err, access.ErrNoCabinetResolved):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, appointment.ErrCabinetNotFound):
		writeError(w, http.StatusNotFound, "cabinet_not_found", err.Error())
	case errors.Is(err, appointment.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		CabinetID:       a.CabinetID,
		PatientID:       a.PatientID,
		PractitionerID:  a.PractitionerID,
		ScheduledAt:     a.ScheduledAt,
		DurationMinutes: a.DurationMinutes,
		EndAt:           a.EndAt(),
		Status:          string(a.Status),
		Title:           a.Title,
		ServiceType:     a.ServiceType,
		Notes:           a.Notes,
		PriceCents:      a.PriceCents,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
