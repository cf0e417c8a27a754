package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	CabinetID       *uuid.UUID `json:"cabinet_id,omitempty"`
	PatientID       string     `json:"patient_id"`
	PractitionerID  *uuid.UUID `json:"practitioner_id,omitempty"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	Title           string     `json:"title,omitempty"`
	ServiceType     string     `json:"service_type,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	PriceCents      *int64     `json:"price_cents,omitempty"`
}

type RescheduleRequest struct {
	ScheduledAt       *time.Time `json:"scheduled_at,omitempty"`
	DurationMinutes   *int       `json:"duration_minutes,omitempty"`
	PractitionerID    *uuid.UUID `json:"practitioner_id,omitempty"`
	ClearPractitioner bool       `json:"clear_practitioner,omitempty"`
}

type TransitionRequest struct {
	Target    string `json:"target"`
	Confirmed bool   `json:"confirmed,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	CabinetID       uuid.UUID  `json:"cabinet_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	PractitionerID  *uuid.UUID `json:"practitioner_id,omitempty"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	EndAt           time.Time  `json:"end_at"`
	Status          string     `json:"status"`
	Title           string     `json:"title,omitempty"`
	ServiceType     string     `json:"service_type,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	PriceCents      *int64     `json:"price_cents,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
