package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent" // conflicts and failures
	PriorityHigh   Priority = "high"   // reminders
	PriorityMedium Priority = "medium" // manual status changes
	PriorityLow    Priority = "low"    // pure confirmations, auto-dismiss
)

type MessageType string

const (
	TypeStatusChange MessageType = "status_change"
	TypeReschedule   MessageType = "reschedule"
	TypeReminder     MessageType = "reminder"
	TypeConflict     MessageType = "conflict"
)

// Message is emitted once by the scheduling core and handed off to the
// delivery collaborator. It is never mutated after emission; re-runs of the
// reminder sweep are deduplicated by DedupKey.
type Message struct {
	ID            uuid.UUID   `json:"id"`
	Type          MessageType `json:"type"`
	Category      string      `json:"category"`
	Title         string      `json:"title"`
	Body          string      `json:"message"`
	Priority      Priority    `json:"priority"`
	CabinetID     uuid.UUID   `json:"cabinet_id"`
	AppointmentID *uuid.UUID  `json:"appointment_id,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ReminderDedupKey is the stable idempotency key for one (appointment,
// threshold) reminder pair.
func ReminderDedupKey(appointmentID uuid.UUID, thresholdMinutes int) string {
	return fmt.Sprintf("reminder:%s:%d", appointmentID, thresholdMinutes)
}
