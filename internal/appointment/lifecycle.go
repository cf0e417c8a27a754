package appointment

import "time"

// Trigger classifies who may drive a transition. Manual transitions require
// an authorized actor; timed transitions are applied only by the reminder
// sweep acting as the system actor.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerTimed  Trigger = "timed"
)

type transition struct {
	From Status
	To   Status
}

// transitions is the full lifecycle table. Anything absent is rejected with
// InvalidTransitionError and the stored status stays untouched.
var transitions = map[transition]Trigger{
	{StatusScheduled, StatusConfirmed}:  TriggerManual,
	{StatusConfirmed, StatusInProgress}: TriggerTimed,
	{StatusInProgress, StatusCompleted}: TriggerManual,
	{StatusScheduled, StatusNoShow}:     TriggerTimed,
	{StatusScheduled, StatusCancelled}:  TriggerManual,
	{StatusConfirmed, StatusCancelled}:  TriggerManual,
}

// ValidateTransition checks (from, to) against the lifecycle table and that
// the trigger class matches.
func ValidateTransition(from, to Status, trigger Trigger) error {
	want, ok := transitions[transition{from, to}]
	if !ok || want != trigger {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// TimedTransition describes a time-based move that has become due.
type TimedTransition struct {
	From Status
	To   Status
}

// DueTimedTransition returns the timed transition the appointment is due
// for at now, if any. Confirmed appointments start once their time arrives;
// Scheduled appointments that were never confirmed become no-shows after the
// grace period.
func DueTimedTransition(a *Appointment, now time.Time, grace time.Duration) (TimedTransition, bool) {
	switch a.Status {
	case StatusConfirmed:
		if !now.Before(a.ScheduledAt) {
			return TimedTransition{From: StatusConfirmed, To: StatusInProgress}, true
		}
	case StatusScheduled:
		if !now.Before(a.ScheduledAt.Add(grace)) {
			return TimedTransition{From: StatusScheduled, To: StatusNoShow}, true
		}
	}
	return TimedTransition{}, false
}
