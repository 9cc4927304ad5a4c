// Package statemachine holds the slot lifecycle as a pure function. It never
// touches storage; callers persist the returned slot with a compare-and-set
// on the status they observed.
package statemachine

import (
	"fmt"
	"time"

	apperrors "carecal/pkg/errors"
	"carecal/pkg/model"
)

const MaxCompletionMinutes = 480

// Event is a requested transition. The set is closed.
type Event interface {
	Action() string
	event()
}

type Request struct {
	PatientID        string
	RequiresApproval bool
}

type Confirm struct{}

type Cancel struct {
	Reason     string
	ByProvider bool
}

type CheckIn struct{}

type Complete struct {
	Notes string
	// DurationMinutes is the actual length; 0 keeps the scheduled duration.
	DurationMinutes int
}

type MarkNoShow struct{}

type SendReminder struct{}

func (Request) Action() string      { return "request" }
func (Confirm) Action() string      { return "confirm" }
func (Cancel) Action() string       { return "cancel" }
func (CheckIn) Action() string      { return "check in" }
func (Complete) Action() string     { return "complete" }
func (MarkNoShow) Action() string   { return "mark no-show" }
func (SendReminder) Action() string { return "send reminder for" }

func (Request) event()      {}
func (Confirm) event()      {}
func (Cancel) event()       {}
func (CheckIn) event()      {}
func (Complete) event()     {}
func (MarkNoShow) event()   {}
func (SendReminder) event() {}

// Apply returns the slot after ev, or an error leaving slot untouched.
// A Request that cannot be honoured is SlotUnavailable; every other guard
// failure is InvalidTransition.
func Apply(slot *model.Slot, ev Event, now time.Time) (*model.Slot, error) {
	now = now.UTC()
	next := slot.Clone()

	switch e := ev.(type) {
	case Request:
		if e.PatientID == "" {
			return nil, apperrors.InvalidInput("patient id is required")
		}
		if !Requestable(slot) {
			return nil, apperrors.SlotUnavailable(slot.ID)
		}
		next.PatientID = e.PatientID
		next.RequestedAt = &now
		next.ConfirmedAt = nil
		next.CancelledAt = nil
		next.CancellationReason = ""
		next.CancelledByProvider = false
		next.CheckedIn = false
		next.CheckedInAt = nil
		next.NoShow = false
		next.ReminderSent = false
		if e.RequiresApproval {
			next.Status = model.SlotPendingConfirmation
		} else {
			next.Status = model.SlotBooked
			next.ConfirmedAt = &now
		}

	case Confirm:
		if slot.Status != model.SlotPendingConfirmation {
			return nil, invalid(slot, ev)
		}
		next.Status = model.SlotBooked
		next.ConfirmedAt = &now

	case Cancel:
		if !slot.Status.Held() {
			return nil, invalid(slot, ev)
		}
		next.Status = model.SlotCancelled
		next.PatientID = ""
		next.CancelledAt = &now
		next.CancellationReason = e.Reason
		next.CancelledByProvider = e.ByProvider
		next.CheckedIn = false
		next.CheckedInAt = nil

	case CheckIn:
		if slot.Status != model.SlotBooked || now.Before(slot.StartsAt) {
			return nil, invalid(slot, ev)
		}
		if !slot.CheckedIn {
			next.CheckedIn = true
			next.CheckedInAt = &now
		}

	case Complete:
		if slot.Status != model.SlotBooked {
			return nil, invalid(slot, ev)
		}
		if e.DurationMinutes < 0 || e.DurationMinutes > MaxCompletionMinutes {
			return nil, apperrors.Validation("invalid completion duration", map[string]any{
				"duration_minutes": fmt.Sprintf("must be between 1 and %d", MaxCompletionMinutes),
			})
		}
		next.Status = model.SlotCompleted
		next.CompletedAt = &now
		next.Notes = e.Notes
		next.ActualDurationMinutes = e.DurationMinutes
		if next.ActualDurationMinutes == 0 {
			next.ActualDurationMinutes = slot.DurationMinutes
		}

	case MarkNoShow:
		if slot.Status != model.SlotBooked || now.Before(slot.StartsAt) {
			return nil, invalid(slot, ev)
		}
		next.Status = model.SlotNoShow
		next.NoShow = true

	case SendReminder:
		if slot.Status != model.SlotBooked {
			return nil, invalid(slot, ev)
		}
		next.ReminderSent = true

	default:
		return nil, apperrors.Internal("unknown slot event", fmt.Errorf("%T", ev))
	}

	next.UpdatedAt = now
	next.Refresh()
	return next, nil
}

// Requestable reports whether a patient may claim the slot now: it must be
// available and either fresh or reopened by a cancellation.
func Requestable(slot *model.Slot) bool {
	if !slot.Available() {
		return false
	}
	return slot.Status == model.SlotAvailable || slot.Status == model.SlotCancelled
}

// Changed reports whether next differs from the stored slot in a way that
// needs a write. Repeated reminders and check-ins are no-ops.
func Changed(prev, next *model.Slot) bool {
	return prev.Status != next.Status ||
		prev.ReminderSent != next.ReminderSent ||
		prev.CheckedIn != next.CheckedIn
}

func invalid(slot *model.Slot, ev Event) error {
	return apperrors.InvalidTransition(slot.ID, string(slot.Status), ev.Action())
}
