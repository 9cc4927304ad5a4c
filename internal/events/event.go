package events

import (
	"context"
	"time"

	"carecal/pkg/model"

	"github.com/google/uuid"
)

type Type string

const (
	SlotRequested Type = "SlotRequested"
	SlotBooked    Type = "SlotBooked"
	SlotCancelled Type = "SlotCancelled"
	SlotCheckedIn Type = "SlotCheckedIn"
	SlotCompleted Type = "SlotCompleted"
	SlotNoShow    Type = "SlotNoShow"
	ReminderDue   Type = "ReminderDue"

	RuleCreated     Type = "RuleCreated"
	RuleUpdated     Type = "RuleUpdated"
	RuleDeactivated Type = "RuleDeactivated"
	RuleActivated   Type = "RuleActivated"
)

// SchemaVersion is bumped on incompatible payload changes.
const SchemaVersion = "1"

func (t Type) IsRuleEvent() bool {
	switch t {
	case RuleCreated, RuleUpdated, RuleDeactivated, RuleActivated:
		return true
	}
	return false
}

// Event is the payload handed to notification and audit collaborators.
type Event struct {
	ID            string     `json:"event_id"`
	Type          Type       `json:"type"`
	OccurredAt    time.Time  `json:"occurred_at"`
	ProviderID    string     `json:"provider_id"`
	SlotID        string     `json:"slot_id,omitempty"`
	RuleID        string     `json:"rule_id,omitempty"`
	PatientID     string     `json:"patient_id,omitempty"`
	Date          string     `json:"date,omitempty"`
	StartTime     string     `json:"start_time,omitempty"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	ByProvider    bool       `json:"by_provider,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

// ForSlot describes a slot after a transition. patientID is passed separately
// because cancellation clears it from the slot.
func ForSlot(t Type, slot *model.Slot, patientID string, now time.Time) Event {
	startsAt := slot.StartsAt
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: now.UTC(),
		ProviderID: slot.ProviderID,
		SlotID:     slot.ID,
		RuleID:     slot.RuleID,
		PatientID:  patientID,
		Date:       slot.Date,
		StartTime:  slot.StartTime,
		StartsAt:   &startsAt,
	}
}

func ForRule(t Type, rule *model.AvailabilityRule, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: now.UTC(),
		ProviderID: rule.ProviderID,
		RuleID:     rule.ID,
	}
}

// Emitter queues events for delivery. Emit never blocks on delivery.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Publisher delivers events to their destination.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, Event) {}

// Discard drops every event.
func Discard() Emitter {
	return nopEmitter{}
}
