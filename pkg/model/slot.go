package model

import "time"

type SlotStatus string

const (
	SlotAvailable           SlotStatus = "AVAILABLE"
	SlotPendingConfirmation SlotStatus = "PENDING_CONFIRMATION"
	SlotBooked              SlotStatus = "BOOKED"
	SlotCompleted           SlotStatus = "COMPLETED"
	SlotNoShow              SlotStatus = "NO_SHOW"
	SlotCancelled           SlotStatus = "CANCELLED"
)

var SlotStatuses = []SlotStatus{
	SlotAvailable,
	SlotPendingConfirmation,
	SlotBooked,
	SlotCompleted,
	SlotNoShow,
	SlotCancelled,
}

func (s SlotStatus) Valid() bool {
	for _, st := range SlotStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Held reports whether the slot is claimed by a patient.
func (s SlotStatus) Held() bool {
	return s == SlotPendingConfirmation || s == SlotBooked
}

// Reopens reports whether a slot in this status counts as open for a new claim.
func (s SlotStatus) Reopens() bool {
	return s == SlotAvailable || s == SlotCancelled || s == SlotNoShow
}

// Unclaimed reports whether nobody holds or held the slot to completion:
// fresh slots and slots reopened by a cancellation.
func (s SlotStatus) Unclaimed() bool {
	return s == SlotAvailable || s == SlotCancelled
}

// Slot is one concrete bookable unit produced from a rule occurrence.
// IsAvailable is derived from Status and Disabled; it is persisted only as a
// denormalized column and is refreshed by every transition.
type Slot struct {
	ID                    string     `json:"id" bson:"_id"`
	RuleID                string     `json:"rule_id" bson:"rule_id"`
	ProviderID            string     `json:"provider_id" bson:"provider_id"`
	Date                  string     `json:"date" bson:"date"`
	StartTime             string     `json:"start_time" bson:"start_time"`
	EndTime               string     `json:"end_time" bson:"end_time"`
	TimeZone              string     `json:"time_zone" bson:"time_zone"`
	StartsAt              time.Time  `json:"starts_at" bson:"starts_at"`
	DurationMinutes       int        `json:"duration_minutes" bson:"duration_minutes"`
	Status                SlotStatus `json:"status" bson:"status"`
	IsAvailable           bool       `json:"is_available" bson:"is_available"`
	Disabled              bool       `json:"disabled,omitempty" bson:"disabled"`
	PatientID             string     `json:"patient_id,omitempty" bson:"patient_id,omitempty"`
	RequestedAt           *time.Time `json:"requested_at,omitempty" bson:"requested_at,omitempty"`
	ConfirmedAt           *time.Time `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancellationReason    string     `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CancelledByProvider   bool       `json:"cancelled_by_provider,omitempty" bson:"cancelled_by_provider"`
	CheckedIn             bool       `json:"checked_in" bson:"checked_in"`
	CheckedInAt           *time.Time `json:"checked_in_at,omitempty" bson:"checked_in_at,omitempty"`
	NoShow                bool       `json:"no_show" bson:"no_show"`
	ReminderSent          bool       `json:"reminder_sent" bson:"reminder_sent"`
	Notes                 string     `json:"notes,omitempty" bson:"notes,omitempty"`
	ActualDurationMinutes int        `json:"actual_duration_minutes,omitempty" bson:"actual_duration_minutes,omitempty"`
	CreatedAt             time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" bson:"updated_at"`
	// Version grows by one on every stored write and guards compare-and-set.
	Version               int64      `json:"version" bson:"version"`
}

// Available computes the derived availability flag.
func (s *Slot) Available() bool {
	return !s.Disabled && s.Status.Reopens()
}

// Refresh brings the denormalized IsAvailable column in line with Status.
func (s *Slot) Refresh() {
	s.IsAvailable = s.Available()
}

// EndsAt is the instant the slot ends.
func (s *Slot) EndsAt() time.Time {
	return s.StartsAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Clone returns a deep copy so transitions never alias the caller's slot.
func (s *Slot) Clone() *Slot {
	c := *s
	c.RequestedAt = cloneTime(s.RequestedAt)
	c.ConfirmedAt = cloneTime(s.ConfirmedAt)
	c.CancelledAt = cloneTime(s.CancelledAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.CheckedInAt = cloneTime(s.CheckedInAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SlotFilter selects slots. Empty fields match everything; From and To bound
// the civil date inclusively, StartsFrom and StartsBefore bound starts_at
// half-open.
type SlotFilter struct {
	ProviderID   string
	RuleID       string
	PatientID    string
	From         string
	To           string
	StartsFrom   time.Time
	StartsBefore time.Time
	Statuses     []SlotStatus
	// IncludeDisabled also returns slots soft-disabled by reconciliation.
	IncludeDisabled bool
}

// Matches applies the filter to one slot.
func (f SlotFilter) Matches(s *Slot) bool {
	switch {
	case f.ProviderID != "" && s.ProviderID != f.ProviderID,
		f.RuleID != "" && s.RuleID != f.RuleID,
		f.PatientID != "" && s.PatientID != f.PatientID,
		f.From != "" && s.Date < f.From,
		f.To != "" && s.Date > f.To,
		!f.StartsFrom.IsZero() && s.StartsAt.Before(f.StartsFrom),
		!f.StartsBefore.IsZero() && !s.StartsAt.Before(f.StartsBefore),
		!f.IncludeDisabled && s.Disabled:
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// Key is the natural key enforced unique by the store.
func (s *Slot) Key() string {
	return s.ProviderID + "|" + s.Date + "|" + s.StartTime
}

// ProviderStatistics aggregates slot states over a date window.
type ProviderStatistics struct {
	ProviderID      string  `json:"provider_id"`
	From            string  `json:"from"`
	To              string  `json:"to"`
	Total           int64   `json:"total"`
	Available       int64   `json:"available"`
	Pending         int64   `json:"pending"`
	Booked          int64   `json:"booked"`
	Completed       int64   `json:"completed"`
	Cancelled       int64   `json:"cancelled"`
	NoShow          int64   `json:"no_show"`
	UtilizationRate float64 `json:"utilization_rate"`
}

// NewProviderStatistics folds per-status counts into statistics.
// Utilization is (booked+completed)/total and 0 for an empty window.
func NewProviderStatistics(providerID, from, to string, counts map[SlotStatus]int64) *ProviderStatistics {
	stats := &ProviderStatistics{
		ProviderID: providerID,
		From:       from,
		To:         to,
		Available:  counts[SlotAvailable],
		Pending:    counts[SlotPendingConfirmation],
		Booked:     counts[SlotBooked],
		Completed:  counts[SlotCompleted],
		Cancelled:  counts[SlotCancelled],
		NoShow:     counts[SlotNoShow],
	}
	for _, n := range counts {
		stats.Total += n
	}
	if stats.Total > 0 {
		stats.UtilizationRate = float64(stats.Booked+stats.Completed) / float64(stats.Total)
	}
	return stats
}
