package model

import (
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type RecurrenceKind string

const (
	RecurrenceOneTime RecurrenceKind = "ONE_TIME"
	RecurrenceDaily   RecurrenceKind = "DAILY"
	RecurrenceWeekly  RecurrenceKind = "WEEKLY"
	RecurrenceCustom  RecurrenceKind = "CUSTOM"
)

func (k RecurrenceKind) Valid() bool {
	switch k {
	case RecurrenceOneTime, RecurrenceDaily, RecurrenceWeekly, RecurrenceCustom:
		return true
	}
	return false
}

type LocationKind string

const (
	LocationInPerson LocationKind = "IN_PERSON"
	LocationVirtual  LocationKind = "VIRTUAL"
)

func (k LocationKind) Valid() bool {
	return k == LocationInPerson || k == LocationVirtual
}

type AppointmentKind string

const (
	AppointmentConsultation   AppointmentKind = "CONSULTATION"
	AppointmentFollowUp       AppointmentKind = "FOLLOW_UP"
	AppointmentProcedure      AppointmentKind = "PROCEDURE"
	AppointmentTherapy        AppointmentKind = "THERAPY"
	AppointmentRoutineCheckup AppointmentKind = "ROUTINE_CHECKUP"
	AppointmentEmergency      AppointmentKind = "EMERGENCY"
)

// MaxMinAdvanceHours is the ceiling on min_advance_booking_hours for each
// appointment kind. The second result is false for unknown kinds.
func (k AppointmentKind) MaxMinAdvanceHours() (int, bool) {
	switch k {
	case AppointmentEmergency:
		return 4, true
	case AppointmentConsultation, AppointmentFollowUp:
		return 48, true
	case AppointmentTherapy:
		return 72, true
	case AppointmentProcedure, AppointmentRoutineCheckup:
		return 168, true
	}
	return 0, false
}

// AvailabilityRule is a provider's recurring or one-time declaration of bookable time.
// Dates are YYYY-MM-DD and times HH:MM, both in TimeZone.
type AvailabilityRule struct {
	ID                     string          `json:"id" bson:"_id"`
	ProviderID             string          `json:"provider_id" bson:"provider_id" validate:"required,max=64"`
	Title                  string          `json:"title" bson:"title" validate:"required,min=2,max=100"`
	Description            string          `json:"description,omitempty" bson:"description,omitempty" validate:"max=500"`
	RecurrenceKind         RecurrenceKind  `json:"recurrence_kind" bson:"recurrence_kind" validate:"required,recurrence_kind"`
	DayOfWeek              int             `json:"day_of_week,omitempty" bson:"day_of_week,omitempty" validate:"omitempty,min=1,max=7"`
	CustomDates            []string        `json:"custom_dates,omitempty" bson:"custom_dates,omitempty" validate:"omitempty,max=366,dive,civil_date"`
	StartDate              string          `json:"start_date" bson:"start_date" validate:"required,civil_date"`
	EndDate                string          `json:"end_date,omitempty" bson:"end_date,omitempty" validate:"omitempty,civil_date"`
	StartTime              string          `json:"start_time" bson:"start_time" validate:"required,time_of_day"`
	EndTime                string          `json:"end_time" bson:"end_time" validate:"required,time_of_day"`
	SlotDurationMinutes    int             `json:"slot_duration_minutes" bson:"slot_duration_minutes" validate:"required,min=5,max=480"`
	BufferMinutes          int             `json:"buffer_minutes" bson:"buffer_minutes" validate:"min=0,max=120"`
	TimeZone               string          `json:"time_zone" bson:"time_zone" validate:"required,timezone"`
	LocationKind           LocationKind    `json:"location_kind" bson:"location_kind" validate:"required,location_kind"`
	LocationDetails        string          `json:"location_details,omitempty" bson:"location_details,omitempty" validate:"max=300"`
	AppointmentKind        AppointmentKind `json:"appointment_kind" bson:"appointment_kind" validate:"required,appointment_kind"`
	MaxAdvanceBookingDays  int             `json:"max_advance_booking_days" bson:"max_advance_booking_days" validate:"min=1,max=365"`
	MinAdvanceBookingHours int             `json:"min_advance_booking_hours" bson:"min_advance_booking_hours" validate:"min=0"`
	AllowOnlineBooking     bool            `json:"allow_online_booking" bson:"allow_online_booking"`
	RequiresApproval       bool            `json:"requires_approval" bson:"requires_approval"`
	ExcludedDates          []string        `json:"excluded_dates,omitempty" bson:"excluded_dates,omitempty" validate:"omitempty,max=366,dive,civil_date"`
	IsActive               bool            `json:"is_active" bson:"is_active"`
	CreatedAt              time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at" bson:"updated_at"`
}

// IsExcluded reports whether date (YYYY-MM-DD) is in the rule's exclusion set.
func (r *AvailabilityRule) IsExcluded(date string) bool {
	for _, d := range r.ExcludedDates {
		if d == date {
			return true
		}
	}
	return false
}

// AvailabilityRuleUpdate is a partial update merged onto a stored rule before the
// merged rule is validated as a whole. Nil fields are left unchanged.
type AvailabilityRuleUpdate struct {
	Title                  *string          `json:"title,omitempty"`
	Description            *string          `json:"description,omitempty"`
	RecurrenceKind         *RecurrenceKind  `json:"recurrence_kind,omitempty"`
	DayOfWeek              *int             `json:"day_of_week,omitempty"`
	CustomDates            *[]string        `json:"custom_dates,omitempty"`
	StartDate              *string          `json:"start_date,omitempty"`
	EndDate                *string          `json:"end_date,omitempty"`
	StartTime              *string          `json:"start_time,omitempty"`
	EndTime                *string          `json:"end_time,omitempty"`
	SlotDurationMinutes    *int             `json:"slot_duration_minutes,omitempty"`
	BufferMinutes          *int             `json:"buffer_minutes,omitempty"`
	TimeZone               *string          `json:"time_zone,omitempty"`
	LocationKind           *LocationKind    `json:"location_kind,omitempty"`
	LocationDetails        *string          `json:"location_details,omitempty"`
	AppointmentKind        *AppointmentKind `json:"appointment_kind,omitempty"`
	MaxAdvanceBookingDays  *int             `json:"max_advance_booking_days,omitempty"`
	MinAdvanceBookingHours *int             `json:"min_advance_booking_hours,omitempty"`
	AllowOnlineBooking     *bool            `json:"allow_online_booking,omitempty"`
	RequiresApproval       *bool            `json:"requires_approval,omitempty"`
	ExcludedDates          *[]string        `json:"excluded_dates,omitempty"`
}

// Apply returns a copy of rule with the non-nil fields of u applied.
func (u *AvailabilityRuleUpdate) Apply(rule *AvailabilityRule) *AvailabilityRule {
	merged := *rule
	merged.CustomDates = append([]string(nil), rule.CustomDates...)
	merged.ExcludedDates = append([]string(nil), rule.ExcludedDates...)

	if u.Title != nil {
		merged.Title = *u.Title
	}
	if u.Description != nil {
		merged.Description = *u.Description
	}
	if u.RecurrenceKind != nil {
		merged.RecurrenceKind = *u.RecurrenceKind
	}
	if u.DayOfWeek != nil {
		merged.DayOfWeek = *u.DayOfWeek
	}
	if u.CustomDates != nil {
		merged.CustomDates = append([]string(nil), (*u.CustomDates)...)
	}
	if u.StartDate != nil {
		merged.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		merged.EndDate = *u.EndDate
	}
	if u.StartTime != nil {
		merged.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		merged.EndTime = *u.EndTime
	}
	if u.SlotDurationMinutes != nil {
		merged.SlotDurationMinutes = *u.SlotDurationMinutes
	}
	if u.BufferMinutes != nil {
		merged.BufferMinutes = *u.BufferMinutes
	}
	if u.TimeZone != nil {
		merged.TimeZone = *u.TimeZone
	}
	if u.LocationKind != nil {
		merged.LocationKind = *u.LocationKind
	}
	if u.LocationDetails != nil {
		merged.LocationDetails = *u.LocationDetails
	}
	if u.AppointmentKind != nil {
		merged.AppointmentKind = *u.AppointmentKind
	}
	if u.MaxAdvanceBookingDays != nil {
		merged.MaxAdvanceBookingDays = *u.MaxAdvanceBookingDays
	}
	if u.MinAdvanceBookingHours != nil {
		merged.MinAdvanceBookingHours = *u.MinAdvanceBookingHours
	}
	if u.AllowOnlineBooking != nil {
		merged.AllowOnlineBooking = *u.AllowOnlineBooking
	}
	if u.RequiresApproval != nil {
		merged.RequiresApproval = *u.RequiresApproval
	}
	if u.ExcludedDates != nil {
		merged.ExcludedDates = append([]string(nil), (*u.ExcludedDates)...)
	}
	return &merged
}
