package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlot_Available(t *testing.T) {
	tests := []struct {
		status   SlotStatus
		disabled bool
		want     bool
	}{
		{SlotAvailable, false, true},
		{SlotCancelled, false, true},
		{SlotNoShow, false, true},
		{SlotPendingConfirmation, false, false},
		{SlotBooked, false, false},
		{SlotCompleted, false, false},
		{SlotAvailable, true, false},
		{SlotCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			s := &Slot{Status: tt.status, Disabled: tt.disabled}
			s.Refresh()
			assert.Equal(t, tt.want, s.IsAvailable)
		})
	}
}

func TestSlot_CloneDoesNotAlias(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := &Slot{ID: "s", StartsAt: at, DurationMinutes: 45, RequestedAt: &at}

	c := s.Clone()
	*c.RequestedAt = at.Add(time.Hour)

	assert.Equal(t, at, *s.RequestedAt)
	assert.Equal(t, at.Add(45*time.Minute), s.EndsAt())
}

func TestSlotFilter_Matches(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := &Slot{ProviderID: "p", RuleID: "r", Date: "2024-03-04", StartsAt: at, Status: SlotBooked}

	assert.True(t, SlotFilter{}.Matches(s))
	assert.True(t, SlotFilter{From: "2024-03-04", To: "2024-03-04"}.Matches(s))
	assert.False(t, SlotFilter{From: "2024-03-05"}.Matches(s))
	assert.True(t, SlotFilter{StartsFrom: at, StartsBefore: at.Add(time.Minute)}.Matches(s))
	assert.False(t, SlotFilter{StartsBefore: at}.Matches(s), "upper bound is exclusive")
	assert.False(t, SlotFilter{Statuses: []SlotStatus{SlotAvailable}}.Matches(s))

	s.Disabled = true
	assert.False(t, SlotFilter{}.Matches(s))
	assert.True(t, SlotFilter{IncludeDisabled: true}.Matches(s))
}

func TestNewProviderStatistics(t *testing.T) {
	stats := NewProviderStatistics("p", "2024-03-01", "2024-03-31", map[SlotStatus]int64{
		SlotAvailable: 5,
		SlotBooked:    3,
		SlotCompleted: 1,
		SlotCancelled: 1,
	})
	assert.EqualValues(t, 10, stats.Total)
	assert.InDelta(t, 0.4, stats.UtilizationRate, 1e-9)

	empty := NewProviderStatistics("p", "2024-03-01", "2024-03-31", nil)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.UtilizationRate)
}

func TestAvailabilityRuleUpdate_Apply(t *testing.T) {
	rule := &AvailabilityRule{
		Title:         "Clinic",
		StartTime:     "09:00",
		EndTime:       "12:00",
		ExcludedDates: []string{"2024-03-04"},
	}
	title := "Evening clinic"
	excluded := []string{"2024-03-11"}

	merged := (&AvailabilityRuleUpdate{Title: &title, ExcludedDates: &excluded}).Apply(rule)
	require.NotSame(t, rule, merged)
	assert.Equal(t, "Evening clinic", merged.Title)
	assert.Equal(t, "09:00", merged.StartTime)
	assert.Equal(t, []string{"2024-03-11"}, merged.ExcludedDates)

	excluded[0] = "2024-03-18"
	assert.Equal(t, "2024-03-11", merged.ExcludedDates[0])
	assert.Equal(t, "Clinic", rule.Title)
	assert.Equal(t, []string{"2024-03-04"}, rule.ExcludedDates)
}

func TestActor_Permissions(t *testing.T) {
	provider := Actor{ID: "p1", Role: ActorProvider}
	staff := Actor{ID: "s1", Role: ActorStaff}
	patient := Actor{ID: "pat", Role: ActorPatient}

	assert.True(t, provider.CanManage("p1"))
	assert.False(t, provider.CanManage("p2"))
	assert.True(t, staff.CanManage("p2"))
	assert.False(t, patient.CanManage("pat"))
	assert.True(t, patient.IsPatient("pat"))
	assert.False(t, Actor{Role: ActorStaff}.CanManage("p1"))
}

func TestAppointmentKind_MaxMinAdvanceHours(t *testing.T) {
	h, ok := AppointmentEmergency.MaxMinAdvanceHours()
	assert.True(t, ok)
	assert.Equal(t, 4, h)

	_, ok = AppointmentKind("SURGERY").MaxMinAdvanceHours()
	assert.False(t, ok)
}
