package conflict

import (
	"testing"
	"time"

	"carecal/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(id string, kind model.RecurrenceKind, start, end string) *model.AvailabilityRule {
	r := &model.AvailabilityRule{
		ID:                  id,
		ProviderID:          "prov-1",
		Title:               "Rule " + id,
		RecurrenceKind:      kind,
		StartDate:           "2024-01-01",
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: 30,
		TimeZone:            "UTC",
		IsActive:            true,
	}
	if kind == model.RecurrenceWeekly {
		r.DayOfWeek = 1
	}
	return r
}

func TestWindowsOverlap(t *testing.T) {
	tests := []struct {
		name         string
		aStart, aEnd int
		bStart, bEnd int
		expected     bool
	}{
		{"identical", 540, 720, 540, 720, true},
		{"partial", 540, 720, 660, 780, true},
		{"contained", 540, 720, 600, 630, true},
		{"touching end to start", 540, 720, 720, 780, false},
		{"touching start to end", 720, 780, 540, 720, false},
		{"disjoint", 540, 600, 660, 720, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WindowsOverlap(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd))
			assert.Equal(t, tt.expected, WindowsOverlap(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd))
		})
	}
}

func TestRulesConflict(t *testing.T) {
	tests := []struct {
		name     string
		a, b     func() *model.AvailabilityRule
		expected bool
	}{
		{
			name:     "same weekday overlapping hours",
			a:        func() *model.AvailabilityRule { return rule("a", model.RecurrenceWeekly, "09:00", "12:00") },
			b:        func() *model.AvailabilityRule { return rule("b", model.RecurrenceWeekly, "11:00", "13:00") },
			expected: true,
		},
		{
			name:     "same weekday adjacent hours",
			a:        func() *model.AvailabilityRule { return rule("a", model.RecurrenceWeekly, "09:00", "12:00") },
			b:        func() *model.AvailabilityRule { return rule("b", model.RecurrenceWeekly, "12:00", "15:00") },
			expected: false,
		},
		{
			name: "different weekdays overlapping hours",
			a:    func() *model.AvailabilityRule { return rule("a", model.RecurrenceWeekly, "09:00", "12:00") },
			b: func() *model.AvailabilityRule {
				r := rule("b", model.RecurrenceWeekly, "09:00", "12:00")
				r.DayOfWeek = 2
				return r
			},
			expected: false,
		},
		{
			name:     "daily against weekly",
			a:        func() *model.AvailabilityRule { return rule("a", model.RecurrenceDaily, "08:00", "10:00") },
			b:        func() *model.AvailabilityRule { return rule("b", model.RecurrenceWeekly, "09:30", "11:00") },
			expected: true,
		},
		{
			name: "disjoint date ranges",
			a: func() *model.AvailabilityRule {
				r := rule("a", model.RecurrenceDaily, "09:00", "12:00")
				r.EndDate = "2024-01-31"
				return r
			},
			b: func() *model.AvailabilityRule {
				r := rule("b", model.RecurrenceDaily, "09:00", "12:00")
				r.StartDate = "2024-02-01"
				return r
			},
			expected: false,
		},
		{
			name: "one time on a matching weekday",
			a:    func() *model.AvailabilityRule { return rule("a", model.RecurrenceWeekly, "09:00", "12:00") },
			b: func() *model.AvailabilityRule {
				r := rule("b", model.RecurrenceOneTime, "10:00", "10:30")
				r.StartDate = "2024-06-03" // Monday
				return r
			},
			expected: true,
		},
		{
			name: "one time on another weekday",
			a:    func() *model.AvailabilityRule { return rule("a", model.RecurrenceWeekly, "09:00", "12:00") },
			b: func() *model.AvailabilityRule {
				r := rule("b", model.RecurrenceOneTime, "10:00", "10:30")
				r.StartDate = "2024-06-04" // Tuesday
				return r
			},
			expected: false,
		},
		{
			name: "one time on an excluded date",
			a: func() *model.AvailabilityRule {
				r := rule("a", model.RecurrenceWeekly, "09:00", "12:00")
				r.ExcludedDates = []string{"2024-06-03"}
				return r
			},
			b: func() *model.AvailabilityRule {
				r := rule("b", model.RecurrenceOneTime, "10:00", "10:30")
				r.StartDate = "2024-06-03"
				return r
			},
			expected: false,
		},
		{
			name: "custom date far in the future against open daily",
			a:    func() *model.AvailabilityRule { return rule("a", model.RecurrenceDaily, "09:00", "12:00") },
			b: func() *model.AvailabilityRule {
				r := rule("b", model.RecurrenceCustom, "11:00", "11:30")
				r.CustomDates = []string{"2030-07-15"}
				return r
			},
			expected: true,
		},
		{
			name: "exclusions do not hide a later weekly clash",
			a: func() *model.AvailabilityRule {
				r := rule("a", model.RecurrenceWeekly, "09:00", "12:00")
				r.ExcludedDates = []string{"2024-01-01", "2024-01-08"}
				return r
			},
			b:        func() *model.AvailabilityRule { return rule("b", model.RecurrenceWeekly, "09:00", "12:00") },
			expected: true,
		},
		{
			name: "unsupported kind fails closed",
			a:    func() *model.AvailabilityRule { return rule("a", model.RecurrenceWeekly, "09:00", "12:00") },
			b: func() *model.AvailabilityRule {
				r := rule("b", "MONTHLY", "18:00", "19:00")
				return r
			},
			expected: true,
		},
		{
			name: "different time zones overlapping instants",
			a:    func() *model.AvailabilityRule { return rule("a", model.RecurrenceDaily, "14:00", "15:00") },
			b: func() *model.AvailabilityRule {
				r := rule("b", model.RecurrenceDaily, "09:00", "10:00")
				r.TimeZone = "America/New_York"
				return r
			},
			expected: true,
		},
		{
			name: "different time zones disjoint instants",
			a:    func() *model.AvailabilityRule { return rule("a", model.RecurrenceDaily, "09:00", "10:00") },
			b: func() *model.AvailabilityRule {
				r := rule("b", model.RecurrenceDaily, "09:00", "10:00")
				r.TimeZone = "America/New_York"
				return r
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := tt.a(), tt.b()
			got, _ := RulesConflict(a, b)
			assert.Equal(t, tt.expected, got)
			symmetric, _ := RulesConflict(b, a)
			assert.Equal(t, tt.expected, symmetric)
		})
	}
}

func TestRulesConflict_ReportsFirstSharedDate(t *testing.T) {
	a := rule("a", model.RecurrenceWeekly, "09:00", "12:00")
	a.StartDate = "2024-01-03"
	b := rule("b", model.RecurrenceDaily, "10:00", "11:00")

	clash, date := RulesConflict(a, b)
	require.True(t, clash)
	assert.Equal(t, "2024-01-08", date)
}

func TestFindConflicts(t *testing.T) {
	candidate := rule("cand", model.RecurrenceWeekly, "09:00", "12:00")

	inactive := rule("inactive", model.RecurrenceWeekly, "09:00", "12:00")
	inactive.IsActive = false
	otherProvider := rule("other-provider", model.RecurrenceWeekly, "09:00", "12:00")
	otherProvider.ProviderID = "prov-2"
	self := rule("cand", model.RecurrenceWeekly, "09:00", "12:00")
	clashing := rule("clash", model.RecurrenceDaily, "11:30", "12:30")
	afternoon := rule("afternoon", model.RecurrenceDaily, "13:00", "17:00")

	conflicts := FindConflicts(candidate, []*model.AvailabilityRule{inactive, otherProvider, self, clashing, afternoon, nil})

	require.Len(t, conflicts, 1)
	assert.Equal(t, "clash", conflicts[0].RuleID)
	assert.Equal(t, ReasonOverlap, conflicts[0].Reason)
	assert.Equal(t, "2024-01-01", conflicts[0].Date)
}

func TestFindConflicts_UncompilableCandidateFailsClosed(t *testing.T) {
	candidate := rule("cand", model.RecurrenceWeekly, "09:00", "12:00")
	candidate.TimeZone = "Mars/Olympus_Mons"
	existing := rule("existing", model.RecurrenceDaily, "18:00", "19:00")

	conflicts := FindConflicts(candidate, []*model.AvailabilityRule{existing})

	require.Len(t, conflicts, 1)
	assert.Equal(t, ReasonUnresolved, conflicts[0].Reason)
}

func TestSlotClashes(t *testing.T) {
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	slot := func(id string, offset time.Duration, status model.SlotStatus) *model.Slot {
		return &model.Slot{ID: id, StartsAt: base.Add(offset), DurationMinutes: 30, Status: status}
	}

	held := []*model.Slot{
		slot("booked-overlap", 15*time.Minute, model.SlotBooked),
		slot("pending-overlap", 0, model.SlotPendingConfirmation),
		slot("available-overlap", 0, model.SlotAvailable),
		slot("booked-adjacent", 30*time.Minute, model.SlotBooked),
		slot("self", 0, model.SlotBooked),
	}

	clashes := SlotClashes(base, base.Add(30*time.Minute), "self", held)

	ids := make([]string, 0, len(clashes))
	for _, c := range clashes {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"booked-overlap", "pending-overlap"}, ids)
}
