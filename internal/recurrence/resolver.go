package recurrence

import (
	"fmt"
	"iter"
	"time"

	"carecal/pkg/model"
)

// Occurrence is one calendar instance of a rule: a civil day and a
// [StartMin, EndMin) time-of-day range in minutes.
type Occurrence struct {
	Day      time.Time
	StartMin int
	EndMin   int
}

func (o Occurrence) Date() string      { return FormatDate(o.Day) }
func (o Occurrence) StartTime() string { return FormatClock(o.StartMin) }
func (o Occurrence) EndTime() string   { return FormatClock(o.EndMin) }

// SlotWindow is a bookable unit inside an occurrence.
type SlotWindow struct {
	Day      time.Time
	StartMin int
	EndMin   int
}

func (w SlotWindow) Date() string      { return FormatDate(w.Day) }
func (w SlotWindow) StartTime() string { return FormatClock(w.StartMin) }
func (w SlotWindow) EndTime() string   { return FormatClock(w.EndMin) }

func (w SlotWindow) StartsAt(loc *time.Location) time.Time {
	return At(w.Day, w.StartMin, loc).UTC()
}

// Schedule is the parsed, immutable form of a rule used by the resolver and
// the conflict detector.
type Schedule struct {
	Pattern  Pattern
	Start    time.Time
	End      time.Time // zero when open-ended, inclusive otherwise
	StartMin int
	EndMin   int
	Duration int
	Buffer   int
	Location *time.Location
	excluded map[string]struct{}
}

// Compile parses a rule. It does not enforce business invariants beyond what is
// needed to resolve the rule; that is the validator's job.
func Compile(rule *model.AvailabilityRule) (*Schedule, error) {
	pattern, err := PatternOf(rule)
	if err != nil {
		return nil, err
	}

	start, err := ParseDate(rule.StartDate)
	if err != nil {
		return nil, err
	}

	var end time.Time
	if rule.EndDate != "" {
		if end, err = ParseDate(rule.EndDate); err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, fmt.Errorf("end date %s is before start date %s", rule.EndDate, rule.StartDate)
		}
	}

	startMin, err := ParseClock(rule.StartTime)
	if err != nil {
		return nil, err
	}
	endMin, err := ParseClock(rule.EndTime)
	if err != nil {
		return nil, err
	}
	if endMin <= startMin {
		return nil, fmt.Errorf("end time %s must be after start time %s", rule.EndTime, rule.StartTime)
	}

	loc, err := LoadLocation(rule.TimeZone)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(rule.ExcludedDates))
	for _, s := range rule.ExcludedDates {
		d, err := ParseDate(s)
		if err != nil {
			return nil, err
		}
		excluded[FormatDate(d)] = struct{}{}
	}

	return &Schedule{
		Pattern:  pattern,
		Start:    start,
		End:      end,
		StartMin: startMin,
		EndMin:   endMin,
		Duration: rule.SlotDurationMinutes,
		Buffer:   rule.BufferMinutes,
		Location: loc,
		excluded: excluded,
	}, nil
}

func (s *Schedule) OpenEnded() bool {
	return s.End.IsZero()
}

func (s *Schedule) Excludes(day time.Time) bool {
	_, ok := s.excluded[FormatDate(day)]
	return ok
}

// ExcludedCount is the number of distinct excluded dates.
func (s *Schedule) ExcludedCount() int {
	return len(s.excluded)
}

// InRange reports whether day lies in the rule's active date range.
func (s *Schedule) InRange(day time.Time) bool {
	if day.Before(s.Start) {
		return false
	}
	return s.OpenEnded() || !day.After(s.End)
}

// OccursOn reports whether the rule produces an occurrence on day.
func (s *Schedule) OccursOn(day time.Time) bool {
	return s.InRange(day) && s.Pattern.AppliesOn(day) && !s.Excludes(day)
}

// Occurrences yields the occurrences inside the closed window [from, to] in
// date order. The sequence is restartable: every range over it starts afresh.
func (s *Schedule) Occurrences(from, to time.Time) iter.Seq[Occurrence] {
	return func(yield func(Occurrence) bool) {
		lo, hi := from, to
		if lo.Before(s.Start) {
			lo = s.Start
		}
		if !s.OpenEnded() && hi.After(s.End) {
			hi = s.End
		}
		if hi.Before(lo) {
			return
		}
		for day := range s.Pattern.days(lo, hi) {
			if s.Excludes(day) {
				continue
			}
			if !yield(Occurrence{Day: day, StartMin: s.StartMin, EndMin: s.EndMin}) {
				return
			}
		}
	}
}

// SlotsPerOccurrence is floor((end-start) / (duration+buffer)).
func (s *Schedule) SlotsPerOccurrence() int {
	return SlotsPerOccurrence(s.StartMin, s.EndMin, s.Duration, s.Buffer)
}

// Subdivide splits an occurrence into duration-wide slots separated by buffer.
func (s *Schedule) Subdivide(o Occurrence) []SlotWindow {
	n := SlotsPerOccurrence(o.StartMin, o.EndMin, s.Duration, s.Buffer)
	windows := make([]SlotWindow, 0, n)
	step := s.Duration + s.Buffer
	for k := 0; k < n; k++ {
		start := o.StartMin + k*step
		windows = append(windows, SlotWindow{Day: o.Day, StartMin: start, EndMin: start + s.Duration})
	}
	return windows
}

// Slots yields every slot window of every occurrence in [from, to].
func (s *Schedule) Slots(from, to time.Time) iter.Seq[SlotWindow] {
	return func(yield func(SlotWindow) bool) {
		for o := range s.Occurrences(from, to) {
			for _, w := range s.Subdivide(o) {
				if !yield(w) {
					return
				}
			}
		}
	}
}

func SlotsPerOccurrence(startMin, endMin, duration, buffer int) int {
	step := duration + buffer
	if step <= 0 || endMin <= startMin {
		return 0
	}
	return (endMin - startMin) / step
}

// Resolve compiles rule and returns its occurrences in [from, to], both
// YYYY-MM-DD and inclusive.
func Resolve(rule *model.AvailabilityRule, from, to string) (iter.Seq[Occurrence], error) {
	s, err := Compile(rule)
	if err != nil {
		return nil, err
	}
	lo, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	hi, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	return s.Occurrences(lo, hi), nil
}
