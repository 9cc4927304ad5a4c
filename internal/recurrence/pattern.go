package recurrence

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"carecal/pkg/model"
)

var ErrUnsupportedRecurrence = errors.New("unsupported recurrence kind")

// Pattern is the closed set of recurrence shapes. Implementations live in this
// package only; callers switch over OneTime, Daily, Weekly and Custom.
type Pattern interface {
	Kind() model.RecurrenceKind
	// AppliesOn reports whether the pattern places an occurrence on day,
	// ignoring the rule's active range and exclusions.
	AppliesOn(day time.Time) bool
	// days yields candidate days in [lo, hi] in ascending order.
	days(lo, hi time.Time) iter.Seq[time.Time]
	sealed()
}

type OneTime struct {
	Date time.Time
}

type Daily struct{}

type Weekly struct {
	Day time.Weekday
}

// Custom is an explicit, sorted and deduplicated occurrence list.
type Custom struct {
	Dates []time.Time
}

func (OneTime) Kind() model.RecurrenceKind { return model.RecurrenceOneTime }
func (Daily) Kind() model.RecurrenceKind   { return model.RecurrenceDaily }
func (Weekly) Kind() model.RecurrenceKind  { return model.RecurrenceWeekly }
func (Custom) Kind() model.RecurrenceKind  { return model.RecurrenceCustom }

func (OneTime) sealed() {}
func (Daily) sealed()   {}
func (Weekly) sealed()  {}
func (Custom) sealed()  {}

func (p OneTime) AppliesOn(day time.Time) bool { return day.Equal(p.Date) }
func (Daily) AppliesOn(time.Time) bool         { return true }
func (p Weekly) AppliesOn(day time.Time) bool  { return day.Weekday() == p.Day }

func (p Custom) AppliesOn(day time.Time) bool {
	_, found := slices.BinarySearchFunc(p.Dates, day, time.Time.Compare)
	return found
}

func (p OneTime) days(lo, hi time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if !p.Date.Before(lo) && !p.Date.After(hi) {
			yield(p.Date)
		}
	}
}

func (Daily) days(lo, hi time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := lo; !d.After(hi); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

func (p Weekly) days(lo, hi time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		offset := (int(p.Day) - int(lo.Weekday()) + 7) % 7
		for d := lo.AddDate(0, 0, offset); !d.After(hi); d = d.AddDate(0, 0, 7) {
			if !yield(d) {
				return
			}
		}
	}
}

func (p Custom) days(lo, hi time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for _, d := range p.Dates {
			if d.Before(lo) {
				continue
			}
			if d.After(hi) || !yield(d) {
				return
			}
		}
	}
}

// PatternOf builds the pattern a rule declares. Unknown kinds and missing
// kind-specific fields are errors.
func PatternOf(rule *model.AvailabilityRule) (Pattern, error) {
	switch rule.RecurrenceKind {
	case model.RecurrenceOneTime:
		start, err := ParseDate(rule.StartDate)
		if err != nil {
			return nil, err
		}
		return OneTime{Date: start}, nil
	case model.RecurrenceDaily:
		return Daily{}, nil
	case model.RecurrenceWeekly:
		wd, err := ISOWeekday(rule.DayOfWeek)
		if err != nil {
			return nil, err
		}
		return Weekly{Day: wd}, nil
	case model.RecurrenceCustom:
		if len(rule.CustomDates) == 0 {
			return nil, fmt.Errorf("custom recurrence requires at least one date")
		}
		dates := make([]time.Time, 0, len(rule.CustomDates))
		for _, s := range rule.CustomDates {
			d, err := ParseDate(s)
			if err != nil {
				return nil, err
			}
			dates = append(dates, d)
		}
		slices.SortFunc(dates, time.Time.Compare)
		dates = slices.CompactFunc(dates, time.Time.Equal)
		return Custom{Dates: dates}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRecurrence, rule.RecurrenceKind)
	}
}
