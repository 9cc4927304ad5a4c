package conflict

import (
	"time"

	"carecal/internal/recurrence"
	"carecal/pkg/model"
)

// maxScanDays bounds the date walk over a closed intersection. Longer overlaps
// are reported as conflicting.
const maxScanDays = 366 * 5

// Reason explains why two rules were reported as conflicting.
type Reason string

const (
	ReasonOverlap    Reason = "overlap"
	ReasonUnresolved Reason = "unresolved"
)

// Conflict is one existing rule that clashes with a candidate.
type Conflict struct {
	RuleID string `json:"rule_id"`
	Title  string `json:"title"`
	// Date is the first day both rules occur on, empty when unresolved.
	Date   string `json:"date,omitempty"`
	Reason Reason `json:"reason"`
}

// WindowsOverlap is half-open interval overlap: NOT (aEnd <= bStart OR aStart >= bEnd).
func WindowsOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return !(aEnd <= bStart || aStart >= bEnd)
}

// InstantsOverlap is WindowsOverlap over instants.
func InstantsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !(!aEnd.After(bStart) || !aStart.Before(bEnd))
}

// RulesConflict reports whether a and b occupy the same time on at least one
// shared day. Rules that cannot be compiled are treated as conflicting.
func RulesConflict(a, b *model.AvailabilityRule) (bool, string) {
	sa, err := recurrence.Compile(a)
	if err != nil {
		return true, ""
	}
	sb, err := recurrence.Compile(b)
	if err != nil {
		return true, ""
	}
	return schedulesConflict(sa, sb)
}

func schedulesConflict(a, b *recurrence.Schedule) (bool, string) {
	sameZone := a.Location.String() == b.Location.String()
	if sameZone && !WindowsOverlap(a.StartMin, a.EndMin, b.StartMin, b.EndMin) {
		return false, ""
	}

	lo := a.Start
	if b.Start.After(lo) {
		lo = b.Start
	}

	aEnd, aBounded := lastDay(a)
	bEnd, bBounded := lastDay(b)

	var hi time.Time
	switch {
	case aBounded && bBounded:
		hi = aEnd
		if bEnd.Before(hi) {
			hi = bEnd
		}
	case aBounded:
		hi = aEnd
	case bBounded:
		hi = bEnd
	default:
		// Both patterns repeat at least weekly and each exclusion removes at
		// most one candidate day, so this many weeks always decides.
		hi = lo.AddDate(0, 0, 7*(1+a.ExcludedCount()+b.ExcludedCount())-1)
	}
	if hi.Before(lo) {
		return false, ""
	}

	// Walk the sparser schedule and test days against the other.
	walk, check := a, b
	if fixedDates(b.Pattern) && !fixedDates(a.Pattern) {
		walk, check = b, a
	}
	if !fixedDates(walk.Pattern) && hi.Sub(lo) > maxScanDays*24*time.Hour {
		return true, ""
	}

	if sameZone {
		for day := range walk.Occurrences(lo, hi) {
			if check.OccursOn(day.Day) {
				return true, day.Date()
			}
		}
		return false, ""
	}

	// Across zones an occurrence can meet the other rule's previous or next
	// civil day, so compare instants.
	for day := range walk.Occurrences(lo.AddDate(0, 0, -1), hi.AddDate(0, 0, 1)) {
		ws := recurrence.At(day.Day, walk.StartMin, walk.Location)
		we := recurrence.At(day.Day, walk.EndMin, walk.Location)
		for delta := -1; delta <= 1; delta++ {
			other := day.Day.AddDate(0, 0, delta)
			if !check.OccursOn(other) {
				continue
			}
			ps := recurrence.At(other, check.StartMin, check.Location)
			pe := recurrence.At(other, check.EndMin, check.Location)
			if InstantsOverlap(ws, we, ps, pe) {
				return true, day.Date()
			}
		}
	}
	return false, ""
}

// lastDay is the last day a schedule can occur on, if it has one.
func lastDay(s *recurrence.Schedule) (time.Time, bool) {
	switch p := s.Pattern.(type) {
	case recurrence.OneTime:
		return p.Date, true
	case recurrence.Custom:
		last := p.Dates[len(p.Dates)-1]
		if !s.OpenEnded() && s.End.Before(last) {
			last = s.End
		}
		return last, true
	case recurrence.Daily, recurrence.Weekly:
		return s.End, !s.OpenEnded()
	default:
		return time.Time{}, false
	}
}

func fixedDates(p recurrence.Pattern) bool {
	switch p.(type) {
	case recurrence.OneTime, recurrence.Custom:
		return true
	case recurrence.Daily, recurrence.Weekly:
		return false
	default:
		return false
	}
}

// FindConflicts checks candidate against the provider's other rules. Inactive
// rules, rules of other providers and the candidate itself are skipped.
func FindConflicts(candidate *model.AvailabilityRule, others []*model.AvailabilityRule) []Conflict {
	sc, candErr := recurrence.Compile(candidate)

	var conflicts []Conflict
	for _, other := range others {
		if other == nil || !other.IsActive || other.ProviderID != candidate.ProviderID {
			continue
		}
		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}

		if candErr != nil {
			conflicts = append(conflicts, Conflict{RuleID: other.ID, Title: other.Title, Reason: ReasonUnresolved})
			continue
		}
		so, err := recurrence.Compile(other)
		if err != nil {
			conflicts = append(conflicts, Conflict{RuleID: other.ID, Title: other.Title, Reason: ReasonUnresolved})
			continue
		}

		if clash, date := schedulesConflict(sc, so); clash {
			reason := ReasonOverlap
			if date == "" {
				reason = ReasonUnresolved
			}
			conflicts = append(conflicts, Conflict{RuleID: other.ID, Title: other.Title, Date: date, Reason: reason})
		}
	}
	return conflicts
}

// SlotClashes returns the slots in held that overlap [start, end) on the same
// provider, ignoring the slot with excludeID.
func SlotClashes(start, end time.Time, excludeID string, held []*model.Slot) []*model.Slot {
	var clashes []*model.Slot
	for _, s := range held {
		if s == nil || s.ID == excludeID || !s.Status.Held() {
			continue
		}
		if InstantsOverlap(start, end, s.StartsAt, s.EndsAt()) {
			clashes = append(clashes, s)
		}
	}
	return clashes
}
