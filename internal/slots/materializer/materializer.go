// Package materializer expands a rule's occurrences into persisted AVAILABLE
// slots and reconciles slots the rule no longer implies.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carecal/internal/recurrence"
	slotserrors "carecal/internal/slots/errors"
	"carecal/internal/slots/repository"
	"carecal/pkg/logger"
	"carecal/pkg/model"

	"github.com/google/uuid"
)

type Policy string

const (
	// PolicyDisable soft-disables orphaned AVAILABLE slots.
	PolicyDisable Policy = "disable"
	// PolicyDelete removes orphaned AVAILABLE slots. Orphaned CANCELLED slots
	// keep their history and are soft-disabled under either policy.
	PolicyDelete Policy = "delete"
)

type Result struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Adopted  int `json:"adopted"`
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
	Deleted  int `json:"deleted"`
}

// RuleActive reports whether a rule still offers its slots. A rule that no
// longer exists is inactive.
type RuleActive func(ctx context.Context, ruleID string) (bool, error)

type Materializer struct {
	repo   repository.SlotRepository
	policy Policy
	active RuleActive
	log    *logger.Logger
	now    func() time.Time
}

func New(repo repository.SlotRepository, policy Policy, log *logger.Logger) *Materializer {
	if policy != PolicyDelete {
		policy = PolicyDisable
	}
	return &Materializer{
		repo:   repo,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

// WithClock replaces the wall clock, for tests and replays.
func (m *Materializer) WithClock(now func() time.Time) *Materializer {
	m.now = now
	return m
}

// WithRuleActive lets a rule take over unclaimed slots whose owning rule is
// inactive. Without it only soft-disabled slots change hands.
func (m *Materializer) WithRuleActive(active RuleActive) *Materializer {
	m.active = active
	return m
}

// Materialize inserts the slots rule implies in [from, to] and reconciles
// every stored slot of the rule from from onwards, including slots an earlier
// run placed beyond to. Empty bounds, and bounds outside
// [today, today+max_advance_booking_days] in the rule's zone, are clamped.
// It is safe to run concurrently with itself: inserts never overwrite and a
// row created by a racing run counts as existing.
func (m *Materializer) Materialize(ctx context.Context, rule *model.AvailabilityRule, from, to string) (Result, error) {
	var res Result
	if !rule.IsActive {
		return res, nil
	}

	sched, err := recurrence.Compile(rule)
	if err != nil {
		return res, fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
	}

	now := m.now().UTC()
	lo, hi, err := window(now, sched.Location, rule.MaxAdvanceBookingDays, from, to)
	if err != nil {
		return res, err
	}
	if hi.Before(lo) {
		return res, nil
	}

	stored, err := m.repo.List(ctx, model.SlotFilter{
		RuleID:          rule.ID,
		From:            recurrence.FormatDate(lo),
		IncludeDisabled: true,
	}, 0, 0)
	if err != nil {
		return res, err
	}

	horizon := recurrence.DayOf(now, sched.Location).AddDate(0, 0, rule.MaxAdvanceBookingDays)
	reconcileTo := hi
	byKey := make(map[string]*model.Slot, len(stored))
	for _, s := range stored {
		byKey[s.Key()] = s
		day, err := recurrence.ParseDate(s.Date)
		if err != nil {
			return res, fmt.Errorf("slot %s has a malformed date: %w", s.ID, err)
		}
		if day.After(reconcileTo) {
			reconcileTo = day
		}
	}
	if reconcileTo.After(horizon) {
		reconcileTo = horizon
	}

	implied := make(map[string]struct{})
	var reenable []string

	for w := range sched.Slots(lo, reconcileTo) {
		slot := m.newSlot(rule, sched.Location, w, now)
		key := slot.Key()
		implied[key] = struct{}{}

		if existing, ok := byKey[key]; ok {
			if existing.Disabled {
				reenable = append(reenable, existing.ID)
			} else {
				res.Existing++
			}
			continue
		}
		if w.Day.After(hi) || slot.StartsAt.Before(now) {
			continue
		}

		inserted, err := m.repo.InsertIfAbsent(ctx, slot)
		if err != nil {
			return res, err
		}
		if inserted {
			res.Created++
			continue
		}
		adopted, err := m.adopt(ctx, slot)
		if err != nil {
			return res, err
		}
		if adopted {
			res.Adopted++
		} else {
			res.Existing++
		}
	}

	var orphans, cancelled []string
	for key, s := range byKey {
		if _, ok := implied[key]; ok || s.Disabled {
			continue
		}
		switch s.Status {
		case model.SlotAvailable:
			orphans = append(orphans, s.ID)
		case model.SlotCancelled:
			cancelled = append(cancelled, s.ID)
		}
	}

	enabled, err := m.repo.SetDisabled(ctx, reenable, false)
	if err != nil {
		return res, err
	}
	res.Enabled = int(enabled)

	switch m.policy {
	case PolicyDelete:
		n, err := m.repo.DeleteAvailable(ctx, orphans)
		if err != nil {
			return res, err
		}
		res.Deleted = int(n)
	default:
		cancelled = append(cancelled, orphans...)
	}
	n, err := m.repo.SetDisabled(ctx, cancelled, true)
	if err != nil {
		return res, err
	}
	res.Disabled = int(n)

	m.log.Debug("Rule materialized",
		"rule_id", rule.ID,
		"provider_id", rule.ProviderID,
		"from", recurrence.FormatDate(lo),
		"to", recurrence.FormatDate(hi),
		"reconciled_to", recurrence.FormatDate(reconcileTo),
		"created", res.Created,
		"existing", res.Existing,
		"adopted", res.Adopted,
		"enabled", res.Enabled,
		"disabled", res.Disabled,
		"deleted", res.Deleted,
	)
	return res, nil
}

// adopt hands the stored slot at want's key over to want's rule when nobody
// claims it and its current rule no longer offers it. Held and finished slots
// never change hands.
func (m *Materializer) adopt(ctx context.Context, want *model.Slot) (bool, error) {
	existing, err := m.repo.FindByKey(ctx, want.ProviderID, want.Date, want.StartTime)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if existing.RuleID == want.RuleID || !existing.Status.Unclaimed() {
		return false, nil
	}
	if !existing.Disabled {
		if m.active == nil {
			return false, nil
		}
		active, err := m.active(ctx, existing.RuleID)
		if err != nil {
			return false, err
		}
		if active {
			return false, nil
		}
	}

	next := existing.Clone()
	next.RuleID = want.RuleID
	next.EndTime = want.EndTime
	next.TimeZone = want.TimeZone
	next.StartsAt = want.StartsAt
	next.DurationMinutes = want.DurationMinutes
	next.Disabled = false
	next.UpdatedAt = want.UpdatedAt
	next.Refresh()

	if _, err := m.repo.CompareAndSwap(ctx, existing, next); err != nil {
		if errors.Is(err, slotserrors.ErrStale) {
			return false, nil
		}
		return false, err
	}
	m.log.Info("Slot adopted by rule",
		"slot_id", existing.ID,
		"rule_id", want.RuleID,
		"previous_rule_id", existing.RuleID,
	)
	return true, nil
}

// Horizon materializes the rule's whole bookable horizon.
func (m *Materializer) Horizon(ctx context.Context, rule *model.AvailabilityRule) (Result, error) {
	return m.Materialize(ctx, rule, "", "")
}

// Days materializes the next n days starting today in the rule's zone.
func (m *Materializer) Days(ctx context.Context, rule *model.AvailabilityRule, n int) (Result, error) {
	loc, err := recurrence.LoadLocation(rule.TimeZone)
	if err != nil {
		return Result{}, err
	}
	today := recurrence.DayOf(m.now(), loc)
	return m.Materialize(ctx, rule, "", recurrence.FormatDate(today.AddDate(0, 0, n-1)))
}

func (m *Materializer) newSlot(rule *model.AvailabilityRule, loc *time.Location, w recurrence.SlotWindow, now time.Time) *model.Slot {
	slot := &model.Slot{
		ID:              uuid.NewString(),
		RuleID:          rule.ID,
		ProviderID:      rule.ProviderID,
		Date:            w.Date(),
		StartTime:       w.StartTime(),
		EndTime:         w.EndTime(),
		TimeZone:        rule.TimeZone,
		StartsAt:        w.StartsAt(loc),
		DurationMinutes: rule.SlotDurationMinutes,
		Status:          model.SlotAvailable,
		CreatedAt:       now.Truncate(time.Millisecond),
		UpdatedAt:       now.Truncate(time.Millisecond),
	}
	slot.Refresh()
	return slot
}

func window(now time.Time, loc *time.Location, maxDays int, from, to string) (time.Time, time.Time, error) {
	lo := recurrence.DayOf(now, loc)
	hi := lo.AddDate(0, 0, maxDays)

	if from != "" {
		d, err := recurrence.ParseDate(from)
		if err != nil {
			return lo, hi, err
		}
		if d.After(lo) {
			lo = d
		}
	}
	if to != "" {
		d, err := recurrence.ParseDate(to)
		if err != nil {
			return lo, hi, err
		}
		if d.Before(hi) {
			hi = d
		}
	}
	return lo, hi, nil
}
