package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	slotserrors "carecal/internal/slots/errors"
	"carecal/pkg/model"
)

type memorySlotRepository struct {
	mu    sync.RWMutex
	byID  map[string]*model.Slot
	byKey map[string]string
}

// NewMemorySlotRepository keeps slots in process. Stored slots are cloned
// on the way in and out so callers never share state with the store.
func NewMemorySlotRepository() SlotRepository {
	return &memorySlotRepository{
		byID:  make(map[string]*model.Slot),
		byKey: make(map[string]string),
	}
}

func (r *memorySlotRepository) InsertIfAbsent(_ context.Context, slot *model.Slot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[slot.Key()]; ok {
		return false, nil
	}
	r.byID[slot.ID] = slot.Clone()
	r.byKey[slot.Key()] = slot.ID
	return true, nil
}

func (r *memorySlotRepository) FindByID(_ context.Context, id string) (*model.Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slot, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return slot.Clone(), nil
}

func (r *memorySlotRepository) FindByKey(_ context.Context, providerID string, date string, startTime string) (*model.Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := (&model.Slot{ProviderID: providerID, Date: date, StartTime: startTime}).Key()
	id, ok := r.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, key)
	}
	return r.byID[id].Clone(), nil
}

func (r *memorySlotRepository) List(_ context.Context, filter model.SlotFilter, limit int, offset int) ([]*model.Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slots := r.matching(filter)
	if offset > 0 {
		if offset >= len(slots) {
			return []*model.Slot{}, nil
		}
		slots = slots[offset:]
	}
	if limit > 0 && len(slots) > limit {
		slots = slots[:limit]
	}
	return slots, nil
}

func (r *memorySlotRepository) matching(filter model.SlotFilter) []*model.Slot {
	slots := []*model.Slot{}
	for _, s := range r.byID {
		if filter.Matches(s) {
			slots = append(slots, s.Clone())
		}
	}
	slices.SortFunc(slots, func(a, b *model.Slot) int {
		if c := a.StartsAt.Compare(b.StartsAt); c != 0 {
			return c
		}
		if a.ProviderID < b.ProviderID {
			return -1
		}
		if a.ProviderID > b.ProviderID {
			return 1
		}
		return 0
	})
	return slots
}

func (r *memorySlotRepository) CompareAndSwap(_ context.Context, observed *model.Slot, next *model.Slot) (*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[observed.ID]
	if !ok || stored.Version != observed.Version {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrStale, observed.ID)
	}
	written := next.Clone()
	written.ID = stored.ID
	written.ProviderID = stored.ProviderID
	written.Date = stored.Date
	written.StartTime = stored.StartTime
	written.CreatedAt = stored.CreatedAt
	written.Version = observed.Version + 1
	r.byID[observed.ID] = written
	return written.Clone(), nil
}

func (r *memorySlotRepository) CountByStatus(_ context.Context, providerID string, from string, to string, inactiveRuleIDs []string) (map[model.SlotStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[model.SlotStatus]int64)
	filter := model.SlotFilter{ProviderID: providerID, From: from, To: to, IncludeDisabled: true}
	for _, s := range r.byID {
		if !filter.Matches(s) {
			continue
		}
		if s.Status == model.SlotAvailable && (s.Disabled || slices.Contains(inactiveRuleIDs, s.RuleID)) {
			continue
		}
		counts[s.Status]++
	}
	return counts, nil
}

func (r *memorySlotRepository) SetDisabled(_ context.Context, ids []string, disabled bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var n int64
	for _, id := range ids {
		s, ok := r.byID[id]
		if !ok || !s.Status.Unclaimed() || s.Disabled == disabled {
			continue
		}
		s.Disabled = disabled
		s.Refresh()
		s.UpdatedAt = now
		s.Version++
		n++
	}
	return n, nil
}

func (r *memorySlotRepository) DeleteAvailable(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, id := range ids {
		s, ok := r.byID[id]
		if !ok || s.Status != model.SlotAvailable {
			continue
		}
		r.remove(s)
		n++
	}
	return n, nil
}

func (r *memorySlotRepository) FindReminderDue(_ context.Context, from time.Time, to time.Time) ([]*model.Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := r.matching(model.SlotFilter{
		StartsFrom:   from,
		StartsBefore: to,
		Statuses:     []model.SlotStatus{model.SlotBooked},
	})
	return slices.DeleteFunc(due, func(s *model.Slot) bool { return s.ReminderSent }), nil
}

func (r *memorySlotRepository) CountHeldByRule(_ context.Context, ruleID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, s := range r.byID {
		if s.RuleID == ruleID && s.Status.Held() {
			n++
		}
	}
	return n, nil
}

func (r *memorySlotRepository) DeleteUnbookedByRule(_ context.Context, ruleID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, s := range r.byID {
		if s.RuleID == ruleID && (s.Status == model.SlotAvailable || s.Status == model.SlotCancelled) {
			r.remove(s)
			n++
		}
	}
	return n, nil
}

func (r *memorySlotRepository) PurgeCancelled(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, s := range r.byID {
		if s.Status == model.SlotCancelled && s.StartsAt.Before(before) {
			r.remove(s)
			n++
		}
	}
	return n, nil
}

func (r *memorySlotRepository) remove(s *model.Slot) {
	delete(r.byID, s.ID)
	delete(r.byKey, s.Key())
}
