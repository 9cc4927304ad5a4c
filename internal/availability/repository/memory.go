package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	availabilityerrors "carecal/internal/availability/errors"
	"carecal/pkg/model"
)

type memoryRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*model.AvailabilityRule
}

func NewMemoryRuleRepository() RuleRepository {
	return &memoryRuleRepository{rules: make(map[string]*model.AvailabilityRule)}
}

func clone(rule *model.AvailabilityRule) *model.AvailabilityRule {
	return (&model.AvailabilityRuleUpdate{}).Apply(rule)
}

func (r *memoryRuleRepository) Create(_ context.Context, rule *model.AvailabilityRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[rule.ID]; ok {
		return fmt.Errorf("failed to create rule: duplicate id %s", rule.ID)
	}
	r.rules[rule.ID] = clone(rule)
	return nil
}

func (r *memoryRuleRepository) FindByID(_ context.Context, id string) (*model.AvailabilityRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", availabilityerrors.ErrNotFound, id)
	}
	return clone(rule), nil
}

func (r *memoryRuleRepository) FindByProvider(_ context.Context, providerID string, activeOnly bool) ([]*model.AvailabilityRule, error) {
	return r.filter(func(rule *model.AvailabilityRule) bool {
		return rule.ProviderID == providerID && (!activeOnly || rule.IsActive)
	}), nil
}

func (r *memoryRuleRepository) FindActive(_ context.Context, limit int, offset int) ([]*model.AvailabilityRule, error) {
	rules := r.filter(func(rule *model.AvailabilityRule) bool { return rule.IsActive })
	slices.SortFunc(rules, func(a, b *model.AvailabilityRule) int { return strings.Compare(a.ID, b.ID) })
	if offset >= len(rules) {
		return []*model.AvailabilityRule{}, nil
	}
	rules = rules[offset:]
	if limit > 0 && len(rules) > limit {
		rules = rules[:limit]
	}
	return rules, nil
}

func (r *memoryRuleRepository) FindEndedBefore(_ context.Context, date string) ([]*model.AvailabilityRule, error) {
	return r.filter(func(rule *model.AvailabilityRule) bool {
		return rule.EndDate != "" && rule.EndDate < date
	}), nil
}

func (r *memoryRuleRepository) filter(keep func(*model.AvailabilityRule) bool) []*model.AvailabilityRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := []*model.AvailabilityRule{}
	for _, rule := range r.rules {
		if keep(rule) {
			rules = append(rules, clone(rule))
		}
	}
	slices.SortFunc(rules, func(a, b *model.AvailabilityRule) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return rules
}

func (r *memoryRuleRepository) Replace(_ context.Context, rule *model.AvailabilityRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[rule.ID]; !ok {
		return fmt.Errorf("%w: %s", availabilityerrors.ErrNotFound, rule.ID)
	}
	r.rules[rule.ID] = clone(rule)
	return nil
}

func (r *memoryRuleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return fmt.Errorf("%w: %s", availabilityerrors.ErrNotFound, id)
	}
	delete(r.rules, id)
	return nil
}
