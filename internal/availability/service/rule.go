package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	availabilityerrors "carecal/internal/availability/errors"
	"carecal/internal/availability/repository"
	"carecal/internal/availability/validator"
	"carecal/internal/conflict"
	"carecal/internal/events"
	"carecal/internal/slots/materializer"
	slotsrepository "carecal/internal/slots/repository"
	"carecal/pkg/config"
	mongotx "carecal/pkg/db/mongo"
	apperrors "carecal/pkg/errors"
	"carecal/pkg/lock"
	"carecal/pkg/model"
	"carecal/pkg/sanitizer"

	"github.com/google/uuid"
)

const (
	DefaultMaxAdvanceBookingDays = 30

	sweepPageSize = 100
)

type RuleService interface {
	Create(ctx context.Context, actor model.Actor, providerID string, rule *model.AvailabilityRule) (*model.AvailabilityRule, error)
	Update(ctx context.Context, actor model.Actor, id string, update *model.AvailabilityRuleUpdate) (*model.AvailabilityRule, error)
	Deactivate(ctx context.Context, actor model.Actor, id string) (*model.AvailabilityRule, error)
	Activate(ctx context.Context, actor model.Actor, id string) (*model.AvailabilityRule, error)
	GetByID(ctx context.Context, id string) (*model.AvailabilityRule, error)
	ListByProvider(ctx context.Context, providerID string, activeOnly bool) ([]*model.AvailabilityRule, error)
	Statistics(ctx context.Context, actor model.Actor, providerID string, from string, to string) (*model.ProviderStatistics, error)

	// MaterializeHorizon extends one rule's slots to its full booking horizon.
	MaterializeHorizon(ctx context.Context, id string) (materializer.Result, error)
	// SweepHorizon runs MaterializeHorizon for every active rule.
	SweepHorizon(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context, now time.Time) (PurgeResult, error)
}

type PurgeResult struct {
	Rules          int   `json:"rules"`
	RuleSlots      int64 `json:"rule_slots"`
	CancelledSlots int64 `json:"cancelled_slots"`
	Skipped        int   `json:"skipped"`
}

type ruleService struct {
	rules        repository.RuleRepository
	slots        slotsrepository.SlotRepository
	materializer *materializer.Materializer
	validator    *validator.RuleValidator
	locker       lock.Locker
	tx           mongotx.TransactionManager
	emitter      events.Emitter
	cfg          *config.Config
	now          func() time.Time
}

type Dependencies struct {
	Rules        repository.RuleRepository
	Slots        slotsrepository.SlotRepository
	Materializer *materializer.Materializer
	Validator    *validator.RuleValidator
	Locker       lock.Locker
	Tx           mongotx.TransactionManager
	Emitter      events.Emitter
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewRuleService(deps Dependencies, cfg *config.Config) RuleService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ruleService{
		rules:        deps.Rules,
		slots:        deps.Slots,
		materializer: deps.Materializer,
		validator:    deps.Validator,
		locker:       deps.Locker,
		tx:           deps.Tx,
		emitter:      deps.Emitter,
		cfg:          cfg,
		now:          now,
	}
}

func (s *ruleService) Create(ctx context.Context, actor model.Actor, providerID string, rule *model.AvailabilityRule) (*model.AvailabilityRule, error) {
	if !actor.CanManage(providerID) {
		return nil, apperrors.Forbidden("Not allowed to manage this provider's availability")
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	rule.ID = uuid.NewString()
	rule.ProviderID = providerID
	rule.IsActive = true
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.sanitize(rule)
	s.applyDefaults(rule)

	if err := s.validate(rule); err != nil {
		return nil, err
	}

	err := s.withProviderLock(ctx, providerID, func(ctx context.Context) error {
		if err := s.checkConflicts(ctx, rule); err != nil {
			return err
		}
		return s.tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			if err := s.rules.Create(txCtx, rule); err != nil {
				return apperrors.Internal("Failed to create availability rule", err)
			}
			return s.materialize(txCtx, rule)
		})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create availability rule",
			"provider_id", providerID,
			"title", rule.Title,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Availability rule created",
		"id", rule.ID,
		"provider_id", providerID,
		"recurrence_kind", rule.RecurrenceKind,
	)
	s.emitter.Emit(ctx, events.ForRule(events.RuleCreated, rule, now))
	return rule, nil
}

func (s *ruleService) Update(ctx context.Context, actor model.Actor, id string, update *model.AvailabilityRuleUpdate) (*model.AvailabilityRule, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(existing.ProviderID) {
		return nil, apperrors.Forbidden("Not allowed to manage this provider's availability")
	}

	var merged *model.AvailabilityRule
	err = s.withProviderLock(ctx, existing.ProviderID, func(ctx context.Context) error {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}

		merged = update.Apply(current)
		merged.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
		s.sanitize(merged)
		s.applyDefaults(merged)
		if err := s.validate(merged); err != nil {
			return err
		}
		if merged.IsActive {
			if err := s.checkConflicts(ctx, merged); err != nil {
				return err
			}
		}

		return s.tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			if err := s.rules.Replace(txCtx, merged); err != nil {
				return s.repoError(err, id, "Failed to update availability rule")
			}
			return s.materialize(txCtx, merged)
		})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to update availability rule",
			"id", id,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Availability rule updated",
		"id", id,
		"provider_id", merged.ProviderID,
	)
	s.emitter.Emit(ctx, events.ForRule(events.RuleUpdated, merged, merged.UpdatedAt))
	return merged, nil
}

// Deactivate stops the rule from producing slots and from accepting bookings.
// Slots already materialized, booked or not, are left as they are; a later
// rule covering the same times takes over the unclaimed ones.
func (s *ruleService) Deactivate(ctx context.Context, actor model.Actor, id string) (*model.AvailabilityRule, error) {
	return s.setActive(ctx, actor, id, false)
}

// Activate re-enables a rule after re-running conflict detection.
func (s *ruleService) Activate(ctx context.Context, actor model.Actor, id string) (*model.AvailabilityRule, error) {
	return s.setActive(ctx, actor, id, true)
}

func (s *ruleService) setActive(ctx context.Context, actor model.Actor, id string, active bool) (*model.AvailabilityRule, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(existing.ProviderID) {
		return nil, apperrors.Forbidden("Not allowed to manage this provider's availability")
	}

	var (
		rule    *model.AvailabilityRule
		changed bool
	)
	err = s.withProviderLock(ctx, existing.ProviderID, func(ctx context.Context) error {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		rule = current
		if rule.IsActive == active {
			return nil
		}

		rule.IsActive = active
		rule.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
		changed = true

		if !active {
			if err := s.rules.Replace(ctx, rule); err != nil {
				return s.repoError(err, id, "Failed to deactivate availability rule")
			}
			return nil
		}

		if err := s.checkConflicts(ctx, rule); err != nil {
			return err
		}
		return s.tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			if err := s.rules.Replace(txCtx, rule); err != nil {
				return s.repoError(err, id, "Failed to activate availability rule")
			}
			return s.materialize(txCtx, rule)
		})
	})
	if err != nil {
		s.cfg.Log.Error("Failed to change availability rule state",
			"id", id,
			"active", active,
			"error", err,
		)
		return nil, err
	}
	if !changed {
		return rule, nil
	}

	typ := events.RuleDeactivated
	if active {
		typ = events.RuleActivated
	}
	s.cfg.Log.Info("Availability rule state changed",
		"id", id,
		"provider_id", rule.ProviderID,
		"active", active,
	)
	s.emitter.Emit(ctx, events.ForRule(typ, rule, rule.UpdatedAt))
	return rule, nil
}

func (s *ruleService) GetByID(ctx context.Context, id string) (*model.AvailabilityRule, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Rule ID cannot be empty")
	}

	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		return nil, s.repoError(err, id, "Failed to retrieve availability rule")
	}
	return rule, nil
}

func (s *ruleService) ListByProvider(ctx context.Context, providerID string, activeOnly bool) ([]*model.AvailabilityRule, error) {
	if providerID == "" {
		return nil, apperrors.InvalidInput("Provider ID cannot be empty")
	}

	rules, err := s.rules.FindByProvider(ctx, providerID, activeOnly)
	if err != nil {
		s.cfg.Log.Error("Failed to list availability rules",
			"provider_id", providerID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to list availability rules", err)
	}
	return rules, nil
}

func (s *ruleService) Statistics(ctx context.Context, actor model.Actor, providerID string, from string, to string) (*model.ProviderStatistics, error) {
	if !actor.CanManage(providerID) {
		return nil, apperrors.Forbidden("Not allowed to read statistics for this provider")
	}
	if from > to {
		return nil, apperrors.Validation("Invalid date range", map[string]any{
			"from": "must not be after to",
		})
	}

	rules, err := s.rules.FindByProvider(ctx, providerID, false)
	if err != nil {
		s.cfg.Log.Error("Failed to load provider rules",
			"provider_id", providerID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to compute statistics", err)
	}
	var inactive []string
	for _, rule := range rules {
		if !rule.IsActive {
			inactive = append(inactive, rule.ID)
		}
	}

	counts, err := s.slots.CountByStatus(ctx, providerID, from, to, inactive)
	if err != nil {
		s.cfg.Log.Error("Failed to count slots",
			"provider_id", providerID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to compute statistics", err)
	}
	return model.NewProviderStatistics(providerID, from, to, counts), nil
}

func (s *ruleService) MaterializeHorizon(ctx context.Context, id string) (materializer.Result, error) {
	rule, err := s.GetByID(ctx, id)
	if err != nil {
		return materializer.Result{}, err
	}

	var res materializer.Result
	err = s.withProviderLock(ctx, rule.ProviderID, func(ctx context.Context) error {
		// Re-read under the lock so a concurrent edit is never reverted.
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		res, err = s.materializer.Horizon(ctx, current)
		if err != nil {
			return apperrors.Internal("Failed to materialize slots", err)
		}
		return nil
	})
	return res, err
}

func (s *ruleService) SweepHorizon(ctx context.Context) (int, error) {
	var (
		swept  int
		failed []error
	)
	for offset := 0; ; offset += sweepPageSize {
		rules, err := s.rules.FindActive(ctx, sweepPageSize, offset)
		if err != nil {
			return swept, apperrors.Internal("Failed to list active rules", err)
		}
		for _, rule := range rules {
			if err := ctx.Err(); err != nil {
				return swept, err
			}
			if _, err := s.MaterializeHorizon(ctx, rule.ID); err != nil {
				s.cfg.Log.Warn("Horizon materialization failed",
					"rule_id", rule.ID,
					"provider_id", rule.ProviderID,
					"error", err,
				)
				failed = append(failed, err)
				continue
			}
			swept++
		}
		if len(rules) < sweepPageSize {
			break
		}
	}
	if len(failed) > 0 {
		return swept, fmt.Errorf("horizon sweep: %d rule(s) failed: %w", len(failed), errors.Join(failed...))
	}
	return swept, nil
}

// PurgeExpired deletes rules whose end date is older than the rule retention
// window and which hold no pending or booked slot, together with their
// unbooked slots. Cancelled slots past the slot retention window go too.
func (s *ruleService) PurgeExpired(ctx context.Context, now time.Time) (PurgeResult, error) {
	var res PurgeResult

	cutoff := now.UTC().AddDate(0, 0, -s.cfg.RuleRetentionDays).Format(model.DateLayout)
	expired, err := s.rules.FindEndedBefore(ctx, cutoff)
	if err != nil {
		return res, apperrors.Internal("Failed to list expired rules", err)
	}

	for _, rule := range expired {
		err := s.withProviderLock(ctx, rule.ProviderID, func(ctx context.Context) error {
			held, err := s.slots.CountHeldByRule(ctx, rule.ID)
			if err != nil {
				return apperrors.Internal("Failed to count held slots", err)
			}
			if held > 0 {
				res.Skipped++
				return nil
			}
			return s.tx.ExecuteTransaction(ctx, func(txCtx context.Context) error {
				n, err := s.slots.DeleteUnbookedByRule(txCtx, rule.ID)
				if err != nil {
					return apperrors.Internal("Failed to delete rule slots", err)
				}
				if err := s.rules.Delete(txCtx, rule.ID); err != nil {
					return s.repoError(err, rule.ID, "Failed to delete rule")
				}
				res.Rules++
				res.RuleSlots += n
				return nil
			})
		})
		if err != nil {
			return res, err
		}
	}

	cancelledBefore := now.UTC().AddDate(0, 0, -s.cfg.SlotRetentionDays)
	n, err := s.slots.PurgeCancelled(ctx, cancelledBefore)
	if err != nil {
		return res, apperrors.Internal("Failed to purge cancelled slots", err)
	}
	res.CancelledSlots = n

	s.cfg.Log.Info("Retention purge finished",
		"rules", res.Rules,
		"rule_slots", res.RuleSlots,
		"cancelled_slots", res.CancelledSlots,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (s *ruleService) checkConflicts(ctx context.Context, rule *model.AvailabilityRule) error {
	others, err := s.rules.FindByProvider(ctx, rule.ProviderID, true)
	if err != nil {
		return apperrors.Internal("Failed to load provider rules", err)
	}

	conflicts := conflict.FindConflicts(rule, others)
	if len(conflicts) == 0 {
		return nil
	}

	s.cfg.Log.Warn("Availability rule conflicts with existing rules",
		"rule_id", rule.ID,
		"provider_id", rule.ProviderID,
		"conflicts", len(conflicts),
	)
	return apperrors.Conflict("Availability rule overlaps an existing active rule").
		WithDetails(map[string]any{"conflicts": conflicts})
}

// materialize inserts the default window and reconciles every stored future
// slot of the rule, so slots the worker placed further out follow an edit too.
func (s *ruleService) materialize(ctx context.Context, rule *model.AvailabilityRule) error {
	if _, err := s.materializer.Days(ctx, rule, s.cfg.MaterializeDays); err != nil {
		return apperrors.Internal("Failed to materialize slots", err)
	}
	return nil
}

// RuleActivity tells the materializer whether a slot's rule still offers it.
func RuleActivity(rules repository.RuleRepository) materializer.RuleActive {
	return func(ctx context.Context, ruleID string) (bool, error) {
		rule, err := rules.FindByID(ctx, ruleID)
		if err != nil {
			if errors.Is(err, availabilityerrors.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return rule.IsActive, nil
	}
}

func (s *ruleService) withProviderLock(ctx context.Context, providerID string, fn func(ctx context.Context) error) error {
	err := s.locker.WithProviderLock(ctx, providerID, fn)
	if errors.Is(err, lock.ErrLockNotAcquired) {
		return apperrors.Unavailable("Provider calendar")
	}
	return err
}

func (s *ruleService) repoError(err error, id string, message string) error {
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, availabilityerrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Availability rule", id)
	}
	s.cfg.Log.Error(message,
		"id", id,
		"error", err,
	)
	return apperrors.Internal(message, err)
}

func (s *ruleService) sanitize(rule *model.AvailabilityRule) {
	rule.Title = sanitizer.NormalizeTitle(rule.Title)
	rule.Description = sanitizer.NormalizeText(rule.Description)
	rule.LocationDetails = sanitizer.NormalizeText(rule.LocationDetails)
	rule.TimeZone = sanitizer.SanitizeTimeZone(rule.TimeZone)
	rule.StartTime = sanitizer.SanitizeClock(rule.StartTime)
	rule.EndTime = sanitizer.SanitizeClock(rule.EndTime)
	rule.RecurrenceKind = model.RecurrenceKind(sanitizer.NormalizeCode(string(rule.RecurrenceKind)))
	rule.LocationKind = model.LocationKind(sanitizer.NormalizeCode(string(rule.LocationKind)))
	rule.AppointmentKind = model.AppointmentKind(sanitizer.NormalizeCode(string(rule.AppointmentKind)))
	rule.CustomDates = sanitizer.NormalizeDates(rule.CustomDates)
	rule.ExcludedDates = sanitizer.NormalizeDates(rule.ExcludedDates)
}

func (s *ruleService) applyDefaults(rule *model.AvailabilityRule) {
	if rule.MaxAdvanceBookingDays == 0 {
		rule.MaxAdvanceBookingDays = DefaultMaxAdvanceBookingDays
	}
}

func (s *ruleService) validate(rule *model.AvailabilityRule) error {
	err := s.validator.Validate(rule)
	if err == nil {
		return nil
	}

	s.cfg.Log.Warn("Availability rule validation failed",
		"provider_id", rule.ProviderID,
		"title", rule.Title,
		"error", err,
	)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation("Availability rule validation failed", verrs.Details())
	}
	return apperrors.Validation("Availability rule validation failed", map[string]any{
		"error": err.Error(),
	})
}
