package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carecal/internal/events"
	slotserrors "carecal/internal/slots/errors"
	"carecal/internal/slots/repository"
	"carecal/internal/slots/statemachine"
	"carecal/pkg/config"
	apperrors "carecal/pkg/errors"
	"carecal/pkg/model"
)

type SlotService interface {
	GetByID(ctx context.Context, id string) (*model.Slot, error)
	List(ctx context.Context, filter model.SlotFilter, limit int, offset int) ([]*model.Slot, error)

	// Transition applies ev to the slot as it was observed and persists the
	// result with a compare-and-set on the observed version.
	Transition(ctx context.Context, observed *model.Slot, ev statemachine.Event, now time.Time) (*model.Slot, error)

	CheckIn(ctx context.Context, actor model.Actor, id string) (*model.Slot, error)
	Complete(ctx context.Context, actor model.Actor, id string, notes string, durationMinutes int) (*model.Slot, error)
	MarkNoShow(ctx context.Context, actor model.Actor, id string) (*model.Slot, error)
	SendReminder(ctx context.Context, actor model.Actor, id string) (*model.Slot, error)

	// ScanReminders emits ReminderDue for booked slots starting within lead
	// whose reminder has not been sent yet.
	ScanReminders(ctx context.Context, now time.Time, lead time.Duration) (int, error)
}

type slotService struct {
	repo    repository.SlotRepository
	emitter events.Emitter
	cfg     *config.Config
	now     func() time.Time
}

func NewSlotService(repo repository.SlotRepository, emitter events.Emitter, cfg *config.Config) SlotService {
	return &slotService{
		repo:    repo,
		emitter: emitter,
		cfg:     cfg,
		now:     time.Now,
	}
}

// NewSlotServiceWithClock is NewSlotService with a fixed clock.
func NewSlotServiceWithClock(repo repository.SlotRepository, emitter events.Emitter, cfg *config.Config, now func() time.Time) SlotService {
	return &slotService{
		repo:    repo,
		emitter: emitter,
		cfg:     cfg,
		now:     now,
	}
}

func (s *slotService) GetByID(ctx context.Context, id string) (*model.Slot, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	slot, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Slot", id)
		}
		s.cfg.Log.Error("Failed to get slot by ID",
			"id", id,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve slot", err)
	}
	return slot, nil
}

func (s *slotService) List(ctx context.Context, filter model.SlotFilter, limit int, offset int) ([]*model.Slot, error) {
	if filter.ProviderID == "" && filter.PatientID == "" {
		return nil, apperrors.InvalidInput("provider_id or patient_id is required")
	}
	if filter.From != "" && filter.To != "" && filter.From > filter.To {
		return nil, apperrors.Validation("Invalid date range", map[string]any{
			"from": "must not be after to",
		})
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, apperrors.Validation("Invalid status filter", map[string]any{
				"status": fmt.Sprintf("unknown status %q", st),
			})
		}
	}

	slots, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list slots",
			"provider_id", filter.ProviderID,
			"from", filter.From,
			"to", filter.To,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to list slots", err)
	}
	return slots, nil
}

func (s *slotService) Transition(ctx context.Context, observed *model.Slot, ev statemachine.Event, now time.Time) (*model.Slot, error) {
	next, err := statemachine.Apply(observed, ev, now)
	if err != nil {
		return nil, err
	}
	if !statemachine.Changed(observed, next) {
		return observed, nil
	}

	stored, err := s.repo.CompareAndSwap(ctx, observed, next)
	if err != nil {
		if errors.Is(err, slotserrors.ErrStale) {
			s.cfg.Log.Info("Slot transition lost race",
				"slot_id", observed.ID,
				"from", observed.Status,
				"action", ev.Action(),
			)
			if _, ok := ev.(statemachine.Request); ok {
				return nil, apperrors.SlotUnavailable(observed.ID)
			}
			return nil, apperrors.InvalidTransition(observed.ID, string(observed.Status), ev.Action())
		}
		s.cfg.Log.Error("Failed to persist slot transition",
			"slot_id", observed.ID,
			"action", ev.Action(),
			"error", err,
		)
		return nil, apperrors.Internal("Failed to update slot", err)
	}

	s.cfg.Log.Info("Slot transitioned",
		"slot_id", stored.ID,
		"provider_id", stored.ProviderID,
		"from", observed.Status,
		"to", stored.Status,
		"action", ev.Action(),
	)
	s.emit(ctx, observed, stored, ev, now)
	return stored, nil
}

func (s *slotService) emit(ctx context.Context, prev, next *model.Slot, ev statemachine.Event, now time.Time) {
	switch e := ev.(type) {
	case statemachine.Request:
		typ := events.SlotBooked
		if next.Status == model.SlotPendingConfirmation {
			typ = events.SlotRequested
		}
		s.emitter.Emit(ctx, events.ForSlot(typ, next, next.PatientID, now))
	case statemachine.Confirm:
		s.emitter.Emit(ctx, events.ForSlot(events.SlotBooked, next, next.PatientID, now))
	case statemachine.Cancel:
		event := events.ForSlot(events.SlotCancelled, next, prev.PatientID, now)
		event.Reason = e.Reason
		event.ByProvider = e.ByProvider
		s.emitter.Emit(ctx, event)
	case statemachine.CheckIn:
		s.emitter.Emit(ctx, events.ForSlot(events.SlotCheckedIn, next, next.PatientID, now))
	case statemachine.Complete:
		s.emitter.Emit(ctx, events.ForSlot(events.SlotCompleted, next, next.PatientID, now))
	case statemachine.MarkNoShow:
		s.emitter.Emit(ctx, events.ForSlot(events.SlotNoShow, next, next.PatientID, now))
	}
}

func (s *slotService) CheckIn(ctx context.Context, actor model.Actor, id string) (*model.Slot, error) {
	return s.manage(ctx, actor, id, statemachine.CheckIn{})
}

func (s *slotService) Complete(ctx context.Context, actor model.Actor, id string, notes string, durationMinutes int) (*model.Slot, error) {
	return s.manage(ctx, actor, id, statemachine.Complete{Notes: notes, DurationMinutes: durationMinutes})
}

func (s *slotService) MarkNoShow(ctx context.Context, actor model.Actor, id string) (*model.Slot, error) {
	return s.manage(ctx, actor, id, statemachine.MarkNoShow{})
}

func (s *slotService) SendReminder(ctx context.Context, actor model.Actor, id string) (*model.Slot, error) {
	return s.manage(ctx, actor, id, statemachine.SendReminder{})
}

// manage runs a provider-side transition. Only the owning provider or staff
// may drive check-in, completion, no-show and reminders.
func (s *slotService) manage(ctx context.Context, actor model.Actor, id string, ev statemachine.Event) (*model.Slot, error) {
	slot, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(slot.ProviderID) {
		s.cfg.Log.Warn("Slot operation forbidden",
			"slot_id", id,
			"actor_id", actor.ID,
			"actor_role", actor.Role,
			"action", ev.Action(),
		)
		return nil, apperrors.Forbidden(fmt.Sprintf("Not allowed to %s this slot", ev.Action()))
	}
	return s.Transition(ctx, slot, ev, s.now())
}

func (s *slotService) ScanReminders(ctx context.Context, now time.Time, lead time.Duration) (int, error) {
	due, err := s.repo.FindReminderDue(ctx, now, now.Add(lead))
	if err != nil {
		return 0, apperrors.Internal("Failed to scan reminders", err)
	}
	for _, slot := range due {
		s.emitter.Emit(ctx, events.ForSlot(events.ReminderDue, slot, slot.PatientID, now))
	}
	return len(due), nil
}
