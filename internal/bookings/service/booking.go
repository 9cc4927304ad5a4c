package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carecal/internal/bookings/validator"
	"carecal/internal/conflict"
	slotsservice "carecal/internal/slots/service"
	"carecal/internal/slots/statemachine"
	"carecal/pkg/config"
	apperrors "carecal/pkg/errors"
	"carecal/pkg/lock"
	"carecal/pkg/model"
	"carecal/pkg/sanitizer"
)

// maxSlotMinutes is the longest slot a rule can produce. Held slots starting
// earlier than this before a candidate cannot overlap it.
const maxSlotMinutes = 480

var heldStatuses = []model.SlotStatus{model.SlotPendingConfirmation, model.SlotBooked}

type BookingService interface {
	BookSlot(ctx context.Context, actor model.Actor, slotID string, req *model.BookingRequest) (*model.Slot, error)
	CancelBooking(ctx context.Context, actor model.Actor, slotID string, req *model.CancellationRequest) (*model.Slot, error)
	ConfirmBooking(ctx context.Context, actor model.Actor, slotID string) (*model.Slot, error)
}

// RuleFinder resolves the rule a slot was produced from.
type RuleFinder interface {
	GetByID(ctx context.Context, id string) (*model.AvailabilityRule, error)
}

type Dependencies struct {
	Slots     slotsservice.SlotService
	Rules     RuleFinder
	Validator *validator.BookingValidator
	Locker    lock.Locker
	// Now defaults to time.Now.
	Now func() time.Time
}

type bookingService struct {
	slots     slotsservice.SlotService
	rules     RuleFinder
	validator *validator.BookingValidator
	locker    lock.Locker
	cfg       *config.Config
	now       func() time.Time
}

func NewBookingService(deps Dependencies, cfg *config.Config) BookingService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &bookingService{
		slots:     deps.Slots,
		rules:     deps.Rules,
		validator: deps.Validator,
		locker:    deps.Locker,
		cfg:       cfg,
		now:       now,
	}
}

func (s *bookingService) BookSlot(ctx context.Context, actor model.Actor, slotID string, req *model.BookingRequest) (*model.Slot, error) {
	if !actor.BookingAllowed {
		s.cfg.Log.Warn("Booking refused by authorization decision",
			"actor_id", actor.ID,
			"slot_id", slotID,
		)
		return nil, apperrors.Forbidden("Booking is not permitted for this caller")
	}

	req.PatientID = sanitizer.TrimAndNormalize(req.PatientID)
	if req.PatientID == "" && actor.Role == model.ActorPatient {
		req.PatientID = actor.ID
	}
	if err := s.validator.ValidateBooking(req); err != nil {
		return nil, s.validationError("Booking validation failed", err)
	}
	if actor.Role == model.ActorPatient && !actor.IsPatient(req.PatientID) {
		return nil, apperrors.Forbidden("Patients may only book for themselves")
	}

	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.ActorPatient && !actor.CanManage(slot.ProviderID) {
		return nil, apperrors.Forbidden("Not allowed to book on this provider's calendar")
	}

	rule, err := s.bookableRule(ctx, slot)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := checkBookingWindow(slot, rule, now); err != nil {
		s.cfg.Log.Info("Booking outside window",
			"slot_id", slot.ID,
			"starts_at", slot.StartsAt,
			"error", err,
		)
		return nil, err
	}

	var booked *model.Slot
	err = s.withProviderLock(ctx, slot.ProviderID, func(ctx context.Context) error {
		current, err := s.slots.GetByID(ctx, slotID)
		if err != nil {
			return err
		}
		if !statemachine.Requestable(current) {
			return apperrors.SlotUnavailable(slotID)
		}
		if err := s.checkExclusivity(ctx, current, req.PatientID); err != nil {
			return err
		}

		booked, err = s.slots.Transition(ctx, current, statemachine.Request{
			PatientID:        req.PatientID,
			RequiresApproval: rule.RequiresApproval,
		}, now)
		return err
	})
	if err != nil {
		s.cfg.Log.Info("Booking rejected",
			"slot_id", slotID,
			"patient_id", req.PatientID,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Slot booked",
		"slot_id", booked.ID,
		"provider_id", booked.ProviderID,
		"patient_id", booked.PatientID,
		"status", booked.Status,
	)
	return booked, nil
}

// CancelBooking is open to the patient holding the slot and to whoever
// manages the provider's calendar. A slot nobody holds cannot be cancelled,
// whoever asks.
func (s *bookingService) CancelBooking(ctx context.Context, actor model.Actor, slotID string, req *model.CancellationRequest) (*model.Slot, error) {
	req.Reason = sanitizer.NormalizeText(req.Reason)
	if err := s.validator.ValidateCancellation(req); err != nil {
		return nil, s.validationError("Cancellation validation failed", err)
	}

	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.Status.Held() {
		return nil, apperrors.InvalidTransition(slot.ID, string(slot.Status), statemachine.Cancel{}.Action())
	}

	byPatient := slot.PatientID != "" && actor.IsPatient(slot.PatientID)
	if !byPatient && !actor.CanManage(slot.ProviderID) {
		s.cfg.Log.Warn("Cancellation forbidden",
			"actor_id", actor.ID,
			"slot_id", slotID,
		)
		return nil, apperrors.Forbidden("Not allowed to cancel this booking")
	}

	return s.slots.Transition(ctx, slot, statemachine.Cancel{
		Reason:     req.Reason,
		ByProvider: !byPatient,
	}, s.now())
}

func (s *bookingService) ConfirmBooking(ctx context.Context, actor model.Actor, slotID string) (*model.Slot, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(slot.ProviderID) {
		return nil, apperrors.Forbidden("Only the provider can confirm this booking")
	}

	return s.slots.Transition(ctx, slot, statemachine.Confirm{}, s.now())
}

// bookableRule returns the slot's rule if it still accepts online bookings.
func (s *bookingService) bookableRule(ctx context.Context, slot *model.Slot) (*model.AvailabilityRule, error) {
	rule, err := s.rules.GetByID(ctx, slot.RuleID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.SlotUnavailable(slot.ID)
		}
		return nil, err
	}
	if !rule.IsActive || !rule.AllowOnlineBooking {
		return nil, apperrors.SlotUnavailable(slot.ID)
	}
	return rule, nil
}

func checkBookingWindow(slot *model.Slot, rule *model.AvailabilityRule, now time.Time) error {
	lead := slot.StartsAt.Sub(now)
	minLead := time.Duration(rule.MinAdvanceBookingHours) * time.Hour
	maxLead := time.Duration(rule.MaxAdvanceBookingDays) * 24 * time.Hour

	switch {
	case lead < minLead:
		return apperrors.BookingWindowViolation(
			fmt.Sprintf("Slot must be booked at least %d hours in advance", rule.MinAdvanceBookingHours),
			map[string]any{"starts_at": slot.StartsAt, "min_advance_booking_hours": rule.MinAdvanceBookingHours},
		)
	case lead > maxLead:
		return apperrors.BookingWindowViolation(
			fmt.Sprintf("Slot cannot be booked more than %d days in advance", rule.MaxAdvanceBookingDays),
			map[string]any{"starts_at": slot.StartsAt, "max_advance_booking_days": rule.MaxAdvanceBookingDays},
		)
	}
	return nil
}

// checkExclusivity rejects a request that would overlap another slot held on
// the same provider or by the same patient.
func (s *bookingService) checkExclusivity(ctx context.Context, slot *model.Slot, patientID string) error {
	from := slot.StartsAt.Add(-maxSlotMinutes * time.Minute)
	to := slot.EndsAt()

	providerHeld, err := s.slots.List(ctx, model.SlotFilter{
		ProviderID:   slot.ProviderID,
		StartsFrom:   from,
		StartsBefore: to,
		Statuses:     heldStatuses,
	}, 0, 0)
	if err != nil {
		return err
	}
	if clashes := conflict.SlotClashes(slot.StartsAt, to, slot.ID, providerHeld); len(clashes) > 0 {
		s.cfg.Log.Info("Provider already holds an overlapping slot",
			"slot_id", slot.ID,
			"clashing_slot_id", clashes[0].ID,
		)
		return apperrors.SlotUnavailable(slot.ID)
	}

	patientHeld, err := s.slots.List(ctx, model.SlotFilter{
		PatientID:    patientID,
		StartsFrom:   from,
		StartsBefore: to,
		Statuses:     heldStatuses,
	}, 0, 0)
	if err != nil {
		return err
	}
	if clashes := conflict.SlotClashes(slot.StartsAt, to, slot.ID, patientHeld); len(clashes) > 0 {
		return apperrors.Conflict("Patient already holds an overlapping appointment").WithDetails(map[string]any{
			"slot_id":     clashes[0].ID,
			"starts_at":   clashes[0].StartsAt,
			"provider_id": clashes[0].ProviderID,
		})
	}
	return nil
}

func (s *bookingService) withProviderLock(ctx context.Context, providerID string, fn func(ctx context.Context) error) error {
	err := s.locker.WithProviderLock(ctx, providerID, fn)
	if errors.Is(err, lock.ErrLockNotAcquired) {
		s.cfg.Log.Warn("Provider calendar busy", "provider_id", providerID)
		return apperrors.Unavailable("Provider calendar")
	}
	return err
}

func (s *bookingService) validationError(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		s.cfg.Log.Warn(message, "error", err)
		return apperrors.Validation(message, verrs.Details())
	}
	return apperrors.Internal(message, err)
}
