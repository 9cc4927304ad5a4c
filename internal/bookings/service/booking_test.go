package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"carecal/internal/bookings/validator"
	"carecal/internal/events"
	slotsrepository "carecal/internal/slots/repository"
	slotsservice "carecal/internal/slots/service"
	"carecal/pkg/config"
	apperrors "carecal/pkg/errors"
	"carecal/pkg/lock"
	"carecal/pkg/logger"
	"carecal/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now       = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	slotStart = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	provider = model.Actor{ID: "prov-1", Role: model.ActorProvider}
	staff    = model.Actor{ID: "desk-1", Role: model.ActorStaff, BookingAllowed: true}
)

func patient(id string) model.Actor {
	return model.Actor{ID: id, Role: model.ActorPatient, BookingAllowed: true}
}

type fakeRules map[string]*model.AvailabilityRule

func (r fakeRules) GetByID(_ context.Context, id string) (*model.AvailabilityRule, error) {
	rule, ok := r[id]
	if !ok {
		return nil, apperrors.NotFoundWithID("Availability rule", id)
	}
	return rule, nil
}

type fixture struct {
	repo    slotsrepository.SlotRepository
	rules   fakeRules
	rec     *events.Recorder
	slots   slotsservice.SlotService
	service BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{Log: logger.Nop()}
	clock := func() time.Time { return now }

	repo := slotsrepository.NewMemorySlotRepository()
	rec := events.NewRecorder()
	slots := slotsservice.NewSlotServiceWithClock(repo, rec, cfg, clock)
	rules := fakeRules{
		"rule-1": {
			ID:                     "rule-1",
			ProviderID:             "prov-1",
			IsActive:               true,
			AllowOnlineBooking:     true,
			MaxAdvanceBookingDays:  30,
			MinAdvanceBookingHours: 24,
		},
	}

	svc := NewBookingService(Dependencies{
		Slots:     slots,
		Rules:     rules,
		Validator: validator.NewBookingValidator(cfg.Log),
		Locker:    lock.NewLocalProviderLocker(time.Second),
		Now:       clock,
	}, cfg)

	return &fixture{repo: repo, rules: rules, rec: rec, slots: slots, service: svc}
}

func (f *fixture) seed(t *testing.T, id, ruleID, providerID string, startsAt time.Time, status model.SlotStatus, patientID string) *model.Slot {
	t.Helper()
	slot := &model.Slot{
		ID:              id,
		RuleID:          ruleID,
		ProviderID:      providerID,
		Date:            startsAt.Format(model.DateLayout),
		StartTime:       startsAt.Format(model.TimeLayout),
		EndTime:         startsAt.Add(30 * time.Minute).Format(model.TimeLayout),
		TimeZone:        "UTC",
		StartsAt:        startsAt,
		DurationMinutes: 30,
		Status:          status,
		PatientID:       patientID,
	}
	slot.Refresh()
	inserted, err := f.repo.InsertIfAbsent(context.Background(), slot)
	require.NoError(t, err)
	require.True(t, inserted)
	return slot
}

func (f *fixture) available(t *testing.T, id string, startsAt time.Time) *model.Slot {
	t.Helper()
	return f.seed(t, id, "rule-1", "prov-1", startsAt, model.SlotAvailable, "")
}

func TestBookSlot_Books(t *testing.T) {
	f := newFixture(t)
	f.available(t, "slot-1", slotStart)

	slot, err := f.service.BookSlot(context.Background(), patient("pat-1"), "slot-1", &model.BookingRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.SlotBooked, slot.Status)
	assert.Equal(t, "pat-1", slot.PatientID)
	assert.False(t, slot.IsAvailable)

	booked := f.rec.OfType(events.SlotBooked)
	require.Len(t, booked, 1)
	assert.Equal(t, "pat-1", booked[0].PatientID)
}

func TestBookSlot_ApprovalThenConfirm(t *testing.T) {
	f := newFixture(t)
	f.rules["rule-1"].RequiresApproval = true
	f.available(t, "slot-1", slotStart)
	ctx := context.Background()

	slot, err := f.service.BookSlot(ctx, patient("pat-1"), "slot-1", &model.BookingRequest{PatientID: "pat-1"})
	require.NoError(t, err)
	assert.Equal(t, model.SlotPendingConfirmation, slot.Status)
	assert.Len(t, f.rec.OfType(events.SlotRequested), 1)

	_, err = f.service.ConfirmBooking(ctx, patient("pat-1"), "slot-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "got %v", err)

	slot, err = f.service.ConfirmBooking(ctx, provider, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, model.SlotBooked, slot.Status)
	assert.NotNil(t, slot.ConfirmedAt)

	_, err = f.service.ConfirmBooking(ctx, provider, "slot-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "got %v", err)
}

func TestBookSlot_ConcurrentRequestsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	f.available(t, "slot-1", slotStart)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("pat-%d", i)
			_, err := f.service.BookSlot(context.Background(), patient(id), "slot-1", &model.BookingRequest{})
			if err != nil {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotUnavailable), "got %v", err)
				return
			}
			mu.Lock()
			winners = append(winners, id)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	stored, err := f.repo.FindByID(context.Background(), "slot-1")
	require.NoError(t, err)
	assert.Equal(t, winners[0], stored.PatientID)
	assert.Len(t, f.rec.OfType(events.SlotBooked), 1)
}

func TestBookSlot_BookingWindow(t *testing.T) {
	tests := []struct {
		name     string
		startsAt time.Time
		minHours int
		code     string
	}{
		{"inside window", slotStart, 24, ""},
		{"too close", now.Add(30 * time.Minute), 48, apperrors.CodeBookingWindowViolation},
		{"exactly at minimum", now.Add(48 * time.Hour), 48, ""},
		{"beyond horizon", now.AddDate(0, 0, 40), 0, apperrors.CodeBookingWindowViolation},
		{"already started", now.Add(-time.Minute), 0, apperrors.CodeBookingWindowViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.rules["rule-1"].MinAdvanceBookingHours = tt.minHours
			f.available(t, "slot-1", tt.startsAt)

			slot, err := f.service.BookSlot(context.Background(), patient("pat-1"), "slot-1", &model.BookingRequest{})
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, model.SlotBooked, slot.Status)
				return
			}
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)

			stored, err := f.repo.FindByID(context.Background(), "slot-1")
			require.NoError(t, err)
			assert.Equal(t, model.SlotAvailable, stored.Status)
		})
	}
}

func TestBookSlot_RebookAfterCancel(t *testing.T) {
	f := newFixture(t)
	f.available(t, "slot-1", slotStart)
	ctx := context.Background()

	_, err := f.service.BookSlot(ctx, patient("pat-1"), "slot-1", &model.BookingRequest{})
	require.NoError(t, err)

	cancelled, err := f.service.CancelBooking(ctx, patient("pat-1"), "slot-1", &model.CancellationRequest{Reason: "  can't   make it "})
	require.NoError(t, err)
	assert.Equal(t, model.SlotCancelled, cancelled.Status)
	assert.True(t, cancelled.IsAvailable)
	assert.False(t, cancelled.CancelledByProvider)

	event := f.rec.OfType(events.SlotCancelled)
	require.Len(t, event, 1)
	assert.Equal(t, "pat-1", event[0].PatientID)

	rebooked, err := f.service.BookSlot(ctx, patient("pat-2"), "slot-1", &model.BookingRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.SlotBooked, rebooked.Status)
	assert.Equal(t, "pat-2", rebooked.PatientID)
	assert.Empty(t, rebooked.CancellationReason)
	assert.Nil(t, rebooked.CancelledAt)

	_, err = f.service.CancelBooking(ctx, patient("pat-1"), "slot-1", &model.CancellationRequest{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "got %v", err)

	stored, err := f.repo.FindByID(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, "pat-2", stored.PatientID)
}

func TestCancelBooking_ByProvider(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "slot-1", "rule-1", "prov-1", slotStart, model.SlotBooked, "pat-1")

	slot, err := f.service.CancelBooking(context.Background(), provider, "slot-1", &model.CancellationRequest{Reason: "clinic closed"})
	require.NoError(t, err)
	assert.True(t, slot.CancelledByProvider)
	assert.Equal(t, "clinic closed", slot.CancellationReason)

	event := f.rec.OfType(events.SlotCancelled)
	require.Len(t, event, 1)
	assert.True(t, event[0].ByProvider)
}

func TestCancelBooking_InvalidStates(t *testing.T) {
	actors := map[string]model.Actor{
		"provider": provider,
		"patient":  patient("pat-1"),
	}
	for _, status := range []model.SlotStatus{model.SlotAvailable, model.SlotCancelled, model.SlotCompleted, model.SlotNoShow} {
		for name, actor := range actors {
			t.Run(string(status)+"/"+name, func(t *testing.T) {
				f := newFixture(t)
				f.seed(t, "slot-1", "rule-1", "prov-1", slotStart, status, "")

				_, err := f.service.CancelBooking(context.Background(), actor, "slot-1", &model.CancellationRequest{})
				assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "got %v", err)
				assert.Empty(t, f.rec.Events())
			})
		}
	}
}

func TestMarkNoShow_RejectsPending(t *testing.T) {
	f := newFixture(t)
	f.rules["rule-1"].RequiresApproval = true
	f.available(t, "slot-1", slotStart)
	ctx := context.Background()

	_, err := f.service.BookSlot(ctx, patient("pat-1"), "slot-1", &model.BookingRequest{})
	require.NoError(t, err)

	_, err = f.slots.MarkNoShow(ctx, provider, "slot-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "got %v", err)
}

func TestBookSlot_Exclusivity(t *testing.T) {
	t.Run("provider holds overlapping slot", func(t *testing.T) {
		f := newFixture(t)
		f.available(t, "slot-1", slotStart)
		f.seed(t, "other", "rule-2", "prov-1", slotStart.Add(15*time.Minute), model.SlotBooked, "pat-9")

		_, err := f.service.BookSlot(context.Background(), patient("pat-1"), "slot-1", &model.BookingRequest{})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotUnavailable), "got %v", err)
	})

	t.Run("patient holds overlapping slot elsewhere", func(t *testing.T) {
		f := newFixture(t)
		f.available(t, "slot-1", slotStart)
		f.seed(t, "elsewhere", "rule-9", "prov-2", slotStart.Add(-15*time.Minute), model.SlotPendingConfirmation, "pat-1")

		_, err := f.service.BookSlot(context.Background(), patient("pat-1"), "slot-1", &model.BookingRequest{})
		require.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "got %v", err)
		assert.Equal(t, "elsewhere", apperrors.AsAppError(err).Details["slot_id"])
	})

	t.Run("adjacent slots do not clash", func(t *testing.T) {
		f := newFixture(t)
		f.available(t, "slot-1", slotStart)
		f.seed(t, "before", "rule-1", "prov-1", slotStart.Add(-30*time.Minute), model.SlotBooked, "pat-1")

		_, err := f.service.BookSlot(context.Background(), patient("pat-1"), "slot-1", &model.BookingRequest{})
		assert.NoError(t, err)
	})
}

func TestBookSlot_Authorization(t *testing.T) {
	tests := []struct {
		name  string
		actor model.Actor
		req   model.BookingRequest
		code  string
	}{
		{"authorization denied", model.Actor{ID: "pat-1", Role: model.ActorPatient}, model.BookingRequest{}, apperrors.CodeForbidden},
		{"patient books for another", patient("pat-1"), model.BookingRequest{PatientID: "pat-2"}, apperrors.CodeForbidden},
		{"other provider", model.Actor{ID: "prov-2", Role: model.ActorProvider, BookingAllowed: true}, model.BookingRequest{PatientID: "pat-2"}, apperrors.CodeForbidden},
		{"staff without patient", staff, model.BookingRequest{}, apperrors.CodeValidation},
		{"staff on behalf", staff, model.BookingRequest{PatientID: "pat-2"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.available(t, "slot-1", slotStart)

			slot, err := f.service.BookSlot(context.Background(), tt.actor, "slot-1", &tt.req)
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, "pat-2", slot.PatientID)
				return
			}
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestBookSlot_RuleNotBookable(t *testing.T) {
	tests := []struct {
		name   string
		ruleID string
		mutate func(r *model.AvailabilityRule)
	}{
		{"deactivated", "rule-1", func(r *model.AvailabilityRule) { r.IsActive = false }},
		{"offline only", "rule-1", func(r *model.AvailabilityRule) { r.AllowOnlineBooking = false }},
		{"rule deleted", "rule-gone", func(*model.AvailabilityRule) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.mutate(f.rules["rule-1"])
			f.seed(t, "slot-1", tt.ruleID, "prov-1", slotStart, model.SlotAvailable, "")

			_, err := f.service.BookSlot(context.Background(), patient("pat-1"), "slot-1", &model.BookingRequest{})
			assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotUnavailable), "got %v", err)
		})
	}
}

func TestBookSlot_UnknownSlot(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.BookSlot(context.Background(), patient("pat-1"), "missing", &model.BookingRequest{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound), "got %v", err)
}
