package worker

import (
	"context"
	"testing"
	"time"

	availabilityrepository "carecal/internal/availability/repository"
	availabilityservice "carecal/internal/availability/service"
	"carecal/internal/availability/validator"
	"carecal/internal/events"
	"carecal/internal/slots/materializer"
	slotsrepository "carecal/internal/slots/repository"
	slotsservice "carecal/internal/slots/service"
	"carecal/pkg/config"
	mongotx "carecal/pkg/db/mongo"
	"carecal/pkg/kafka"
	"carecal/pkg/lock"
	"carecal/pkg/logger"
	"carecal/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 2024-01-01.
var now = time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

var owner = model.Actor{ID: "prov-1", Role: model.ActorProvider}

type fixture struct {
	worker *Worker
	rules  availabilityservice.RuleService
	slots  slotsrepository.SlotRepository
	rec    *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Log:                  logger.Nop(),
		MaterializeDays:      14,
		RuleRetentionDays:    30,
		SlotRetentionDays:    90,
		ReminderLead:         24 * time.Hour,
		HorizonSweepInterval: time.Hour,
		ReminderScanInterval: time.Hour,
		PurgeInterval:        time.Hour,
	}
	clock := func() time.Time { return now }

	slots := slotsrepository.NewMemorySlotRepository()
	rec := events.NewRecorder()

	rules := availabilityservice.NewRuleService(availabilityservice.Dependencies{
		Rules:        availabilityrepository.NewMemoryRuleRepository(),
		Slots:        slots,
		Materializer: materializer.New(slots, materializer.PolicyDisable, cfg.Log).WithClock(clock),
		Validator:    validator.NewRuleValidator(cfg.Log),
		Locker:       lock.NewLocalProviderLocker(time.Second),
		Tx:           mongotx.NewDirectTransactionManager(),
		Emitter:      rec,
		Now:          clock,
	}, cfg)

	w := New(rules, slotsservice.NewSlotServiceWithClock(slots, rec, cfg, clock), cfg)
	w.now = clock
	return &fixture{worker: w, rules: rules, slots: slots, rec: rec}
}

func mondayRule() *model.AvailabilityRule {
	return &model.AvailabilityRule{
		Title:               "Monday clinic",
		RecurrenceKind:      "weekly",
		DayOfWeek:           1,
		StartDate:           "2024-01-01",
		StartTime:           "09:00",
		EndTime:             "12:00",
		SlotDurationMinutes: 30,
		TimeZone:            "UTC",
		LocationKind:        model.LocationVirtual,
		AppointmentKind:     model.AppointmentConsultation,
		AllowOnlineBooking:  true,
	}
}

func countSlots(t *testing.T, f *fixture, ruleID string) int {
	t.Helper()
	slots, err := f.slots.List(context.Background(), model.SlotFilter{RuleID: ruleID}, 0, 0)
	require.NoError(t, err)
	return len(slots)
}

func ruleMessage(t *testing.T, typ events.Type, rule *model.AvailabilityRule) kafka.Message {
	t.Helper()
	msg, err := events.ToMessage(events.ForRule(typ, rule, now), "test")
	require.NoError(t, err)
	return msg
}

func TestHandleRuleEvent_ExtendsToHorizon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.rules.Create(ctx, owner, "prov-1", mondayRule())
	require.NoError(t, err)
	require.Equal(t, 12, countSlots(t, f, rule.ID))

	require.NoError(t, f.worker.HandleRuleEvent(ctx, ruleMessage(t, events.RuleCreated, rule)))
	assert.Equal(t, 30, countSlots(t, f, rule.ID))

	// Redelivery is harmless.
	require.NoError(t, f.worker.HandleRuleEvent(ctx, ruleMessage(t, events.RuleCreated, rule)))
	assert.Equal(t, 30, countSlots(t, f, rule.ID))
}

func TestHandleRuleEvent_IgnoresOtherTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.rules.Create(ctx, owner, "prov-1", mondayRule())
	require.NoError(t, err)

	require.NoError(t, f.worker.HandleRuleEvent(ctx, ruleMessage(t, events.RuleDeactivated, rule)))
	assert.Equal(t, 12, countSlots(t, f, rule.ID))
}

func TestHandleRuleEvent_MissingRule(t *testing.T) {
	f := newFixture(t)

	ghost := &model.AvailabilityRule{ID: "gone", ProviderID: "prov-1"}
	assert.NoError(t, f.worker.HandleRuleEvent(context.Background(), ruleMessage(t, events.RuleUpdated, ghost)))
}

func TestHandleRuleEvent_UndecodablePayload(t *testing.T) {
	f := newFixture(t)

	msg := kafka.Message{Value: []byte("{not json")}
	err := f.worker.HandleRuleEvent(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
}

func TestScanReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	soon := &model.Slot{
		ID:              "soon",
		RuleID:          "rule-1",
		ProviderID:      "prov-1",
		PatientID:       "pat-1",
		Date:            "2024-01-01",
		StartTime:       "09:00",
		EndTime:         "09:30",
		TimeZone:        "UTC",
		StartsAt:        now.Add(3 * time.Hour),
		DurationMinutes: 30,
		Status:          model.SlotBooked,
	}
	later := soon.Clone()
	later.ID = "later"
	later.Date = "2024-01-05"
	later.StartsAt = now.Add(4 * 24 * time.Hour)
	for _, s := range []*model.Slot{soon, later} {
		s.Refresh()
		_, err := f.slots.InsertIfAbsent(ctx, s)
		require.NoError(t, err)
	}

	require.NoError(t, f.worker.ScanReminders(ctx))
	due := f.rec.OfType(events.ReminderDue)
	require.Len(t, due, 1)
	assert.Equal(t, "soon", due[0].SlotID)
	assert.Equal(t, "pat-1", due[0].PatientID)
}

func TestSweepAndPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.rules.Create(ctx, owner, "prov-1", mondayRule())
	require.NoError(t, err)

	require.NoError(t, f.worker.Sweep(ctx))
	assert.Equal(t, 30, countSlots(t, f, rule.ID))

	// Nothing has ended yet.
	require.NoError(t, f.worker.Purge(ctx))
	assert.Equal(t, 30, countSlots(t, f, rule.ID))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	rule, err := f.rules.Create(ctx, owner, "prov-1", mondayRule())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		slots, err := f.slots.List(context.Background(), model.SlotFilter{RuleID: rule.ID}, 0, 0)
		return err == nil && len(slots) == 30
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
