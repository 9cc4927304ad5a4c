package platform

import (
	"context"
	"testing"
	"time"

	"carecal/pkg/config"
	"carecal/pkg/logger"
	"carecal/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StorageDriver:    config.StorageMemory,
		MaterializeDays:  7,
		OrphanSlotPolicy: config.OrphanPolicyDisable,
		ProviderLockWait: time.Second,
		EventQueueSize:   16,
		Log:              logger.Nop(),
	}
}

func TestPlatform_MemoryEndToEnd(t *testing.T) {
	p, err := New(memoryConfig(), "test")
	require.NoError(t, err)
	assert.Nil(t, p.Kafka)
	defer p.Close(context.Background())

	ctx := context.Background()
	provider := model.Actor{ID: "prov-1", Role: model.ActorProvider}
	patient := model.Actor{ID: "pat-1", Role: model.ActorPatient, BookingAllowed: true}
	today := time.Now().UTC()

	rule, err := p.Rules.Create(ctx, provider, "prov-1", &model.AvailabilityRule{
		Title:               "Morning clinic",
		RecurrenceKind:      "daily",
		StartDate:           today.Format(model.DateLayout),
		StartTime:           "10:00",
		EndTime:             "11:00",
		SlotDurationMinutes: 30,
		TimeZone:            "UTC",
		LocationKind:        model.LocationVirtual,
		AppointmentKind:     model.AppointmentConsultation,
		AllowOnlineBooking:  true,
	})
	require.NoError(t, err)

	date := today.AddDate(0, 0, 3).Format(model.DateLayout)
	slots, err := p.Slots.List(ctx, model.SlotFilter{RuleID: rule.ID, From: date, To: date}, 0, 0)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].IsAvailable)

	booked, err := p.Bookings.BookSlot(ctx, patient, slots[0].ID, &model.BookingRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.SlotBooked, booked.Status)
	assert.Equal(t, "pat-1", booked.PatientID)
	assert.False(t, booked.IsAvailable)

	stats, err := p.Rules.Statistics(ctx, provider, "prov-1", date, date)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.Booked)
}
