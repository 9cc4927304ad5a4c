package repository

import (
	"context"
	"testing"
	"time"

	slotserrors "carecal/internal/slots/errors"
	"carecal/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func seedSlot(t *testing.T, repo SlotRepository, id, ruleID, start string, status model.SlotStatus) *model.Slot {
	t.Helper()
	startsAt, err := time.Parse("2006-01-02 15:04", "2024-03-04 "+start)
	require.NoError(t, err)

	slot := &model.Slot{
		ID:              id,
		RuleID:          ruleID,
		ProviderID:      "prov-1",
		Date:            "2024-03-04",
		StartTime:       start,
		TimeZone:        "UTC",
		StartsAt:        startsAt,
		DurationMinutes: 30,
		Status:          status,
	}
	if status.Held() {
		slot.PatientID = "pat-1"
	}
	slot.Refresh()
	inserted, err := repo.InsertIfAbsent(context.Background(), slot)
	require.NoError(t, err)
	require.True(t, inserted)
	return slot
}

func TestMemoryCompareAndSwap_VersionGuardsWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository()
	observed := seedSlot(t, repo, "slot-1", "rule-1", "09:00", model.SlotAvailable)

	first := observed.Clone()
	first.Status = model.SlotBooked
	first.PatientID = "pat-1"
	stored, err := repo.CompareAndSwap(ctx, observed, first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)

	// Same status as the stored row, but written from an older read.
	second := observed.Clone()
	second.Status = model.SlotBooked
	second.PatientID = "pat-2"
	_, err = repo.CompareAndSwap(ctx, observed, second)
	assert.ErrorIs(t, err, slotserrors.ErrStale)

	got, err := repo.FindByID(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, "pat-1", got.PatientID)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemorySetDisabled_CoversCancelledAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository()
	open := seedSlot(t, repo, "open", "rule-1", "09:00", model.SlotAvailable)
	seedSlot(t, repo, "cancelled", "rule-1", "09:30", model.SlotCancelled)
	seedSlot(t, repo, "booked", "rule-1", "10:00", model.SlotBooked)

	n, err := repo.SetDisabled(ctx, []string{"open", "cancelled", "booked"}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cancelled, err := repo.FindByID(ctx, "cancelled")
	require.NoError(t, err)
	assert.True(t, cancelled.Disabled)
	assert.False(t, cancelled.IsAvailable)
	assert.Equal(t, model.SlotCancelled, cancelled.Status)

	booked, err := repo.FindByID(ctx, "booked")
	require.NoError(t, err)
	assert.False(t, booked.Disabled)

	_, err = repo.CompareAndSwap(ctx, open, open.Clone())
	assert.ErrorIs(t, err, slotserrors.ErrStale, "a read taken before the disable is stale")
}

func TestMemoryCountByStatus_SkipsClosedOpenings(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository()
	seedSlot(t, repo, "a", "rule-1", "09:00", model.SlotAvailable)
	seedSlot(t, repo, "b", "rule-1", "09:30", model.SlotAvailable)
	seedSlot(t, repo, "c", "rule-old", "10:00", model.SlotAvailable)
	seedSlot(t, repo, "d", "rule-old", "10:30", model.SlotBooked)
	seedSlot(t, repo, "e", "rule-1", "11:00", model.SlotCancelled)
	_, err := repo.SetDisabled(ctx, []string{"b", "e"}, true)
	require.NoError(t, err)

	counts, err := repo.CountByStatus(ctx, "prov-1", "2024-03-01", "2024-03-31", []string{"rule-old"})
	require.NoError(t, err)
	assert.Equal(t, map[model.SlotStatus]int64{
		model.SlotAvailable: 1,
		model.SlotBooked:    1,
		model.SlotCancelled: 1,
	}, counts)
}

func TestMemoryFindByKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository()
	seedSlot(t, repo, "slot-1", "rule-1", "09:00", model.SlotAvailable)

	got, err := repo.FindByKey(ctx, "prov-1", "2024-03-04", "09:00")
	require.NoError(t, err)
	assert.Equal(t, "slot-1", got.ID)

	_, err = repo.FindByKey(ctx, "prov-1", "2024-03-04", "09:30")
	assert.ErrorIs(t, err, slotserrors.ErrNotFound)
}

func TestChangeSet_UnsetsClearedFields(t *testing.T) {
	cancelledAt := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	next := &model.Slot{
		ID:                 "slot-1",
		RuleID:             "rule-1",
		Status:             model.SlotCancelled,
		IsAvailable:        true,
		CancelledAt:        &cancelledAt,
		CancellationReason: "sick",
	}

	update := changeSet(next, 4)

	set, ok := update["$set"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, int64(4), set["version"])
	assert.Equal(t, model.SlotCancelled, set["status"])
	assert.Equal(t, "sick", set["cancellation_reason"])
	assert.NotContains(t, set, "_id")
	assert.NotContains(t, set, "start_time")

	unset, ok := update["$unset"].(bson.M)
	require.True(t, ok)
	assert.Contains(t, unset, "patient_id")
	assert.Contains(t, unset, "confirmed_at")
	assert.NotContains(t, unset, "cancelled_at")
}
