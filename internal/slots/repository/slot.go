package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "carecal/internal/slots/errors"
	"carecal/pkg/config"
	"carecal/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Slots"
)

type SlotRepository interface {
	// InsertIfAbsent stores slot unless a row with the same provider, date and
	// start time exists. It never overwrites.
	InsertIfAbsent(ctx context.Context, slot *model.Slot) (bool, error)
	FindByID(ctx context.Context, id string) (*model.Slot, error)
	FindByKey(ctx context.Context, providerID string, date string, startTime string) (*model.Slot, error)
	List(ctx context.Context, filter model.SlotFilter, limit int, offset int) ([]*model.Slot, error)
	// CompareAndSwap writes next only if the stored version still equals
	// observed's, bumping the version. It returns ErrStale otherwise.
	CompareAndSwap(ctx context.Context, observed *model.Slot, next *model.Slot) (*model.Slot, error)
	// CountByStatus counts a provider's slots per status. AVAILABLE slots that
	// are soft-disabled or belong to one of inactiveRuleIDs are left out.
	CountByStatus(ctx context.Context, providerID string, from string, to string, inactiveRuleIDs []string) (map[model.SlotStatus]int64, error)
	// SetDisabled flips the soft-disable flag on AVAILABLE and CANCELLED slots only.
	SetDisabled(ctx context.Context, ids []string, disabled bool) (int64, error)
	// DeleteAvailable removes AVAILABLE slots only.
	DeleteAvailable(ctx context.Context, ids []string) (int64, error)
	FindReminderDue(ctx context.Context, from time.Time, to time.Time) ([]*model.Slot, error)
	CountHeldByRule(ctx context.Context, ruleID string) (int64, error)
	// DeleteUnbookedByRule removes the rule's AVAILABLE and CANCELLED slots.
	DeleteUnbookedByRule(ctx context.Context, ruleID string) (int64, error)
	PurgeCancelled(ctx context.Context, before time.Time) (int64, error)
}

type mongoSlotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// withTimeout wraps the context with a timeout unless it is a transaction's
// SessionContext, which cannot be wrapped without leaving the transaction.
func (r *mongoSlotRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining > timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoSlotRepository) InsertIfAbsent(ctx context.Context, slot *model.Slot) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"provider_id": slot.ProviderID,
		"date":        slot.Date,
		"start_time":  slot.StartTime,
	}
	update := bson.M{"$setOnInsert": slot}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// Two upserts racing on the unique index: the loser sees a duplicate key.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert slot: %w", err)
	}
	return result.UpsertedCount == 1, nil
}

func (r *mongoSlotRepository) FindByID(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var slot model.Slot
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}
	return &slot, nil
}

func (r *mongoSlotRepository) FindByKey(ctx context.Context, providerID string, date string, startTime string) (*model.Slot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"provider_id": providerID,
		"date":        date,
		"start_time":  startTime,
	}

	var slot model.Slot
	err := r.collection.FindOne(ctx, filter).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s %s %s", slotserrors.ErrNotFound, providerID, date, startTime)
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}
	return &slot, nil
}

func (r *mongoSlotRepository) List(ctx context.Context, filter model.SlotFilter, limit int, offset int) ([]*model.Slot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "starts_at", Value: 1}, {Key: "provider_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cursor, err := r.collection.Find(ctx, filterDocument(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer cursor.Close(ctx)

	slots := []*model.Slot{}
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}
	return slots, nil
}

func filterDocument(f model.SlotFilter) bson.M {
	doc := bson.M{}
	if f.ProviderID != "" {
		doc["provider_id"] = f.ProviderID
	}
	if f.RuleID != "" {
		doc["rule_id"] = f.RuleID
	}
	if f.PatientID != "" {
		doc["patient_id"] = f.PatientID
	}

	date := bson.M{}
	if f.From != "" {
		date["$gte"] = f.From
	}
	if f.To != "" {
		date["$lte"] = f.To
	}
	if len(date) > 0 {
		doc["date"] = date
	}

	startsAt := bson.M{}
	if !f.StartsFrom.IsZero() {
		startsAt["$gte"] = f.StartsFrom
	}
	if !f.StartsBefore.IsZero() {
		startsAt["$lt"] = f.StartsBefore
	}
	if len(startsAt) > 0 {
		doc["starts_at"] = startsAt
	}

	if len(f.Statuses) > 0 {
		doc["status"] = bson.M{"$in": f.Statuses}
	}
	if !f.IncludeDisabled {
		doc["disabled"] = bson.M{"$ne": true}
	}
	return doc
}

func (r *mongoSlotRepository) CompareAndSwap(ctx context.Context, observed *model.Slot, next *model.Slot) (*model.Slot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":     observed.ID,
		"version": observed.Version,
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var stored model.Slot
	err := r.collection.FindOneAndUpdate(ctx, filter, changeSet(next, observed.Version+1), opts).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", slotserrors.ErrStale, observed.ID)
		}
		return nil, fmt.Errorf("failed to update slot: %w", err)
	}
	return &stored, nil
}

// changeSet writes every field of next that may change after insert. The id,
// natural key and creation time are fixed once the slot exists. Cleared
// optional fields are unset so a stale value never survives a rebooking.
func changeSet(next *model.Slot, version int64) bson.M {
	set := bson.M{
		"rule_id":               next.RuleID,
		"end_time":              next.EndTime,
		"time_zone":             next.TimeZone,
		"starts_at":             next.StartsAt,
		"duration_minutes":      next.DurationMinutes,
		"status":                next.Status,
		"is_available":          next.IsAvailable,
		"disabled":              next.Disabled,
		"cancelled_by_provider": next.CancelledByProvider,
		"checked_in":            next.CheckedIn,
		"no_show":               next.NoShow,
		"reminder_sent":         next.ReminderSent,
		"updated_at":            next.UpdatedAt,
		"version":               version,
	}
	unset := bson.M{}
	optional := func(field string, value any, present bool) {
		if present {
			set[field] = value
		} else {
			unset[field] = ""
		}
	}
	optional("patient_id", next.PatientID, next.PatientID != "")
	optional("requested_at", next.RequestedAt, next.RequestedAt != nil)
	optional("confirmed_at", next.ConfirmedAt, next.ConfirmedAt != nil)
	optional("cancelled_at", next.CancelledAt, next.CancelledAt != nil)
	optional("completed_at", next.CompletedAt, next.CompletedAt != nil)
	optional("checked_in_at", next.CheckedInAt, next.CheckedInAt != nil)
	optional("cancellation_reason", next.CancellationReason, next.CancellationReason != "")
	optional("notes", next.Notes, next.Notes != "")
	optional("actual_duration_minutes", next.ActualDurationMinutes, next.ActualDurationMinutes != 0)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (r *mongoSlotRepository) CountByStatus(ctx context.Context, providerID string, from string, to string, inactiveRuleIDs []string) (map[model.SlotStatus]int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	match := filterDocument(model.SlotFilter{ProviderID: providerID, From: from, To: to, IncludeDisabled: true})
	closed := bson.A{bson.M{"disabled": true}}
	if len(inactiveRuleIDs) > 0 {
		closed = append(closed, bson.M{"rule_id": bson.M{"$in": inactiveRuleIDs}})
	}
	match["$nor"] = bson.A{bson.M{"status": model.SlotAvailable, "$or": closed}}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate slots: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status model.SlotStatus `bson:"_id"`
		Count  int64            `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode slot counts: %w", err)
	}

	counts := make(map[model.SlotStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *mongoSlotRepository) SetDisabled(ctx context.Context, ids []string, disabled bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":      bson.M{"$in": ids},
		"status":   bson.M{"$in": []model.SlotStatus{model.SlotAvailable, model.SlotCancelled}},
		"disabled": !disabled,
	}
	update := bson.M{
		"$set": bson.M{
			"disabled":     disabled,
			"is_available": !disabled,
			"updated_at":   time.Now().UTC(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to toggle slots: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoSlotRepository) DeleteAvailable(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{
		"_id":    bson.M{"$in": ids},
		"status": model.SlotAvailable,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete slots: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoSlotRepository) FindReminderDue(ctx context.Context, from time.Time, to time.Time) ([]*model.Slot, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":        model.SlotBooked,
		"reminder_sent": false,
		"starts_at":     bson.M{"$gte": from, "$lt": to},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "starts_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query reminder slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*model.Slot
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode reminder slots: %w", err)
	}
	return slots, nil
}

func (r *mongoSlotRepository) CountHeldByRule(ctx context.Context, ruleID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"rule_id": ruleID,
		"status":  bson.M{"$in": []model.SlotStatus{model.SlotPendingConfirmation, model.SlotBooked}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count held slots: %w", err)
	}
	return count, nil
}

func (r *mongoSlotRepository) DeleteUnbookedByRule(ctx context.Context, ruleID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{
		"rule_id": ruleID,
		"status":  bson.M{"$in": []model.SlotStatus{model.SlotAvailable, model.SlotCancelled}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete rule slots: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoSlotRepository) PurgeCancelled(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{
		"status":    model.SlotCancelled,
		"starts_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge cancelled slots: %w", err)
	}
	return result.DeletedCount, nil
}
