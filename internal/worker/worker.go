// Package worker runs the periodic jobs that keep materialized calendars
// current: horizon sweeps, reminder scans and retention purges. It also
// handles rule events so edits reach the full booking horizon quickly.
package worker

import (
	"context"
	"sync"
	"time"

	availabilityservice "carecal/internal/availability/service"
	"carecal/internal/events"
	slotsservice "carecal/internal/slots/service"
	"carecal/pkg/config"
	apperrors "carecal/pkg/errors"
	"carecal/pkg/kafka"
)

type Worker struct {
	rules availabilityservice.RuleService
	slots slotsservice.SlotService
	cfg   *config.Config
	now   func() time.Time
}

func New(rules availabilityservice.RuleService, slots slotsservice.SlotService, cfg *config.Config) *Worker {
	return &Worker{
		rules: rules,
		slots: slots,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Run starts every job on its own ticker and blocks until ctx is cancelled.
// Each job also runs once immediately.
func (w *Worker) Run(ctx context.Context) {
	jobs := []struct {
		name     string
		interval time.Duration
		fn       func(ctx context.Context) error
	}{
		{"horizon_sweep", w.cfg.HorizonSweepInterval, w.Sweep},
		{"reminder_scan", w.cfg.ReminderScanInterval, w.ScanReminders},
		{"retention_purge", w.cfg.PurgeInterval, w.Purge},
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.every(ctx, job.name, job.interval, job.fn)
		}()
	}

	w.cfg.Log.Info("Worker started",
		"horizon_sweep_interval", w.cfg.HorizonSweepInterval,
		"reminder_scan_interval", w.cfg.ReminderScanInterval,
		"purge_interval", w.cfg.PurgeInterval,
	)
	wg.Wait()
	w.cfg.Log.Info("Worker stopped")
}

func (w *Worker) every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			w.cfg.Log.Error("Job failed", "job", name, "duration", time.Since(start), "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) Sweep(ctx context.Context) error {
	swept, err := w.rules.SweepHorizon(ctx)
	w.cfg.Log.Info("Horizon sweep finished", "rules", swept)
	return err
}

func (w *Worker) ScanReminders(ctx context.Context) error {
	n, err := w.slots.ScanReminders(ctx, w.now(), w.cfg.ReminderLead)
	if n > 0 {
		w.cfg.Log.Info("Reminders due", "count", n)
	}
	return err
}

func (w *Worker) Purge(ctx context.Context) error {
	_, err := w.rules.PurgeExpired(ctx, w.now())
	return err
}

// HandleRuleEvent extends a created, updated or re-activated rule to its full
// horizon. Requests only materialize the first days synchronously.
func (w *Worker) HandleRuleEvent(ctx context.Context, msg kafka.Message) error {
	e, err := events.FromMessage(msg)
	if err != nil {
		return err
	}

	switch e.Type {
	case events.RuleCreated, events.RuleUpdated, events.RuleActivated:
	default:
		return nil
	}

	res, err := w.rules.MaterializeHorizon(ctx, e.RuleID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			w.cfg.Log.Warn("Rule vanished before materialization", "rule_id", e.RuleID, "event_id", e.ID)
			return nil
		}
		if apperrors.HasCode(err, apperrors.CodeUnavailable) || apperrors.HasCode(err, apperrors.CodeInternal) {
			return kafka.NewTransientError("materialize rule horizon", err)
		}
		return kafka.NewPermanentError("materialize rule horizon", err)
	}

	w.cfg.Log.Info("Rule horizon materialized",
		"rule_id", e.RuleID,
		"event_type", e.Type,
		"created", res.Created,
		"existing", res.Existing,
		"disabled", res.Disabled,
		"deleted", res.Deleted,
	)
	return nil
}
