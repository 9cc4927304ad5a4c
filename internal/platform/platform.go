// Package platform assembles the stores, services and event pipeline shared by
// the availability, bookings and worker binaries.
package platform

import (
	"context"
	"fmt"

	availabilityrepository "carecal/internal/availability/repository"
	availabilityservice "carecal/internal/availability/service"
	availabilityvalidator "carecal/internal/availability/validator"
	bookingsservice "carecal/internal/bookings/service"
	bookingsvalidator "carecal/internal/bookings/validator"
	"carecal/internal/events"
	"carecal/internal/slots/materializer"
	slotsrepository "carecal/internal/slots/repository"
	slotsservice "carecal/internal/slots/service"
	"carecal/pkg/config"
	mongotx "carecal/pkg/db/mongo"
	kafka_config "carecal/pkg/kafka/config"
	kafka_middleware "carecal/pkg/kafka/middleware"
	"carecal/pkg/lock"
)

type Platform struct {
	Rules    availabilityservice.RuleService
	Slots    slotsservice.SlotService
	Bookings bookingsservice.BookingService

	Dispatcher *events.Dispatcher
	// Kafka is nil when KAFKA_ENABLED is false.
	Kafka   *kafka_config.Config
	Metrics *kafka_middleware.Metrics

	cfg *config.Config
}

// New connects the configured storage driver and builds every service on top
// of it. source names the emitting binary in event headers.
func New(cfg *config.Config, source string) (*Platform, error) {
	var (
		rules  availabilityrepository.RuleRepository
		slots  slotsrepository.SlotRepository
		locker lock.Locker
		tx     mongotx.TransactionManager
	)

	if cfg.UsesMemoryStorage() {
		rules = availabilityrepository.NewMemoryRuleRepository()
		slots = slotsrepository.NewMemorySlotRepository()
		locker = lock.NewLocalProviderLocker(cfg.ProviderLockWait)
		tx = mongotx.NewDirectTransactionManager()
		cfg.Log.Warn("Using in-memory storage; data is lost on restart")
	} else {
		cfg.SetMongo()
		cfg.SetRedis()
		rules = availabilityrepository.NewMongoRuleRepository(cfg)
		slots = slotsrepository.NewMongoSlotRepository(cfg)
		locker = lock.NewRedisProviderLocker(cfg.Client.Redis, cfg.ProviderLockTTL, cfg.ProviderLockWait)
		tx = mongotx.NewTransactionManager(cfg.Client.Mongo)
	}

	p := &Platform{cfg: cfg}

	var publisher events.Publisher = events.NewLogPublisher(cfg.Log)
	if cfg.KafkaEnabled {
		kcfg, err := kafka_config.Load()
		if err != nil {
			return nil, fmt.Errorf("load kafka config: %w", err)
		}
		p.Kafka = kcfg
		p.Metrics = kafka_middleware.NewMetrics()
		kp, err := events.NewKafkaPublisher(kcfg, cfg.Log, p.Metrics, source)
		if err != nil {
			return nil, err
		}
		publisher = kp
	}
	p.Dispatcher = events.NewDispatcher(publisher, cfg.Log, cfg.EventQueueSize)

	p.Slots = slotsservice.NewSlotService(slots, p.Dispatcher, cfg)
	p.Rules = availabilityservice.NewRuleService(availabilityservice.Dependencies{
		Rules:        rules,
		Slots:        slots,
		Materializer: materializer.New(slots, materializer.Policy(cfg.OrphanSlotPolicy), cfg.Log).
			WithRuleActive(availabilityservice.RuleActivity(rules)),
		Validator:    availabilityvalidator.NewRuleValidator(cfg.Log),
		Locker:       locker,
		Tx:           tx,
		Emitter:      p.Dispatcher,
	}, cfg)
	p.Bookings = bookingsservice.NewBookingService(bookingsservice.Dependencies{
		Slots:     p.Slots,
		Rules:     p.Rules,
		Validator: bookingsvalidator.NewBookingValidator(cfg.Log),
		Locker:    locker,
	}, cfg)

	cfg.Log.Info("Platform initialized",
		"storage_driver", cfg.StorageDriver,
		"orphan_slot_policy", cfg.OrphanSlotPolicy,
		"kafka_enabled", cfg.KafkaEnabled,
	)
	return p, nil
}

// Close drains pending events. Connections are closed by the config's
// GracefulShutdown.
func (p *Platform) Close(ctx context.Context) {
	if err := p.Dispatcher.Close(ctx); err != nil {
		p.cfg.Log.Error("Failed to close event publisher", "error", err)
	}
	if dropped := p.Dispatcher.Dropped(); dropped > 0 {
		p.cfg.Log.Warn("Events dropped during run", "dropped", dropped)
	}
	if p.Metrics != nil {
		p.cfg.Log.Info("Kafka metrics", "snapshot", p.Metrics.Snapshot())
	}
}
