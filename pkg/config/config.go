package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"carecal/pkg/client"
	"carecal/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisDialTimeout time.Duration

	// StorageDriver selects mongo (with redis locks) or the in-process memory stores.
	StorageDriver string

	Port string

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MaterializeDays      int
	HorizonSweepInterval time.Duration
	ReminderLead         time.Duration
	ReminderScanInterval time.Duration
	PurgeInterval        time.Duration
	RuleRetentionDays    int
	SlotRetentionDays    int
	OrphanSlotPolicy     string
	ProviderLockTTL      time.Duration
	ProviderLockWait     time.Duration
	EventQueueSize       int

	KafkaEnabled bool

	LogLevel  string
	LogFormat string

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	// .env is optional; the environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:        getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisUsername:    getEnvStr(EnvRedisUsername, ""),
		RedisPassword:    getEnvStr(EnvRedisPassword, ""),
		RedisDB:          getEnvNum(EnvRedisDB, DefaultRedisDB),
		RedisDialTimeout: getEnvDuration(EnvRedisDialTimeout, DefaultRedisDialTimeout),

		StorageDriver: getEnvStr(EnvStorageDriver, DefaultStorageDriver),

		Port: getEnvStr(EnvPort, DefaultPort),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		MaterializeDays:      getEnvNum(EnvMaterializeDays, DefaultMaterializeDays),
		HorizonSweepInterval: getEnvDuration(EnvHorizonSweepInterval, DefaultHorizonSweepInterval),
		ReminderLead:         getEnvDuration(EnvReminderLead, DefaultReminderLead),
		ReminderScanInterval: getEnvDuration(EnvReminderScanInterval, DefaultReminderScanInterval),
		PurgeInterval:        getEnvDuration(EnvPurgeInterval, DefaultPurgeInterval),
		RuleRetentionDays:    getEnvNum(EnvRuleRetentionDays, DefaultRuleRetentionDays),
		SlotRetentionDays:    getEnvNum(EnvSlotRetentionDays, DefaultSlotRetentionDays),
		OrphanSlotPolicy:     getEnvStr(EnvOrphanSlotPolicy, DefaultOrphanSlotPolicy),
		ProviderLockTTL:      getEnvDuration(EnvProviderLockTTL, DefaultProviderLockTTL),
		ProviderLockWait:     getEnvDuration(EnvProviderLockWait, DefaultProviderLockWait),
		EventQueueSize:       getEnvNum(EnvEventQueueSize, DefaultEventQueueSize),

		KafkaEnabled: getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),

		LogLevel:  getEnvStr(EnvLogLevel, DefaultLogLevel),
		LogFormat: getEnvStr(EnvLogFormat, DefaultLogFormat),

		Client: client.NewClient(),
	}

	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		AddSource: true,
		Service:   serviceName,
	})

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) UsesMemoryStorage() bool {
	return cfg.StorageDriver == StorageMemory
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, client.RedisOptions{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.RedisDialTimeout,
	})
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StorageDriver {
	case StorageMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
		if cfg.RedisAddr == "" {
			errors = append(errors, "RedisAddr cannot be empty")
		}
		if cfg.RedisDB < 0 {
			errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
		}
	case StorageMemory:
	default:
		errors = append(errors, fmt.Sprintf("StorageDriver must be one of [%s, %s], got: %s", StorageMongo, StorageMemory, cfg.StorageDriver))
	}

	for name, d := range map[string]time.Duration{
		"RequestTimeout":       cfg.RequestTimeout,
		"IdempotencyTTL":       cfg.IdempotencyTTL,
		"ReadTimeout":          cfg.ReadTimeout,
		"WriteTimeout":         cfg.WriteTimeout,
		"IdleTimeout":          cfg.IdleTimeout,
		"ShutdownTimeout":      cfg.ShutdownTimeout,
		"HorizonSweepInterval": cfg.HorizonSweepInterval,
		"ReminderLead":         cfg.ReminderLead,
		"ReminderScanInterval": cfg.ReminderScanInterval,
		"PurgeInterval":        cfg.PurgeInterval,
		"ProviderLockTTL":      cfg.ProviderLockTTL,
		"ProviderLockWait":     cfg.ProviderLockWait,
	} {
		if d <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}

	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.MaterializeDays < 1 || cfg.MaterializeDays > 365 {
		errors = append(errors, fmt.Sprintf("MaterializeDays must be between 1 and 365, got: %d", cfg.MaterializeDays))
	}
	if cfg.RuleRetentionDays < 0 {
		errors = append(errors, fmt.Sprintf("RuleRetentionDays cannot be negative, got: %d", cfg.RuleRetentionDays))
	}
	if cfg.SlotRetentionDays < 0 {
		errors = append(errors, fmt.Sprintf("SlotRetentionDays cannot be negative, got: %d", cfg.SlotRetentionDays))
	}
	if cfg.OrphanSlotPolicy != OrphanPolicyDisable && cfg.OrphanSlotPolicy != OrphanPolicyDelete {
		errors = append(errors, fmt.Sprintf("OrphanSlotPolicy must be one of [%s, %s], got: %s", OrphanPolicyDisable, OrphanPolicyDelete, cfg.OrphanSlotPolicy))
	}
	if cfg.EventQueueSize <= 0 {
		errors = append(errors, fmt.Sprintf("EventQueueSize must be positive, got: %d", cfg.EventQueueSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"storage_driver", cfg.StorageDriver,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"port", cfg.Port,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"materialize_days", cfg.MaterializeDays,
		"horizon_sweep_interval", cfg.HorizonSweepInterval,
		"reminder_lead", cfg.ReminderLead,
		"reminder_scan_interval", cfg.ReminderScanInterval,
		"purge_interval", cfg.PurgeInterval,
		"rule_retention_days", cfg.RuleRetentionDays,
		"slot_retention_days", cfg.SlotRetentionDays,
		"orphan_slot_policy", cfg.OrphanSlotPolicy,
		"provider_lock_ttl", cfg.ProviderLockTTL,
		"kafka_enabled", cfg.KafkaEnabled,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
