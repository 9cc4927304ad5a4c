package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisUsername    = "REDIS_USERNAME"
	EnvRedisPassword    = "REDIS_PASSWORD"
	EnvRedisDB          = "REDIS_DB"
	EnvRedisDialTimeout = "REDIS_DIAL_TIMEOUT"

	EnvStorageDriver = "STORAGE_DRIVER"

	EnvPort      = "PORT"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvMaterializeDays      = "DEFAULT_MATERIALIZE_DAYS"
	EnvHorizonSweepInterval = "HORIZON_SWEEP_INTERVAL"
	EnvReminderLead         = "REMINDER_LEAD"
	EnvReminderScanInterval = "REMINDER_SCAN_INTERVAL"
	EnvPurgeInterval        = "PURGE_INTERVAL"
	EnvRuleRetentionDays    = "RULE_RETENTION_DAYS"
	EnvSlotRetentionDays    = "SLOT_RETENTION_DAYS"
	EnvOrphanSlotPolicy     = "ORPHAN_SLOT_POLICY"
	EnvProviderLockTTL      = "PROVIDER_LOCK_TTL"
	EnvProviderLockWait     = "PROVIDER_LOCK_WAIT"
	EnvEventQueueSize       = "EVENT_QUEUE_SIZE"

	EnvKafkaEnabled = "KAFKA_ENABLED"
)
