package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "carecal"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisDB          = 0
	DefaultRedisDialTimeout = 5 * time.Second

	DefaultStorageDriver = StorageMongo

	DefaultPort = "8080"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	DefaultMaterializeDays      = 14
	DefaultHorizonSweepInterval = 15 * time.Minute
	DefaultReminderLead         = 24 * time.Hour
	DefaultReminderScanInterval = 5 * time.Minute
	DefaultPurgeInterval        = 6 * time.Hour
	DefaultRuleRetentionDays    = 90
	DefaultSlotRetentionDays    = 30
	DefaultOrphanSlotPolicy     = OrphanPolicyDisable
	DefaultProviderLockTTL      = 30 * time.Second
	DefaultProviderLockWait     = 5 * time.Second
	DefaultEventQueueSize       = 1024

	DefaultKafkaEnabled = false

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"

	OrphanPolicyDisable = "disable"
	OrphanPolicyDelete  = "delete"
)
