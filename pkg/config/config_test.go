package config

import (
	"testing"
	"time"

	"carecal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		MongoURI:             DefaultMongoURI,
		MongoDatabaseName:    DefaultMongoDatabaseName,
		MongoConnTimeout:     DefaultMongoConnTimeout,
		RedisAddr:            DefaultRedisAddr,
		StorageDriver:        StorageMongo,
		Port:                 DefaultPort,
		RequestTimeout:       DefaultRequestTimeout,
		IdempotencyTTL:       DefaultIdempotencyTTL,
		MaxRequestSize:       DefaultMaxRequestSize,
		ReadTimeout:          DefaultReadTimeout,
		WriteTimeout:         DefaultWriteTimeout,
		IdleTimeout:          DefaultIdleTimeout,
		ShutdownTimeout:      DefaultShutdownTimeout,
		MaterializeDays:      DefaultMaterializeDays,
		HorizonSweepInterval: DefaultHorizonSweepInterval,
		ReminderLead:         DefaultReminderLead,
		ReminderScanInterval: DefaultReminderScanInterval,
		PurgeInterval:        DefaultPurgeInterval,
		RuleRetentionDays:    DefaultRuleRetentionDays,
		SlotRetentionDays:    DefaultSlotRetentionDays,
		OrphanSlotPolicy:     DefaultOrphanSlotPolicy,
		ProviderLockTTL:      DefaultProviderLockTTL,
		ProviderLockWait:     DefaultProviderLockWait,
		EventQueueSize:       DefaultEventQueueSize,
		Log:                  logger.Nop(),
	}
}

func TestLoad_MemoryDriverWithOverrides(t *testing.T) {
	t.Setenv(EnvStorageDriver, StorageMemory)
	t.Setenv(EnvMaterializeDays, "21")
	t.Setenv(EnvReminderLead, "2h")
	t.Setenv(EnvKafkaEnabled, "true")
	t.Setenv(EnvOrphanSlotPolicy, OrphanPolicyDelete)
	t.Setenv(EnvEventQueueSize, "not-a-number")
	t.Setenv(EnvLogLevel, "error")

	cfg := Load("config-test")

	assert.True(t, cfg.UsesMemoryStorage())
	assert.Equal(t, 21, cfg.MaterializeDays)
	assert.Equal(t, 2*time.Hour, cfg.ReminderLead)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, OrphanPolicyDelete, cfg.OrphanSlotPolicy)
	assert.Equal(t, DefaultEventQueueSize, cfg.EventQueueSize, "unparsable values fall back to the default")
	assert.Equal(t, DefaultProviderLockWait, cfg.ProviderLockWait)
	require.NotNil(t, cfg.Client)
	assert.Nil(t, cfg.Client.Mongo)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Port = "99999" }, "Port"},
		{"unknown driver", func(c *Config) { c.StorageDriver = "sqlite" }, "StorageDriver"},
		{"mongo uri scheme", func(c *Config) { c.MongoURI = "http://db" }, "MongoURI"},
		{"empty redis", func(c *Config) { c.RedisAddr = "" }, "RedisAddr"},
		{"zero materialize days", func(c *Config) { c.MaterializeDays = 0 }, "MaterializeDays"},
		{"orphan policy", func(c *Config) { c.OrphanSlotPolicy = "keep" }, "OrphanSlotPolicy"},
		{"lock wait", func(c *Config) { c.ProviderLockWait = 0 }, "ProviderLockWait"},
		{"queue size", func(c *Config) { c.EventQueueSize = 0 }, "EventQueueSize"},
		{"negative retention", func(c *Config) { c.RuleRetentionDays = -1 }, "RuleRetentionDays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_MemoryDriverIgnoresConnections(t *testing.T) {
	cfg := validConfig()
	cfg.StorageDriver = StorageMemory
	cfg.MongoURI = ""
	cfg.RedisAddr = ""
	assert.NoError(t, cfg.Validate())
}

func TestRedactMongoURI(t *testing.T) {
	assert.Equal(t, "mongodb://***:***@db:27017", redactMongoURI("mongodb://admin:s3cret@db:27017"))
	assert.Equal(t, "mongodb://db:27017", redactMongoURI("mongodb://db:27017"))
}

func TestNormalizePagination(t *testing.T) {
	assert.Equal(t, 10, NormalizePaginationLimit(0))
	assert.Equal(t, 25, NormalizePaginationLimit(25))
	assert.Equal(t, DefaultPaginationLimit, NormalizePaginationLimit(5000))
	assert.Equal(t, int64(0), NormalizeOffset(-3))
}
