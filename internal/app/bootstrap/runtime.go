package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/capacity"
	appconfig "github.com/wolfman30/medicare-assistant/internal/config"
	"github.com/wolfman30/medicare-assistant/internal/conversation"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// Backend names accepted by SESSION_BACKEND and CAPACITY_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendDynamo = "dynamodb"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// UsesRedis reports whether any configured backend needs a Redis client.
func UsesRedis(cfg *appconfig.Config) bool {
	return cfg != nil && (cfg.SessionBackend == BackendRedis || cfg.CapacityBackend == BackendRedis)
}

// BuildSessionStore selects the chat session backend.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (conversation.SessionStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.SessionBackend {
	case "", BackendMemory:
		logger.Info("chat sessions stored in memory")
		return conversation.NewMemorySessionStore(), nil
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis session backend requires a reachable REDIS_ADDR")
		}
		logger.Info("chat sessions stored in redis", "addr", cfg.RedisAddr)
		return conversation.NewRedisSessionStore(redisClient, nil), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}

// BuildSessionLease returns a cross-replica turn lease when sessions live in Redis,
// or nil when the in-process locks are enough.
func BuildSessionLease(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) conversation.SessionLease {
	if cfg == nil || cfg.SessionBackend != BackendRedis || redisClient == nil {
		return nil
	}
	return conversation.NewRedisSessionLease(redisClient, logger)
}

// BuildCapacityLedger selects the department capacity backend.
func BuildCapacityLedger(cfg *appconfig.Config, redisClient *redis.Client, dynamoClient *dynamodb.Client, logger *logging.Logger) (capacity.Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.CapacityBackend {
	case "", BackendMemory:
		logger.Info("capacity ledger kept in memory")
		return capacity.NewMemoryLedger(), nil
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis capacity backend requires a reachable REDIS_ADDR")
		}
		logger.Info("capacity ledger stored in redis", "addr", cfg.RedisAddr)
		return capacity.NewRedisLedger(redisClient, nil), nil
	case BackendDynamo:
		if dynamoClient == nil {
			return nil, fmt.Errorf("bootstrap: dynamodb capacity backend requires an AWS client")
		}
		logger.Info("capacity ledger stored in dynamodb", "table", cfg.CapacityTable)
		return capacity.NewDynamoLedger(dynamoClient, cfg.CapacityTable, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown capacity backend %q", cfg.CapacityBackend)
	}
}

// BuildTranscriptStore returns the Postgres transcript log or nil when no database is configured.
func BuildTranscriptStore(sqlDB *sql.DB, logger *logging.Logger) *conversation.TranscriptStore {
	if sqlDB == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("chat transcript persistence enabled")
	return conversation.NewTranscriptStore(sqlDB)
}

// MachineOptions translates conversation settings into machine options.
func MachineOptions(cfg *appconfig.Config, logger *logging.Logger) []conversation.MachineOption {
	opts := []conversation.MachineOption{conversation.WithMachineLogger(logger)}
	if cfg == nil {
		return opts
	}
	limits := appointment.DefaultLimits()
	if cfg.DoctorLimit > 0 {
		limits.Doctor = cfg.DoctorLimit
	}
	if cfg.DiagnosticLimit > 0 {
		limits.Diagnostic = cfg.DiagnosticLimit
	}
	return append(opts,
		conversation.WithLimits(limits),
		conversation.WithPermissiveDOB(cfg.DOBPermissive),
	)
}
