package capacity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
)

const (
	redisKeyPrefix = "capacity:"
	redisIndexKey  = "capacity:keys"
)

// reserveScript increments count only while it is below the limit.
// Returns the new count, or -1 when the key is full.
var reserveScript = redis.NewScript(`
local count = tonumber(redis.call("HGET", KEYS[1], "count") or "0")
local limit = tonumber(ARGV[1])
if count >= limit then
  return -1
end
count = redis.call("HINCRBY", KEYS[1], "count", 1)
redis.call("HSET", KEYS[1], "type", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
return count
`)

// releaseScript decrements count without going below zero.
var releaseScript = redis.NewScript(`
local count = tonumber(redis.call("HGET", KEYS[1], "count") or "0")
if count <= 0 then
  return 0
end
return redis.call("HINCRBY", KEYS[1], "count", -1)
`)

// RedisLedger stores counts in one hash per department and keeps them atomic with Lua.
type RedisLedger struct {
	redis  *redis.Client
	tracer trace.Tracer
}

var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger builds a ledger on the given client.
func NewRedisLedger(client *redis.Client, tracer trace.Tracer) *RedisLedger {
	if client == nil {
		panic("capacity: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("medicare.internal.capacity.redis")
	}
	return &RedisLedger{redis: client, tracer: tracer}
}

func (l *RedisLedger) CheckAvailability(ctx context.Context, key string, limit int) (bool, error) {
	entry, ok, err := l.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return !ok || entry.ActiveCount < limit, nil
}

func (l *RedisLedger) Reserve(ctx context.Context, key string, apptType appointment.Type, limit int) (Entry, error) {
	key = Key(key)
	if key == "" {
		return Entry{}, errEmptyKey
	}
	ctx, span := l.tracer.Start(ctx, "capacity.reserve", trace.WithAttributes(attribute.String("capacity.key", key)))
	defer span.End()

	count, err := reserveScript.Run(ctx, l.redis, []string{redisKey(key), redisIndexKey}, limit, string(apptType), key).Int()
	if err != nil {
		span.RecordError(err)
		return Entry{}, fmt.Errorf("capacity: failed to reserve %s: %w", key, err)
	}
	if count < 0 {
		return Entry{Key: key, ActiveCount: limit, AppointmentType: apptType}, ErrFull(key, limit)
	}
	return Entry{Key: key, ActiveCount: count, AppointmentType: apptType}, nil
}

func (l *RedisLedger) Release(ctx context.Context, key string) (Entry, error) {
	key = Key(key)
	if key == "" {
		return Entry{}, errEmptyKey
	}
	ctx, span := l.tracer.Start(ctx, "capacity.release", trace.WithAttributes(attribute.String("capacity.key", key)))
	defer span.End()

	if _, err := releaseScript.Run(ctx, l.redis, []string{redisKey(key)}).Int(); err != nil {
		span.RecordError(err)
		return Entry{}, fmt.Errorf("capacity: failed to release %s: %w", key, err)
	}
	entry, _, err := l.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	entry.Key = key
	return entry, nil
}

func (l *RedisLedger) Get(ctx context.Context, key string) (Entry, bool, error) {
	key = Key(key)
	ctx, span := l.tracer.Start(ctx, "capacity.get")
	defer span.End()

	fields, err := l.redis.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		span.RecordError(err)
		return Entry{}, false, fmt.Errorf("capacity: failed to load %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}
	entry, err := decodeRedisEntry(key, fields)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (l *RedisLedger) List(ctx context.Context) ([]Entry, error) {
	ctx, span := l.tracer.Start(ctx, "capacity.list")
	defer span.End()

	keys, err := l.redis.SMembers(ctx, redisIndexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("capacity: failed to list keys: %w", err)
	}
	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		entry, ok, err := l.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	sortEntries(out)
	return out, nil
}

func decodeRedisEntry(key string, fields map[string]string) (Entry, error) {
	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return Entry{}, fmt.Errorf("capacity: corrupt count for %s: %w", key, err)
	}
	return Entry{Key: key, ActiveCount: count, AppointmentType: appointment.Type(fields["type"])}, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}
