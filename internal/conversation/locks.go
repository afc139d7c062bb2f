package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// sessionLocks serializes turns per session id.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu      sync.Mutex
	holders int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// Lock blocks until id is free and returns its unlock func.
func (l *sessionLocks) Lock(id string) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sessionLock{}
		l.locks[id] = lock
	}
	lock.holders++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.holders--
		if lock.holders == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// SessionLease serializes turns for one session across processes that share a
// session store. The in-process locks only cover a single replica.
type SessionLease interface {
	Acquire(ctx context.Context, id string) (release func(), err error)
}

const (
	defaultLeaseTTL   = 30 * time.Second
	defaultLeaseRetry = 25 * time.Millisecond
)

var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSessionLease holds a SET NX key per busy session. The key expires after ttl
// so a crashed holder cannot block the session for good.
type RedisSessionLease struct {
	redis  *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *logging.Logger
}

var _ SessionLease = (*RedisSessionLease)(nil)

func NewRedisSessionLease(client *redis.Client, logger *logging.Logger) *RedisSessionLease {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisSessionLease{redis: client, ttl: defaultLeaseTTL, retry: defaultLeaseRetry, logger: logger}
}

// Acquire polls until the lease is free or ctx ends.
func (l *RedisSessionLease) Acquire(ctx context.Context, id string) (func(), error) {
	key := leaseKey(id)
	token := uuid.NewString()
	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("conversation: acquire session lease: %w", err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("conversation: session %s is busy: %w", id, ctx.Err())
		case <-timer.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		// Only the holder's token is deleted, so an expired lease taken over by
		// another replica survives.
		if err := releaseLeaseScript.Run(releaseCtx, l.redis, []string{key}, token).Err(); err != nil {
			l.logger.Warn("session lease release failed", "session_id", id, "error", err)
		}
	}, nil
}

func leaseKey(id string) string {
	return fmt.Sprintf("chat_session_lease:%s", id)
}
