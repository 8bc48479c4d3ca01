package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
)

// DefaultKeyPrefix namespaces claim keys in a shared Redis.
const DefaultKeyPrefix = "cadence:run:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker claims runs with SET NX PX leases.
type RedisLocker struct {
	pool   *redis.Pool
	prefix string
}

// NewRedisPool creates a connection pool for addr.
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		},
	}
}

// NewRedisLocker creates a locker over pool.
func NewRedisLocker(pool *redis.Pool) *RedisLocker {
	return &RedisLocker{pool: pool, prefix: DefaultKeyPrefix}
}

// Acquire sets the lease key if absent. Redis expires it after ttl.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	token := uuid.NewString()
	reply, err := conn.Do("SET", l.prefix+key, token, "NX", "PX", ttl.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if reply == nil {
		return nil, ErrClaimHeld
	}
	return &redisLease{pool: l.pool, key: l.prefix + key, token: token}, nil
}

type redisLease struct {
	pool  *redis.Pool
	key   string
	token string
}

func (l *redisLease) Token() string { return l.token }

func (l *redisLease) Release(ctx context.Context) error {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := releaseScript.Do(conn, l.key, l.token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
