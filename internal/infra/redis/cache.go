package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quiz-bank-service/internal/infra/memory"
)

// State tracks the cache service's connection lifecycle. Once the service
// enters StateFallback it stays there for the process lifetime.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateConnected
	StateFallback
)

// CacheService fronts a remote Redis client with an in-process TTL fallback.
// The contract is deliberately error-free: Get always resolves to hit or
// miss, Set to stored or dropped. Remote failures are absorbed here, never
// surfaced to the caller.
type CacheService struct {
	client         *redis.Client
	fallback       *memory.TTLStore
	connectTimeout time.Duration
	maxAttempts    int

	mu    sync.Mutex
	state State
}

func NewCacheService(client *redis.Client) *CacheService {
	return &CacheService{
		client:         client,
		fallback:       memory.NewTTLStore(),
		connectTimeout: 3 * time.Second,
		maxAttempts:    3,
		state:          StateUninitialized,
	}
}

// Connect performs the single connection attempt for the process lifetime:
// a bounded number of pings with capped backoff inside one overall timeout.
// Any outcome other than success degrades permanently to the fallback store.
// Subsequent calls are no-ops.
func (c *CacheService) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if c.client == nil {
		c.setState(StateFallback)
		logrus.Info("redis not configured, using in-memory fallback cache")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := c.client.Ping(ctx).Err(); err == nil {
			c.setState(StateConnected)
			logrus.Info("redis connected")
			return
		}
		backoff := time.Duration(attempt+1) * 100 * time.Millisecond
		if backoff > time.Second {
			backoff = time.Second
		}
		select {
		case <-ctx.Done():
			c.setState(StateFallback)
			logrus.Warn("redis connection timed out, using in-memory fallback cache")
			return
		case <-time.After(backoff):
		}
	}

	c.setState(StateFallback)
	logrus.Warn("redis unavailable, using in-memory fallback cache")
}

// Get reads key into dest and reports whether it was a hit. Remote errors
// degrade the service and count as a miss.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if c.currentState() == StateConnected {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return false
		}
		if err != nil {
			c.degrade(err)
			return false
		}
		return json.Unmarshal(raw, dest) == nil
	}

	raw, ok := c.fallback.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// Set stores value under key with the given TTL. Values are serialized to
// JSON for both tiers. Failures are silent no-ops.
func (c *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}

	if c.currentState() == StateConnected {
		if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
			c.degrade(err)
		}
		return
	}

	c.fallback.Set(key, raw, ttl)
}

func (c *CacheService) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CacheService) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// degrade switches a connected service to the fallback store permanently.
// Caller-side cancellation is not a remote failure signal: an aborted request
// still reports miss/no-op but must not disable a healthy remote tier.
func (c *CacheService) degrade(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnected {
		c.state = StateFallback
		logrus.WithError(err).Warn("redis error, switching to in-memory fallback cache")
	}
}
