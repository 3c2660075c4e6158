// Package lock serializes draft assembly per scope across API replicas.
// The database constraint on active drafts remains the source of truth; the
// lock only keeps two replicas from planning the same scope at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"handover/internal/model"
)

// ErrNotObtained is returned when the key is already held.
var ErrNotObtained = errors.New("lock not obtained")

// Release frees a held lock.
type Release func(ctx context.Context) error

// Locker obtains a short-lived exclusive lock on a key.
type Locker interface {
	Obtain(ctx context.Context, key string) (Release, error)
}

// ScopeKey is the lock key of a draft scope.
func ScopeKey(s model.Scope) string {
	return fmt.Sprintf("handover:assemble:%s:%s:%s:%s",
		s.TenantID, s.Department,
		s.PeriodStart.UTC().Format(time.RFC3339), s.PeriodEnd.UTC().Format(time.RFC3339))
}

// Redis is a Locker backed by bsm/redislock.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
}

var _ Locker = (*Redis)(nil)

// NewRedis wraps a go-redis client. ttl bounds how long a crashed holder can block a scope.
func NewRedis(client redislock.RedisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{client: redislock.New(client), ttl: ttl}
}

func (r *Redis) Obtain(ctx context.Context, key string) (Release, error) {
	l, err := r.client.Obtain(ctx, key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}

// Local is an in-process Locker for single-replica and memory-store deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{held: map[string]struct{}{}}
}

func (l *Local) Obtain(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrNotObtained
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
