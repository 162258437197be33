package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

// RunGate admits one audit run at a time
type RunGate interface {
	// Acquire returns ConcurrencyError when a run is already in flight
	Acquire(ctx context.Context) (Lease, error)
}

// Lease is held for the duration of a run
type Lease interface {
	Release(ctx context.Context) error
}

// RedisGate is a RunGate shared by every replica through Redis
type RedisGate struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisGate creates a gate on key. The lock expires after ttl unless the
// holder is still alive to refresh it.
func NewRedisGate(client redis.UniversalClient, key string, ttl time.Duration, log *logger.Logger) *RedisGate {
	return &RedisGate{
		locker: redislock.New(client),
		key:    key,
		ttl:    ttl,
		logger: log,
	}
}

// Acquire obtains the lock without waiting
func (g *RedisGate) Acquire(ctx context.Context) (Lease, error) {
	lock, err := g.locker.Obtain(ctx, g.key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, types.NewConcurrencyError(types.ErrCodeAuditInProgress, "an audit run is already in progress")
	}
	if err != nil {
		return nil, types.NewStoreError(types.ErrCodeStoreFailure, "failed to obtain audit lock", err)
	}

	lease := &redisLease{
		lock:   lock,
		ttl:    g.ttl,
		logger: g.logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive()

	return lease, nil
}

type redisLease struct {
	lock   *redislock.Lock
	ttl    time.Duration
	logger *logger.Logger
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// keepAlive extends the lock at half its TTL until released
func (l *redisLease) keepAlive() {
	defer close(l.done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			err := l.lock.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				l.logger.WithComponent("run_gate").WithError(err).Warn("Failed to refresh audit lock")
				if errors.Is(err, redislock.ErrNotObtained) {
					return
				}
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		err = l.lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithComponent("run_gate").Warn("Audit lock expired before release")
			err = nil
		}
	})
	return err
}

// LocalGate is a RunGate for a single process
type LocalGate struct {
	mu sync.Mutex
}

// NewLocalGate creates an in-process gate
func NewLocalGate() *LocalGate {
	return &LocalGate{}
}

// Acquire takes the mutex without waiting
func (g *LocalGate) Acquire(ctx context.Context) (Lease, error) {
	if !g.mu.TryLock() {
		return nil, types.NewConcurrencyError(types.ErrCodeAuditInProgress, "an audit run is already in progress")
	}
	return &localLease{mu: &g.mu}, nil
}

type localLease struct {
	mu   *sync.Mutex
	once sync.Once
}

func (l *localLease) Release(ctx context.Context) error {
	l.once.Do(l.mu.Unlock)
	return nil
}
