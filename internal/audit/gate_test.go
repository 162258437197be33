package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/clinic-audit/pkg/logger"
	"github.com/medrex/clinic-audit/pkg/types"
)

func setupRedisGate(t *testing.T, ttl time.Duration) (*RedisGate, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisGate(client, "clinic-audit:lock:auditoria", ttl, logger.New("error")), mr
}

func TestRedisGate_SingleHolder(t *testing.T) {
	gate, mr := setupRedisGate(t, 30*time.Second)
	ctx := context.Background()

	lease, err := gate.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("clinic-audit:lock:auditoria"))

	_, err = gate.Acquire(ctx)
	assert.True(t, types.IsConcurrency(err))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("clinic-audit:lock:auditoria"))

	again, err := gate.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisGate_ReleaseAfterExpiry(t *testing.T) {
	gate, mr := setupRedisGate(t, 30*time.Second)
	ctx := context.Background()

	lease, err := gate.Acquire(ctx)
	require.NoError(t, err)

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists("clinic-audit:lock:auditoria"))

	assert.NoError(t, lease.Release(ctx))
}

func TestRedisGate_ReleaseTwice(t *testing.T) {
	gate, _ := setupRedisGate(t, 30*time.Second)
	ctx := context.Background()

	lease, err := gate.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, lease.Release(ctx))
	assert.NoError(t, lease.Release(ctx))
}

func TestRedisGate_StoreUnavailable(t *testing.T) {
	gate, mr := setupRedisGate(t, 30*time.Second)
	mr.Close()

	_, err := gate.Acquire(context.Background())

	assert.True(t, types.IsStore(err))
}

func TestLocalGate(t *testing.T) {
	gate := NewLocalGate()
	ctx := context.Background()

	lease, err := gate.Acquire(ctx)
	require.NoError(t, err)

	_, err = gate.Acquire(ctx)
	assert.True(t, types.IsConcurrency(err))

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	again, err := gate.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
