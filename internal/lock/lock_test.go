package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerGrantsLocks(t *testing.T) {
	var l *Locker
	assert.False(t, l.Enabled())

	release, held, err := l.Acquire(context.Background(), ShiftStartKey(42), time.Second)
	require.NoError(t, err)
	assert.True(t, held)
	release()

	assert.NoError(t, l.Release(context.Background(), "k", "t"))
	_, _, err = l.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
}

func TestNewLockerNilClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "fuelledger:lock:shift:start:42", ShiftStartKey(42))
	assert.Equal(t, "fuelledger:lock:invoice:payment:7", InvoicePaymentKey(7))
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("FUELLEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FUELLEDGER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	l := NewLocker(client)
	key := ShiftStartKey(snowflake.ID(time.Now().UnixNano()))

	release, held, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, held)

	_, held, err = l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, held)

	release()
	release2, held, err := l.Acquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, held)
	release2()
}
