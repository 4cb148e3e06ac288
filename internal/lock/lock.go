// Package lock provides optional Redis advisory locks. A nil *Locker grants
// every lock, so callers never depend on Redis for correctness.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyShiftStart     = "fuelledger:lock:shift:start:%s"
	keyInvoicePayment = "fuelledger:lock:invoice:payment:%s"
	keySchedulerJob   = "fuelledger:lock:scheduler:%s"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func ShiftStartKey(employeeID snowflake.ID) string {
	return fmt.Sprintf(keyShiftStart, employeeID.String())
}

func InvoicePaymentKey(invoiceID snowflake.ID) string {
	return fmt.Sprintf(keyInvoicePayment, invoiceID.String())
}

func SchedulerJobKey(job string) string {
	return fmt.Sprintf(keySchedulerJob, job)
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if !l.Enabled() {
		return "", false, errors.New("lock client not configured")
	}
	if strings.TrimSpace(key) == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if !l.Enabled() {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// Acquire takes key for ttl. held is false only when another holder owns the
// key. A disabled locker or a Redis failure grants the lock with a no-op
// release and returns the Redis error for logging.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), held bool, err error) {
	noop := func() {}
	if !l.Enabled() {
		return noop, true, nil
	}
	token, ok, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return noop, true, err
	}
	if !ok {
		return noop, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, key, token)
	}, true, nil
}
