package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/pagoscl/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "pagoscl:lock:"

// Deletes the key only while it still holds the caller's value.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// ErrLockLost is returned by a release func when the lock expired or was
// taken over before release.
var ErrLockLost = errors.New("lock expired before release")

// Locker hands out per-key locks backed by SET NX. It satisfies service.Locker.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Lock takes the lock for key without waiting. A held lock yields
// ErrLockAcquisitionFailed. The returned func releases the lock.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	redisKey := lockPrefix + key
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrLockAcquisitionFailed, key)
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, owner).Int64()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrLockLost, key)
		}
		return nil
	}
	return release, nil
}
