package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pointline/pointline/internal/domain"
)

// unlockLua deletes a claim key only if its value matches the caller's
// unique token, so one worker cannot release another worker's claim.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager using Redis SETNX with a TTL and
// a Lua-based conditional unlock. Claims are best-effort: the database row
// locks inside the settlement transaction remain the source of truth, these
// only spare workers the cost of racing into the same job.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func claimKey(key string) string {
	return "claim:" + key
}

// Acquire attempts to obtain a claim for the given key with the specified
// TTL. On success it returns an unlock function that must be called to
// release the claim; the unlock function is safe to call multiple times.
// It returns domain.ErrLockHeld if the claim is already held.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	ck := claimKey(key)

	ok, err := lm.rdb.SetNX(ctx, ck, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire claim %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Use a background context so unlock succeeds even if the caller's
		// context is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{ck}, token).Err()
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
