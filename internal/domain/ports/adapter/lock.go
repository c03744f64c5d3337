package adapter

import (
	"context"
	"time"
)

// Locker guards a key across processes. TryLock returns a token that must be
// handed back to Unlock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
	// Refresh extends the lock held under token, or re-takes it when it has
	// expired. It returns domain.ErrPayoutInFlight when someone else holds key.
	Refresh(ctx context.Context, key, token string, ttl time.Duration) error
}
