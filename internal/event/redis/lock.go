// Package redis provides the per-event mutation lock. Every capacity-mutating
// operation (register, cancel, waitlist join/leave, promotion) serializes on
// the event's lock so read-then-write sequences like waitlist position
// assignment cannot interleave.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const lockKeyPrefix = "event_lock:"

type Lock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lock{Client: client, TTL: ttl}
}

// LockEvent takes the event's mutation lock. The token identifies the holder
// so only the operation that acquired the lock can release it. Returns false
// without error when another operation holds the lock.
func (l *Lock) LockEvent(eventID, token string) (bool, error) {
	key := lockKeyPrefix + eventID
	ok, err := l.Client.SetNX(context.Background(), key, token, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock event %s: %w", eventID, err)
	}
	return ok, nil
}

// UnlockEvent releases the lock if the token matches the current holder.
// Unlocking an already-released lock is a no-op.
func (l *Lock) UnlockEvent(eventID, token string) error {
	ctx := context.Background()
	key := lockKeyPrefix + eventID

	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err := l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// AcquireWithRetry polls for the lock until it is taken or the wait budget
// runs out. Contention on one event is short-lived, so a tight retry loop is
// enough.
func (l *Lock) AcquireWithRetry(eventID, token string, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.LockEvent(eventID, token)
		if err != nil || ok {
			return ok, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(25 * time.Millisecond)
	}
}
