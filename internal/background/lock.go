package background

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReservationLock claims a BackgroundTask for exactly one worker process
// across a fleet of Background Task Engine instances sharing one queue,
// using Redis `SETNX`-with-TTL the way registry/result_stream.go uses Redis
// for cross-node coordination. A nil *redis.Client degrades to an
// always-succeeds lock, matching single-process/test deployments that have
// no Redis and no concurrent claimant to race against.
type ReservationLock struct {
	client *redis.Client
}

// NewReservationLock wraps client. client may be nil.
func NewReservationLock(client *redis.Client) *ReservationLock {
	return &ReservationLock{client: client}
}

const reservationKeyPrefix = "fleetctl:bgtask:claim:"

// TryAcquire claims taskID for owner for ttl. Returns true iff this call
// won the claim.
func (l *ReservationLock) TryAcquire(ctx context.Context, taskID, owner string, ttl time.Duration) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, reservationKeyPrefix+taskID, owner, ttl).Result()
}

// Release drops the claim on taskID if still held by owner, via a
// compare-and-delete Lua script so a worker never releases a claim another
// worker has since taken over (e.g. after this worker's TTL lapsed).
func (l *ReservationLock) Release(ctx context.Context, taskID, owner string) error {
	if l.client == nil {
		return nil
	}
	const script = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`
	return l.client.Eval(ctx, script, []string{reservationKeyPrefix + taskID}, owner).Err()
}
