// Package lock holds short-lived slot holds in Redis. A hold reserves a
// candidate slot between "customer picked a time" and "customer confirmed",
// so two browsers cannot carry the same slot into the confirm step.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL matches the front-end's 5-minute hold window.
const DefaultTTL = 5 * time.Minute

var (
	ErrHeld     = errors.New("slot already locked")
	ErrNotFound = errors.New("lock not found or expired")
)

// Hold is one slot reservation-in-progress. ID doubles as the appointmentId
// the confirm step presents later.
type Hold struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	ServiceID  string    `json:"serviceId"`
	Date       string    `json:"date"`      // YYYY-MM-DD
	StartTime  string    `json:"startTime"` // HH:mm
	EndTime    string    `json:"endTime"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

func slotKey(businessID, date, startTime string) string {
	return fmt.Sprintf("slotlock:%s:%s:%s", businessID, date, startTime)
}

func holdKey(id string) string {
	return "slothold:" + id
}

// Acquire takes the slot for h and stores the hold under a fresh id. Returns
// ErrHeld when another session already holds the slot; the TTL makes
// abandoned holds self-expire.
func (l *Locker) Acquire(ctx context.Context, h Hold) (Hold, error) {
	h.ID = uuid.NewString()
	h.ExpiresAt = time.Now().Add(l.ttl).UTC()

	ok, err := l.rdb.SetNX(ctx, slotKey(h.BusinessID, h.Date, h.StartTime), h.ID, l.ttl).Result()
	if err != nil {
		return Hold{}, err
	}
	if !ok {
		return Hold{}, ErrHeld
	}

	payload, err := json.Marshal(h)
	if err != nil {
		return Hold{}, err
	}
	if err := l.rdb.Set(ctx, holdKey(h.ID), payload, l.ttl).Err(); err != nil {
		return Hold{}, err
	}
	return h, nil
}

// Get looks a hold up by id. Expired holds read as ErrNotFound.
func (l *Locker) Get(ctx context.Context, id string) (Hold, error) {
	raw, err := l.rdb.Get(ctx, holdKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Hold{}, ErrNotFound
	}
	if err != nil {
		return Hold{}, err
	}
	var h Hold
	if err := json.Unmarshal(raw, &h); err != nil {
		return Hold{}, err
	}
	return h, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1])
end
return redis.call("DEL", KEYS[2])
`)

// Release drops the hold; the slot key goes only if this hold still owns it.
func (l *Locker) Release(ctx context.Context, h Hold) error {
	keys := []string{slotKey(h.BusinessID, h.Date, h.StartTime), holdKey(h.ID)}
	return releaseScript.Run(ctx, l.rdb, keys, h.ID).Err()
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
