package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserLookup is the directory being cached.
type UserLookup interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}

// UserDirectory caches positive user lookups. Misses and errors always go to
// the underlying directory so a newly created user is seen immediately.
type UserDirectory struct {
	next  UserLookup
	known *LRUCache[uuid.UUID, struct{}]
}

func NewUserDirectory(next UserLookup, maxSize int, ttl time.Duration) *UserDirectory {
	return &UserDirectory{next: next, known: NewLRUCache[uuid.UUID, struct{}](maxSize, ttl)}
}

func (d *UserDirectory) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	if _, ok := d.known.Get(userID); ok {
		return true, nil
	}
	ok, err := d.next.Exists(ctx, userID)
	if err != nil {
		return false, err
	}
	if ok {
		d.known.Set(userID, struct{}{})
	}
	return ok, nil
}

// Forget drops a cached user, e.g. after the account is removed.
func (d *UserDirectory) Forget(userID uuid.UUID) {
	d.known.Delete(userID)
}

// CleanExpired lets a Manager sweep the directory.
func (d *UserDirectory) CleanExpired() int {
	return d.known.CleanExpired()
}
