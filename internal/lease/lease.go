// Package lease keeps two overlapping passes from running the same engine.
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitnudge/internal/constants"
)

// Claim is a held lease. Token identifies the holder so an expired claim that
// was taken over is never released by its old holder.
type Claim struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Locker acquires and releases leases. Acquire returns errors.ErrLeaseHeld
// when another holder has the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Claim, error)
	Release(ctx context.Context, claim *Claim) error
	// Check reports whether the backend is reachable
	Check(ctx context.Context) error
}

// Key returns the lease key of an engine
func Key(engine constants.EngineName) string {
	return constants.LeaseKeyPrefix + string(engine)
}

func newClaim(key string, ttl time.Duration) *Claim {
	return &Claim{
		Key:       key,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl),
	}
}

// Noop grants every lease. Used when a single scheduler guarantees no overlap.
type Noop struct{}

func (Noop) Acquire(ctx context.Context, key string, ttl time.Duration) (*Claim, error) {
	return newClaim(key, ttl), nil
}

func (Noop) Release(ctx context.Context, claim *Claim) error {
	return nil
}

func (Noop) Check(ctx context.Context) error {
	return nil
}
