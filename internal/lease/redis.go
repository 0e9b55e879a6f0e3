package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/julianstephens/habitnudge/internal/errors"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease shared by every host pointed at the same server.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// NewRedisClient builds a client for addr without connecting.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (*Claim, error) {
	claim := newClaim(key, ttl)
	ok, err := r.client.SetNX(ctx, key, claim.Token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, errors.ErrLeaseHeld)
	}
	return claim, nil
}

func (r *Redis) Release(ctx context.Context, claim *Claim) error {
	if claim == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{claim.Key}, claim.Token).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", claim.Key, err)
	}
	return nil
}

func (r *Redis) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
