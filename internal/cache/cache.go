package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"rentgate/internal/directory"
)

// Cache is a Redis-backed keyed store with TTLs. It replaces the
// process-global session and blacklist maps the platform used to keep in
// memory, so horizontal scaling and tests are not coupled to one process.
type Cache struct {
	client  *redis.Client
	logger  *log.Logger
	userTTL time.Duration
}

func New(url string, userTTL time.Duration, logger *log.Logger) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	if userTTL <= 0 {
		userTTL = 30 * time.Second
	}
	return &Cache{
		client:  redis.NewClient(opt),
		logger:  logger,
		userTTL: userTTL,
	}, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

const (
	userKeyPrefix    = "rentgate:user:"
	revokedKeyPrefix = "rentgate:revoked:"
)

// GetUser implements directory.UserCache. Redis failures are misses.
func (c *Cache) GetUser(ctx context.Context, id string) (directory.User, bool) {
	if c == nil || id == "" {
		return directory.User{}, false
	}
	data, err := c.client.Get(ctx, userKeyPrefix+id).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("user cache read failed user_id=%s err=%v", id, err)
		}
		return directory.User{}, false
	}
	var user directory.User
	if err := json.Unmarshal(data, &user); err != nil {
		return directory.User{}, false
	}
	return user, true
}

// PutUser implements directory.UserCache. Write failures are logged only.
func (c *Cache) PutUser(ctx context.Context, user directory.User) {
	if c == nil || user.ID == "" {
		return
	}
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, userKeyPrefix+user.ID, data, c.userTTL).Err(); err != nil {
		c.logger.Printf("user cache write failed user_id=%s err=%v", user.ID, err)
	}
}

// InvalidateUser drops a cached record, used after admin user mutations.
func (c *Cache) InvalidateUser(ctx context.Context, id string) {
	if c == nil || id == "" {
		return
	}
	if err := c.client.Del(ctx, userKeyPrefix+id).Err(); err != nil {
		c.logger.Printf("user cache invalidate failed user_id=%s err=%v", id, err)
	}
}

// RevokeToken blacklists a token id for the remainder of its lifetime. The
// key expires on its own once the token would have expired anyway.
func (c *Cache) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if c == nil || tokenID == "" {
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
}

// IsTokenRevoked reports whether a token id is on the revocation list. A
// Redis failure fails open with a logged warning: enforcement-data outages
// degrade rather than lock out every caller.
func (c *Cache) IsTokenRevoked(ctx context.Context, tokenID string) bool {
	if c == nil || tokenID == "" {
		return false
	}
	n, err := c.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		c.logger.Printf("revocation check failed token_id=%s err=%v", tokenID, err)
		return false
	}
	return n > 0
}
