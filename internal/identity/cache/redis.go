package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"projectdesk/internal/identity/models"
	id "projectdesk/pkg/domain"
	"projectdesk/pkg/platform/sentinel"
)

const (
	keyPrefix        = "identity:"
	generationPrefix = "identity:gen:"

	// generationTTL only has to outlive an in-flight resolve.
	generationTTL = time.Hour
)

// RedisCache keeps resolved identities in Redis with a short TTL. Entries are
// invalidated explicitly when the underlying account changes.
//
// Each account has a generation counter that Invalidate bumps. A resolver reads the
// generation before loading the account and passes it to Set, which writes only if
// no invalidation happened in between.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis builds an identity cache. A non-positive ttl falls back to one minute.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

type cachedIdentity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Country  string `json:"country"`
	Active   bool   `json:"active"`
}

func (c *RedisCache) Get(ctx context.Context, userID id.UserID) (*models.Identity, error) {
	raw, err := c.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get cached identity: %w", err)
	}

	var entry cachedIdentity
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cached identity: %w", err)
	}
	parsedID, err := id.ParseUserID(entry.ID)
	if err != nil {
		return nil, fmt.Errorf("decode cached identity: %w", err)
	}
	return &models.Identity{
		ID:       parsedID,
		Username: entry.Username,
		Role:     models.Role(entry.Role),
		Country:  entry.Country,
		Active:   entry.Active,
	}, nil
}

// Generation returns the account's current invalidation counter. Zero means the
// account was never invalidated or the counter has expired.
func (c *RedisCache) Generation(ctx context.Context, userID id.UserID) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get identity generation: %w", err)
	}
	return gen, nil
}

// Set stores identity if the account is still at generation. A stale write is
// dropped silently.
func (c *RedisCache) Set(ctx context.Context, identity *models.Identity, generation int64) error {
	if identity == nil || identity.ID.IsNil() {
		return fmt.Errorf("identity with ID is required")
	}
	raw, err := json.Marshal(cachedIdentity{
		ID:       identity.ID.String(),
		Username: identity.Username,
		Role:     string(identity.Role),
		Country:  identity.Country,
		Active:   identity.Active,
	})
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	genKey := generationKey(identity.ID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(identity.ID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errStale) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("set cached identity: %w", err)
	}
	return nil
}

// Invalidate drops the cached identity and bumps the generation so resolves that
// started before the change cannot write it back.
func (c *RedisCache) Invalidate(ctx context.Context, userID id.UserID) error {
	genKey := generationKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, key(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cached identity: %w", err)
	}
	return nil
}

var errStale = errors.New("identity generation changed")

func key(userID id.UserID) string {
	return keyPrefix + userID.String()
}

func generationKey(userID id.UserID) string {
	return generationPrefix + userID.String()
}
