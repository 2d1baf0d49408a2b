// File: gourdianauth.store.redis.imp.go

package gourdianauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKeyPrefix = "gourdianauth:"

	refreshKeySegment = "refresh:"
	subjectKeySegment = "subject:"

	// revokedMarker is the tombstone value of a revoked token. Subjects are
	// never empty, so it cannot collide with a live entry.
	revokedMarker = ""
)

// RedisStoreConfig holds configuration for RedisRefreshTokenStore.
//
// Fields:
//   - KeyPrefix: Prefix of every key written (default: DefaultRedisKeyPrefix)
//   - TTL: Lifetime of issued tokens (default: DefaultRefreshTokenTTL)
//   - Timeout: Bound applied to each store call (default: DefaultStoreTimeout)
type RedisStoreConfig struct {
	KeyPrefix string
	TTL       time.Duration
	Timeout   time.Duration
}

// RedisRefreshTokenStore is a Redis-backed RefreshTokenStore shared by every
// instance pointing at the same Redis. Tokens are stored under the SHA-256
// of their identifier and expire through Redis TTLs.
type RedisRefreshTokenStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	timeout   time.Duration
}

// NewRedisRefreshTokenStore creates a new Redis-based refresh token store and
// checks the connection.
func NewRedisRefreshTokenStore(ctx context.Context, client redis.UniversalClient, cfg RedisStoreConfig) (*RedisRefreshTokenStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client cannot be nil", ErrConfiguration)
	}

	store := NewRedisRefreshTokenStoreWithClient(client, cfg)

	// Test the connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", storeError(err))
	}

	return store, nil
}

// NewRedisRefreshTokenStoreWithClient creates a store without checking the
// connection. This is useful for testing with miniredis.
func NewRedisRefreshTokenStoreWithClient(client redis.UniversalClient, cfg RedisStoreConfig) *RedisRefreshTokenStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRefreshTokenTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStoreTimeout
	}

	return &RedisRefreshTokenStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		timeout:   cfg.Timeout,
	}
}

func (r *RedisRefreshTokenStore) tokenKey(tokenHash string) string {
	return r.keyPrefix + refreshKeySegment + tokenHash
}

func (r *RedisRefreshTokenStore) subjectKey(subject string) string {
	return r.keyPrefix + subjectKeySegment + subject
}

// Issue records a new identifier for subject with SET NX.
func (r *RedisRefreshTokenStore) Issue(ctx context.Context, subject string) (string, error) {
	if err := validateSubject(subject); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		tokenID, err := newTokenID()
		if err != nil {
			return "", err
		}

		tokenHash := hashToken(tokenID)
		created, err := r.client.SetNX(ctx, r.tokenKey(tokenHash), subject, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("failed to store refresh token: %w", storeError(err))
		}
		if !created {
			continue
		}

		subjectKey := r.subjectKey(subject)
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, subjectKey, tokenHash)
			pipe.Expire(ctx, subjectKey, r.ttl)
			return nil
		})
		if err != nil {
			r.discard(ctx, tokenHash)
			return "", fmt.Errorf("failed to index refresh token: %w", storeError(err))
		}

		return tokenID, nil
	}

	return "", fmt.Errorf("failed to issue refresh token: identifier collision after %d attempts", maxIssueAttempts)
}

// discard deletes an unindexed token key. It gets its own deadline since ctx
// may be the one that just expired.
func (r *RedisRefreshTokenStore) discard(ctx context.Context, tokenHash string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	_ = r.client.Del(ctx, r.tokenKey(tokenHash)).Err()
}

// TTL returns the lifetime of issued tokens.
func (r *RedisRefreshTokenStore) TTL() time.Duration {
	return r.ttl
}

// Resolve returns the subject tokenID was issued for.
func (r *RedisRefreshTokenStore) Resolve(ctx context.Context, tokenID string) (string, error) {
	if tokenID == "" {
		return "", ErrInvalidRefreshToken
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	subject, err := r.client.Get(ctx, r.tokenKey(hashToken(tokenID))).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve refresh token: %w", storeError(err))
	}
	if subject == revokedMarker {
		return "", ErrInvalidRefreshToken
	}

	return subject, nil
}

// Revoke replaces the entry with a tombstone that keeps the remaining TTL.
func (r *RedisRefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tokenHash := hashToken(tokenID)
	key := r.tokenKey(tokenHash)

	subject, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && subject == revokedMarker) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", storeError(err))
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetArgs(ctx, key, revokedMarker, redis.SetArgs{Mode: "XX", KeepTTL: true})
		pipe.SRem(ctx, r.subjectKey(subject), tokenHash)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to revoke refresh token: %w", storeError(err))
	}

	return nil
}

// RevokeSubject tombstones every indexed token of subject.
func (r *RedisRefreshTokenStore) RevokeSubject(ctx context.Context, subject string) (int, error) {
	if subject == "" {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	subjectKey := r.subjectKey(subject)
	hashes, err := r.client.SMembers(ctx, subjectKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list refresh tokens: %w", storeError(err))
	}

	revoked := 0
	for _, tokenHash := range hashes {
		key := r.tokenKey(tokenHash)
		current, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) || (err == nil && current == revokedMarker) {
			continue
		}
		if err != nil {
			return revoked, fmt.Errorf("failed to revoke refresh token: %w", storeError(err))
		}

		err = r.client.SetArgs(ctx, key, revokedMarker, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return revoked, fmt.Errorf("failed to revoke refresh token: %w", storeError(err))
		}
		revoked++
	}

	if err := r.client.Del(ctx, subjectKey).Err(); err != nil {
		return revoked, fmt.Errorf("failed to drop subject index: %w", storeError(err))
	}

	return revoked, nil
}

// CleanupExpired prunes subject index members whose token key has expired.
// Token keys themselves expire through Redis TTLs. Each SCAN batch and each
// index pruned is bounded by the store timeout.
func (r *RedisRefreshTokenStore) CleanupExpired(ctx context.Context) (int, error) {
	var cursor uint64
	const batchSize = 100

	removed := 0
	pattern := r.keyPrefix + subjectKeySegment + "*"

	for {
		// Check if context is cancelled
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("cleanup interrupted: %w", storeError(err))
		}

		keys, next, err := r.scan(ctx, cursor, pattern, batchSize)
		if err != nil {
			return removed, fmt.Errorf("redis scan error: %w", storeError(err))
		}

		for _, subjectKey := range keys {
			n, err := r.pruneSubjectIndex(ctx, subjectKey)
			if err != nil {
				return removed, err
			}
			removed += n
		}

		if next == 0 {
			break
		}
		cursor = next
	}

	return removed, nil
}

func (r *RedisRefreshTokenStore) scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.client.Scan(ctx, cursor, pattern, count).Result()
}

func (r *RedisRefreshTokenStore) pruneSubjectIndex(ctx context.Context, subjectKey string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hashes, err := r.client.SMembers(ctx, subjectKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list refresh tokens: %w", storeError(err))
	}

	var stale []interface{}
	for _, tokenHash := range hashes {
		exists, err := r.client.Exists(ctx, r.tokenKey(tokenHash)).Result()
		if err != nil {
			return 0, fmt.Errorf("redis error: %w", storeError(err))
		}
		if exists == 0 {
			stale = append(stale, tokenHash)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := r.client.SRem(ctx, subjectKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("redis delete error: %w", storeError(err))
	}
	return len(stale), nil
}

// storeError classifies a redis failure as ErrStoreTimeout or ErrStoreUnavailable.
func storeError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
