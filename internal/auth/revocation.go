package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList records refresh tokens withdrawn by logout.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevocationList stores revoked token ids until the token would have expired anyway.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationList constructs a revocation list keyed under prefix.
func NewRedisRevocationList(client *redis.Client, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = "flashy:revoked:"
	}
	return &RedisRevocationList{client: client, prefix: prefix, now: time.Now}
}

// Revoke marks tokenID revoked. Already expired tokens need no entry.
func (l *RedisRevocationList) Revoke(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("auth: revoke: empty token id")
	}
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.prefix+tokenID, strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke %s: %w", tokenID, err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("auth: revocation lookup %s: %w", tokenID, err)
	}
	return n > 0, nil
}

var _ RevocationList = (*RedisRevocationList)(nil)
