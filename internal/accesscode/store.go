// Package accesscode manages the volatile download access codes issued when a
// download-link request is approved. Codes live in Redis and expire through
// Redis key TTLs, so no sweeper is needed.
package accesscode

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"biblio/internal/observability"
)

// ErrDenied is returned by Consume for unknown, expired or revoked codes.
// Callers must not leak which of those it was.
var ErrDenied = errors.New("access code denied")

// Store issues, revokes and checks access codes. Every live code is held
// under two keys with the same TTL: the pair key maps (requester,
// publication) to the code so reissue can find the previous grant, and the
// code key maps (requester, code) to the publication for the download path.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a Store writing codes with the given lifetime.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func pairKey(requester string, publicationID uint) string {
	return fmt.Sprintf("ac:pair:%s:%d", requester, publicationID)
}

func codeKey(requester, code string) string {
	return fmt.Sprintf("ac:code:%s:%s", requester, code)
}

// Issue creates a fresh code for the requester/publication pair, replacing
// any live one. At most one code per pair is valid at any moment.
func (s *Store) Issue(ctx context.Context, requester string, publicationID uint) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	prev, err := s.rdb.Get(ctx, pairKey(requester, publicationID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("access code lookup: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	if prev != "" {
		pipe.Del(ctx, codeKey(requester, prev))
	}
	pipe.Set(ctx, pairKey(requester, publicationID), code, s.ttl)
	pipe.Set(ctx, codeKey(requester, code), fmt.Sprintf("%d", publicationID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("access code issue: %w", err)
	}

	observability.AccessCodesIssued.Inc()
	return code, nil
}

// Revoke removes any live code for the pair. Revoking a pair without a code
// is a no-op.
func (s *Store) Revoke(ctx context.Context, requester string, publicationID uint) error {
	prev, err := s.rdb.Get(ctx, pairKey(requester, publicationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("access code lookup: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, pairKey(requester, publicationID))
	pipe.Del(ctx, codeKey(requester, prev))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("access code revoke: %w", err)
	}
	return nil
}

// RevokeIfCurrent removes the given code only while it is still the live one
// for the pair. A code replaced by a later reissue is left untouched, so
// rolling back a stale grant can never invalidate the winning one.
func (s *Store) RevokeIfCurrent(ctx context.Context, requester string, publicationID uint, code string) error {
	prev, err := s.rdb.Get(ctx, pairKey(requester, publicationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("access code lookup: %w", err)
	}
	if prev != code {
		return nil
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, pairKey(requester, publicationID))
	pipe.Del(ctx, codeKey(requester, code))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("access code revoke: %w", err)
	}
	return nil
}

// Consume validates the requester/code pair and returns the publication it
// grants. The code stays valid, so repeat downloads within the TTL succeed.
func (s *Store) Consume(ctx context.Context, requester, code string) (uint, error) {
	val, err := s.rdb.Get(ctx, codeKey(requester, code)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrDenied
	}
	if err != nil {
		return 0, fmt.Errorf("access code check: %w", err)
	}

	var publicationID uint
	if _, err := fmt.Sscanf(val, "%d", &publicationID); err != nil {
		return 0, ErrDenied
	}
	return publicationID, nil
}

// generateCode returns 32 random bytes in raw URL-safe base64.
func generateCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("access code entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
