package accesscode

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, ttl), mr
}

func TestIssueAndConsume(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	code, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	pubID, err := store.Consume(ctx, "reader@example.com", code)
	require.NoError(t, err)
	assert.Equal(t, uint(42), pubID)

	// codes are reusable within their lifetime
	pubID, err = store.Consume(ctx, "reader@example.com", code)
	require.NoError(t, err)
	assert.Equal(t, uint(42), pubID)
}

func TestConsumeUnknownCode(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	_, err := store.Consume(ctx, "reader@example.com", "bogus")
	assert.ErrorIs(t, err, ErrDenied)
}

func TestConsumeWrongRequester(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	code, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)

	_, err = store.Consume(ctx, "other@example.com", code)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	first, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)
	second, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = store.Consume(ctx, "reader@example.com", first)
	assert.ErrorIs(t, err, ErrDenied)

	pubID, err := store.Consume(ctx, "reader@example.com", second)
	require.NoError(t, err)
	assert.Equal(t, uint(42), pubID)
}

func TestReissueForDifferentPublicationKeepsBoth(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	codeA, err := store.Issue(ctx, "reader@example.com", 1)
	require.NoError(t, err)
	codeB, err := store.Issue(ctx, "reader@example.com", 2)
	require.NoError(t, err)

	pubA, err := store.Consume(ctx, "reader@example.com", codeA)
	require.NoError(t, err)
	assert.Equal(t, uint(1), pubA)

	pubB, err := store.Consume(ctx, "reader@example.com", codeB)
	require.NoError(t, err)
	assert.Equal(t, uint(2), pubB)
}

func TestRevoke(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	code, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, "reader@example.com", 42))
	_, err = store.Consume(ctx, "reader@example.com", code)
	assert.ErrorIs(t, err, ErrDenied)

	// revoking again is a no-op
	require.NoError(t, store.Revoke(ctx, "reader@example.com", 42))
}

func TestRevokeIfCurrent(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	code, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)

	require.NoError(t, store.RevokeIfCurrent(ctx, "reader@example.com", 42, code))
	_, err = store.Consume(ctx, "reader@example.com", code)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestRevokeIfCurrentLeavesNewerCode(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	stale, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)
	current, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)

	// revoking the replaced code must not touch the live one
	require.NoError(t, store.RevokeIfCurrent(ctx, "reader@example.com", 42, stale))
	pubID, err := store.Consume(ctx, "reader@example.com", current)
	require.NoError(t, err)
	assert.Equal(t, uint(42), pubID)
}

func TestCodesExpire(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	code, err := store.Issue(ctx, "reader@example.com", 42)
	require.NoError(t, err)

	mr.FastForward(time.Minute + time.Second)

	_, err = store.Consume(ctx, "reader@example.com", code)
	assert.ErrorIs(t, err, ErrDenied)
}
