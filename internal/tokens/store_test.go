package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}

func TestVerifyCodeSuccessBurnsCode(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCode(ctx, "Buyer@Example.com", "123456", time.Minute))
	require.NoError(t, store.VerifyCode(ctx, "buyer@example.com", "123456", 5))

	err := store.VerifyCode(ctx, "buyer@example.com", "123456", 5)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyCodeAttemptLimit(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCode(ctx, "a@example.com", "111111", time.Minute))

	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "000000", 3), ErrCodeMismatch)
	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "000000", 3), ErrCodeMismatch)
	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "000000", 3), ErrCodeExpired)

	// the right code no longer works once burned
	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "111111", 3), ErrCodeExpired)
}

func TestVerifyCodeExpires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCode(ctx, "a@example.com", "111111", time.Minute))
	mr.FastForward(2 * time.Minute)

	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "111111", 5), ErrCodeExpired)
}

func TestAttemptCounterExpiresWithCode(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCode(ctx, "a@example.com", "111111", time.Minute))
	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "000000", 5), ErrCodeMismatch)

	ttl := mr.TTL(attemptsKey("a@example.com"))
	assert.True(t, ttl > 0 && ttl <= time.Minute, "attempts ttl %s", ttl)

	// no counter is left behind for a code that has already expired
	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "000000", 5), ErrCodeExpired)
	assert.False(t, mr.Exists(attemptsKey("a@example.com")))
}

func TestVerifyCodeReportsRedisFailure(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCode(ctx, "a@example.com", "111111", time.Minute))
	mr.Close()

	err := store.VerifyCode(ctx, "a@example.com", "111111", 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCodeExpired)
}

func TestSaveCodeResetsAttempts(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCode(ctx, "a@example.com", "111111", time.Minute))
	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "999999", 2), ErrCodeMismatch)

	require.NoError(t, store.SaveCode(ctx, "a@example.com", "222222", time.Minute))
	assert.ErrorIs(t, store.VerifyCode(ctx, "a@example.com", "999999", 2), ErrCodeMismatch)
	assert.NoError(t, store.VerifyCode(ctx, "a@example.com", "222222", 2))
}

func TestTicketSingleUse(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	ticket, err := store.IssueTicket(ctx, "Seller@Example.com", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, ticket)

	email, err := store.ConsumeTicket(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, "seller@example.com", email)

	_, err = store.ConsumeTicket(ctx, ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)

	_, err = store.ConsumeTicket(ctx, "")
	assert.ErrorIs(t, err, ErrTicketInvalid)
}

func TestTicketExpires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	ticket, err := store.IssueTicket(ctx, "a@example.com", time.Minute)
	require.NoError(t, err)
	mr.FastForward(time.Hour)

	_, err = store.ConsumeTicket(ctx, ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)
}
