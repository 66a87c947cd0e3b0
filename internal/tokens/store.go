// Package tokens keeps short-lived password reset state in Redis: the
// emailed numeric code, its attempt counter and the reset ticket handed out
// once the code is verified.
package tokens

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var (
	// ErrCodeMismatch is returned for a wrong code while attempts remain.
	ErrCodeMismatch = errors.New("reset code does not match")
	// ErrCodeExpired covers a missing, expired or burned code.
	ErrCodeExpired = errors.New("reset code expired")
	// ErrTicketInvalid is returned when a reset ticket is unknown or used.
	ErrTicketInvalid = errors.New("reset ticket invalid")
)

const keyPrefix = "rentify:reset:"

// RedisStore stores reset codes and tickets with explicit TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func codeKey(email string) string     { return keyPrefix + "code:" + normalize(email) }
func attemptsKey(email string) string { return keyPrefix + "attempts:" + normalize(email) }
func ticketKey(ticket string) string  { return keyPrefix + "ticket:" + ticket }

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GenerateCode returns a uniformly random 6-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SaveCode stores code for email, replacing any earlier code and resetting
// the attempt counter.
func (s *RedisStore) SaveCode(ctx context.Context, email, code string, ttl time.Duration) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, codeKey(email), code, ttl)
		pipe.Del(ctx, attemptsKey(email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save reset code: %w", err)
	}
	return nil
}

// countAttempt reads the code and counts one attempt against it in a single
// atomic step. The counter inherits the code's remaining lifetime, and
// nothing is counted once the code is gone.
var countAttempt = redis.NewScript(`
local code = redis.call('GET', KEYS[1])
if not code then
  return false
end
local n = redis.call('INCR', KEYS[2])
if n == 1 then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl > 0 then
    redis.call('PEXPIRE', KEYS[2], ttl)
  end
end
return {code, n}
`)

// VerifyCode checks code against the stored one. Each call counts as an
// attempt; once maxAttempts is reached the code is deleted. A match deletes
// the code as well.
func (s *RedisStore) VerifyCode(ctx context.Context, email, code string, maxAttempts int) error {
	res, err := countAttempt.Run(ctx, s.client, []string{codeKey(email), attemptsKey(email)}).Slice()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("failed to check reset code: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("failed to check reset code: unexpected reply %v", res)
	}
	stored, _ := res[0].(string)
	attempts, _ := res[1].(int64)

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1 {
		return s.burn(ctx, email)
	}

	if maxAttempts > 0 && attempts >= int64(maxAttempts) {
		if err := s.burn(ctx, email); err != nil {
			return err
		}
		return ErrCodeExpired
	}
	return ErrCodeMismatch
}

func (s *RedisStore) burn(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, codeKey(email), attemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to burn reset code: %w", err)
	}
	return nil
}

// IssueTicket stores a new single-use reset ticket for email.
func (s *RedisStore) IssueTicket(ctx context.Context, email string, ttl time.Duration) (string, error) {
	ticket := uuid.NewString()
	if err := s.client.Set(ctx, ticketKey(ticket), normalize(email), ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to save reset ticket: %w", err)
	}
	return ticket, nil
}

// ConsumeTicket returns the email a ticket was issued for and deletes it.
func (s *RedisStore) ConsumeTicket(ctx context.Context, ticket string) (string, error) {
	if ticket == "" {
		return "", ErrTicketInvalid
	}

	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, ticketKey(ticket))
		pipe.Del(ctx, ticketKey(ticket))
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrTicketInvalid
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume reset ticket: %w", err)
	}
	return get.Val(), nil
}
