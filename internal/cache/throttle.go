package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginFailPrefix = "login:fail:"

// LoginThrottle counts failed logins per normalised email in a fixed window.
type LoginThrottle struct {
	client      *redis.Client
	maxAttempts int64
	window      time.Duration
}

func NewLoginThrottle(client *redis.Client, maxAttempts int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{client: client, maxAttempts: int64(maxAttempts), window: window}
}

func loginKey(email string) string {
	return loginFailPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Blocked reports whether the email has reached the failure limit in the current window.
func (t *LoginThrottle) Blocked(ctx context.Context, email string) (bool, error) {
	if t == nil || t.client == nil || t.maxAttempts <= 0 {
		return false, nil
	}
	n, err := t.client.Get(ctx, loginKey(email)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= t.maxAttempts, nil
}

// Fail records one failed attempt. The window starts at the first failure.
func (t *LoginThrottle) Fail(ctx context.Context, email string) error {
	if t == nil || t.client == nil {
		return nil
	}
	key := loginKey(email)
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return incr.Err()
}

func (t *LoginThrottle) Reset(ctx context.Context, email string) error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Del(ctx, loginKey(email)).Err()
}
