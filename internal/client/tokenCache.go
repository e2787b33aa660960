package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/model"
)

// MinSafetyMargin is the smallest gap kept between a token's expiry and the
// last moment it is handed out.
const MinSafetyMargin = 60 * time.Second

type tokenExchangeFunc func(ctx context.Context) (*model.PortoneToken, error)

// TokenCache holds one gateway access token per process and refreshes it at
// most once per expiry window, however many callers miss at the same time.
type TokenCache struct {
	exchange tokenExchangeFunc
	margin   time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	token  string
	expiry time.Time

	group singleflight.Group
}

func NewTokenCache(exchange tokenExchangeFunc, margin time.Duration, now func() time.Time) *TokenCache {
	if margin < MinSafetyMargin {
		margin = MinSafetyMargin
	}
	if now == nil {
		now = time.Now
	}
	return &TokenCache{
		exchange: exchange,
		margin:   margin,
		now:      now,
	}
}

// Token returns a cached token while now < expiry - margin, otherwise performs
// a single shared exchange. Exchange failures are *apperr.AuthenticationError.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	// The exchange outlives a cancelled caller so the other waiters still get a
	// token; the http client timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		res, err := c.exchange(flightCtx)
		if err != nil {
			return "", &apperr.AuthenticationError{Err: err}
		}
		if res == nil || res.AccessToken == "" {
			return "", &apperr.AuthenticationError{Err: errors.New("empty access token")}
		}

		c.mu.Lock()
		c.token = res.AccessToken
		c.expiry = time.Unix(res.ExpiredAt, 0)
		c.mu.Unlock()
		return res.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", &apperr.TransportError{Op: "get token", Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next call exchanges credentials.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// Expiry reports when the cached token expires, zero when none is held.
func (c *TokenCache) Expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiry
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", false
	}
	if !c.now().Before(c.expiry.Add(-c.margin)) {
		return "", false
	}
	return c.token, true
}
