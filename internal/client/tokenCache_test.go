package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"portone-payment-api/internal/apperr"
	"portone-payment-api/internal/model"
)

func TestTokenCacheMarginFloor(t *testing.T) {
	c := NewTokenCache(nil, 5*time.Second, nil)
	if c.margin != MinSafetyMargin {
		t.Errorf("margin = %v, want %v", c.margin, MinSafetyMargin)
	}
}

func TestTokenCacheReusesUntilMargin(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := now
	var calls atomic.Int32
	exchange := func(ctx context.Context) (*model.PortoneToken, error) {
		n := calls.Add(1)
		return &model.PortoneToken{
			AccessToken: "tok-" + string(rune('0'+n)),
			ExpiredAt:   clock.Add(30 * time.Minute).Unix(),
		}, nil
	}
	c := NewTokenCache(exchange, time.Minute, func() time.Time { return clock })

	first, err := c.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	clock = now.Add(28 * time.Minute)
	again, _ := c.Token(context.Background())
	if again != first || calls.Load() != 1 {
		t.Fatalf("expected cached token before margin, calls=%d", calls.Load())
	}

	clock = now.Add(29 * time.Minute)
	refreshed, _ := c.Token(context.Background())
	if refreshed == first || calls.Load() != 2 {
		t.Errorf("expected refresh at expiry - margin, calls=%d", calls.Load())
	}
}

func TestTokenCacheFailureIsAuthentication(t *testing.T) {
	cause := &apperr.TransportError{Op: "get token", Err: errors.New("connection refused")}
	c := NewTokenCache(func(ctx context.Context) (*model.PortoneToken, error) {
		return nil, cause
	}, time.Minute, nil)

	_, err := c.Token(context.Background())
	var auth *apperr.AuthenticationError
	if !errors.As(err, &auth) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestTokenCacheInvalidate(t *testing.T) {
	var calls atomic.Int32
	c := NewTokenCache(func(ctx context.Context) (*model.PortoneToken, error) {
		calls.Add(1)
		return &model.PortoneToken{AccessToken: "tok", ExpiredAt: time.Now().Add(time.Hour).Unix()}, nil
	}, time.Minute, nil)

	_, _ = c.Token(context.Background())
	c.Invalidate()
	if !c.Expiry().IsZero() {
		t.Errorf("expiry not cleared")
	}
	_, _ = c.Token(context.Background())
	if calls.Load() != 2 {
		t.Errorf("exchanges = %d, want 2", calls.Load())
	}
}
