package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// retryPolicy spaces dial attempts exponentially up to maxDelay.
type retryPolicy struct {
	attempts   int
	initial    time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     bool
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		attempts:   5,
		initial:    100 * time.Millisecond,
		maxDelay:   2 * time.Second,
		multiplier: 2,
		jitter:     true,
	}
}

// delay returns the wait before attempt n (1-based); the first attempt
// never waits.
func (p retryPolicy) delay(n int, rng *rand.Rand) time.Duration {
	if n <= 1 || p.initial <= 0 {
		return 0
	}
	mult := math.Max(p.multiplier, 1)
	d := float64(p.initial) * math.Pow(mult, float64(n-2))
	if p.maxDelay > 0 && d > float64(p.maxDelay) {
		d = float64(p.maxDelay)
	}
	if p.jitter && rng != nil {
		d *= 0.5 + rng.Float64()
	}
	return time.Duration(d)
}

func dialWithRetry(ctx context.Context, d net.Dialer, addr string, policy retryPolicy, rng *rand.Rand, logger zerolog.Logger) (net.Conn, error) {
	attempts := policy.attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for n := 1; n <= attempts; n++ {
		if wait := policy.delay(n, rng); wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Debug().Err(err).Int("attempt", n).Str("addr", addr).Msg("dial failed")
	}
	return nil, fmt.Errorf("dial %s after %d attempts: %w", addr, attempts, lastErr)
}
