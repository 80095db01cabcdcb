package util

import (
	"context"
	"errors"
	"math/big"
	"time"
)

var (
	ErrPrimeSeachExhausted = errors.New("prime search exhausted")
)

func NearestPrime(v int) (int, error) {
	for i := v; i < v+1000; i++ {
		bi := big.NewInt(int64(i))
		if bi.ProbablyPrime(20) {
			return i, nil
		}
	}
	return -1, ErrPrimeSeachExhausted
}

// RetryBackoff returns a delay for a specified (1-based) attempt.
// The delay doubles with each attempt and never exceeds maxBackoff.
func RetryBackoff(initial, maxBackoff time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return initial
	}
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return backoff
}

// SleepWithContext waits for the specified duration or until
// the context is cancelled (in which case the context error is returned).
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
