package worker

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// retryWithBackoff calls fn up to retries+1 times. Between attempts it
// waits base*2^i plus jitter in [0, base). isRetryable decides whether a
// given failure is worth another attempt; a non-retryable error (or the
// final attempt) is returned as-is.
func retryWithBackoff(ctx context.Context, retries int, base time.Duration, isRetryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isRetryable(err) || attempt == retries {
			return err
		}

		backoff := base << uint(attempt)
		jitter := time.Duration(0)
		if base > 0 {
			if n, rerr := rand.Int(rand.Reader, big.NewInt(int64(base))); rerr == nil {
				jitter = time.Duration(n.Int64())
			}
		}

		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
