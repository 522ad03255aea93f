// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry runs an operation with exponential backoff.
package retry

import (
	"context"
	"math"
	"time"
)

// BaseDelay controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var BaseDelay = 2 * time.Second

const defaultMaxRetries = 5

// Do calls fn until it returns nil or maxRetries retries have been spent.
// The delay starts at BaseDelay (2 s) and doubles each attempt: 2 s, 4 s,
// 8 s, 16 s, 32 s.
//
// When maxRetries is 0 the default (5) is used. If the context is cancelled
// during a backoff wait Do returns ctx.Err(). After exhausting retries the
// last error from fn is returned.
func Do(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * BaseDelay
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
