// internal/ratelimit/ratelimit_test.go
package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BoundsAggregateRate(t *testing.T) {
	// 2 permits per 100ms; 6 concurrent waiters need at least 4 refill
	// intervals (50ms each) beyond the initial burst.
	limiter := New(2, 100*time.Millisecond)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, limiter.Wait(context.Background()))
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond,
		"6 acquisitions at 2 per 100ms must take at least 3 refill intervals")
}

func TestLimiter_DoesNotDelayWithinBudget(t *testing.T) {
	limiter := New(10, time.Second)

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}

	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"acquisitions within the initial budget must not block")
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	limiter := New(1, time.Hour)
	require.NoError(t, limiter.Wait(context.Background())) // drain the budget

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.Error(t, err)
}
