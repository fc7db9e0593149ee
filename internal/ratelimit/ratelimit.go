// internal/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter bounds the aggregate outbound request rate to maxRate permits per
// timePeriod, shared across every concurrent fetch in the process. Permit
// accounting is serialized internally, so any number of goroutines may wait
// on the same Limiter.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter allowing maxRate acquisitions per timePeriod.
func New(maxRate int, timePeriod time.Duration) *Limiter {
	interval := rate.Every(timePeriod / time.Duration(maxRate))
	return &Limiter{
		bucket: rate.NewLimiter(interval, maxRate),
	}
}

// Wait blocks until a permit is available or ctx is done. It never rejects
// on load, only delays.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
