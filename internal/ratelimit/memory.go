package ratelimit

import (
	"context"
	"time"

	limiter "github.com/ulule/limiter/v3"
)

// Memory is a Limiter backed by an in-process ulule store. The service is
// stateless with no shared cache, so per-instance limiting is the deployment
// unit.
type Memory struct {
	Store limiter.Store
}

// Allow registers an event for the given key and returns whether it is within the limit.
func (m Memory) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if m.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}

	rate := limiter.Rate{Period: window, Limit: int64(max)}
	lctx, err := limiter.New(m.Store, rate).Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}
