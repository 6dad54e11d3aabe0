package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Outbound targets with their own token bucket.
const (
	TargetBackend = "backend"
	TargetSocial  = "social"
)

// Limiters holds one token bucket per outbound target.
// Burst equals the rate so no capacity is saved up beyond one second's worth.
type Limiters struct {
	limiters map[string]*rate.Limiter
}

// New creates Limiters allowing ratePerSec requests per second per target.
func New(ratePerSec int) *Limiters {
	r := rate.Limit(ratePerSec)

	return &Limiters{
		limiters: map[string]*rate.Limiter{
			TargetBackend: rate.NewLimiter(r, ratePerSec),
			TargetSocial:  rate.NewLimiter(r, ratePerSec),
		},
	}
}

// Wait blocks until the target's limiter grants a token. Unknown targets
// are not limited. Returns a non-nil error only if ctx ends while waiting.
func (l *Limiters) Wait(ctx context.Context, target string) error {
	lim, ok := l.limiters[target]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}
