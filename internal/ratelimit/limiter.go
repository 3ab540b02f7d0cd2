package ratelimit

import (
	"context"

	"github.com/kursadbilgin/community-notify/internal/domain"
)

// RateLimiter controls provider throughput per channel. n is the number of
// messages the caller is about to hand to the provider in one call.
type RateLimiter interface {
	Allow(ctx context.Context, channel domain.Channel, n int) (bool, error)
	Wait(ctx context.Context, channel domain.Channel, n int) error
}

// Unlimited never throttles. Used when no limiter is configured.
type Unlimited struct{}

var _ RateLimiter = Unlimited{}

func (Unlimited) Allow(context.Context, domain.Channel, int) (bool, error) {
	return true, nil
}

func (Unlimited) Wait(ctx context.Context, _ domain.Channel, _ int) error {
	return ctx.Err()
}
