package platform

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Retry runs connect with exponential backoff until it succeeds, ctx ends,
// or maxElapsed passes.
func Retry(ctx context.Context, name string, maxElapsed time.Duration, connect func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("dependency", name).Dur("retry_in", wait).Msg("dependency not ready")
	})
}
