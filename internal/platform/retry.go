package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Attempts and Backoff bound how long a dependency gets to come up.
const (
	Attempts = 5
	Backoff  = 500 * time.Millisecond
)

// Retry runs connect with exponential backoff until it succeeds, the
// attempts run out or ctx ends.
func Retry(ctx context.Context, logger zerolog.Logger, name string, connect func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = Backoff
	policy.MaxInterval = 5 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, connect(ctx)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(Attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn().Err(err).Str("dependency", name).Int("attempt", attempt).Dur("retry_in", next).Msg("connect failed")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect %s failed after %d attempts: %w", name, attempt, err)
	}
	logger.Info().Str("dependency", name).Int("attempt", attempt).Msg("connected")
	return nil
}
