package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DiscoveryOptions bounds the search for the TTL check after registration.
type DiscoveryOptions struct {
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func DefaultDiscoveryOptions() DiscoveryOptions {
	return DiscoveryOptions{
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// DiscoverCheck polls the agent until the TTL check of instanceID becomes visible.
// Registration propagates asynchronously, so a missing check is retried with backoff;
// exhausting the attempts yields ErrCheckNotFound or the last agent error.
func DiscoverCheck(ctx context.Context, finder CheckFinder, instanceID string, opts DiscoveryOptions, log *slog.Logger) (CheckID, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialBackoff
	b.MaxInterval = opts.MaxBackoff
	b.RandomizationFactor = 0.2

	attempt := 0
	return backoff.Retry(ctx, func() (CheckID, error) {
		attempt++
		attemptCtx := ctx
		if opts.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, opts.AttemptTimeout)
			defer cancel()
		}

		checkID, found, err := finder.FindCheckID(attemptCtx, instanceID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", ErrCheckNotFound
		}
		log.Debug("consul: ttl check discovered",
			slog.String("check_id", string(checkID)),
			slog.Int("attempt", attempt),
		)
		return checkID, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(opts.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("consul: ttl check not visible yet",
				slog.String("instance_id", instanceID),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", next),
				slog.Any("error", err),
			)
		}),
	)
}
