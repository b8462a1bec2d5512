package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// fastRetryPolicy is the HTTP data-path policy: a short fixed backoff with
// jitter and two attempts in total. Metadata queries are never retried.
func fastRetryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 1
	b.RandomizationFactor = 0.3
	return backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx)
}

// slowRetryPolicy is the FTP/S3 data-path policy: intervals double from 4s
// to a 10s ceiling, without jitter and with no attempt cap. The caller
// cancels via ctx.
func slowRetryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 4 * time.Second
	b.MaxInterval = 10 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

// retryRange runs op under the given policy, logging each retried failure.
func retryRange(policy backoff.BackOff, logger zerolog.Logger, url string, op func() ([]byte, error)) ([]byte, error) {
	return backoff.RetryNotifyWithData(op, policy, func(err error, d time.Duration) {
		logger.Warn().Str("url", url).Dur("backoff", d).Err(err).Msg("retrying range fetch")
	})
}
