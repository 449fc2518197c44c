package querycache

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retry runs fetch, repeating retryable failures with exponential backoff.
func (c *Cache) retry(ctx context.Context, k Key, fetch FetchFunc) (any, error) {
	if c.cfg.Retries <= 0 {
		return fetch(ctx)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryInterval
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.Retries)), ctx)

	var value any
	op := func() error {
		v, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || (c.cfg.Retryable != nil && !c.cfg.Retryable(err)) {
				return backoff.Permanent(err)
			}
			return err
		}
		value = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithField("key", k.String()).Debugf("fetch failed, retrying in %s", wait)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return value, nil
}
