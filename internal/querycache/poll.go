package querycache

import (
	"context"
	"errors"
	"time"
)

var errPollIdle = errors.New("querycache: polled key unread for GCTime")

// Poll refreshes q every interval whether or not anyone reads it. It stops
// when ctx is done, when the cache is closed, or at the first tick after the
// key has gone unread for GCTime. The returned channel is closed once the
// poller has stopped. A polled entry is not garbage collected while its
// poller runs. Each tick waits for its fetch, so a slow backend delays the
// next tick rather than stacking requests.
func Poll[T any](ctx context.Context, c *Cache, q Query[T], interval time.Duration) <-chan struct{} {
	ks := q.Key.String()

	c.mu.Lock()
	e := c.entryLocked(q.Key)
	e.polls++
	e.staleTime = q.StaleTime
	e.lastUsed = c.clock.Now()
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)

	fetch := q.fetchFunc()
	w := c.clock.TickerFunc(ctx, interval, func() error {
		c.mu.Lock()
		if c.clock.Since(c.entryLocked(q.Key).lastUsed) >= c.cfg.GCTime {
			c.mu.Unlock()
			return errPollIdle
		}
		ch := c.startLocked(q.Key, fetch)
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
		}
		return nil
	}, "poll")

	done := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer stop()
		defer cancel()

		if err := w.Wait(); errors.Is(err, errPollIdle) {
			c.log.WithField("key", ks).Debug("stopping poller for unread key")
		}

		c.mu.Lock()
		if e, ok := c.entries[ks]; ok && e.polls > 0 {
			e.polls--
		}
		c.mu.Unlock()
	}()
	return done
}

// StartJanitor evicts entries that have not been read for GCTime. Entries
// with a fetch in flight or an active poller are kept.
func (c *Cache) StartJanitor(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)

	w := c.clock.TickerFunc(ctx, c.cfg.GCTime/2, func() error {
		c.sweep()
		return nil
	}, "gc")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer stop()
		defer cancel()
		_ = w.Wait()
	}()
}

func (c *Cache) sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for ks, e := range c.entries {
		if e.inflight || e.polls > 0 || now.Sub(e.lastUsed) < c.cfg.GCTime {
			continue
		}
		delete(c.entries, ks)
		c.sf.Forget(ks)
		c.inst.evictions.Add(c.ctx, 1)
		n++
	}
	return n
}
