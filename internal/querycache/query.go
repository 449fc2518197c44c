package querycache

import (
	"context"
	"fmt"
	"time"
)

// Query describes one cacheable backend read.
type Query[T any] struct {
	Key Key
	// StaleTime is how long a result is served without revalidation.
	StaleTime time.Duration
	Fetch     func(ctx context.Context) (T, error)
}

func (q Query[T]) fetchFunc() FetchFunc {
	return func(ctx context.Context) (any, error) {
		return q.Fetch(ctx)
	}
}

// Fetch reads q through the cache. It only blocks when there is no usable
// cached value; a cancelled ctx yields a Loading result.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) Result[T] {
	snap, err := c.get(ctx, q.Key, q.StaleTime, q.fetchFunc())
	if err != nil {
		if ctx.Err() != nil {
			return Loading[T]()
		}
		return Failed[T](err)
	}
	return fromSnapshot[T](snap)
}

// Peek returns what the cache holds for k without fetching.
func Peek[T any](c *Cache, k Key) Result[T] {
	snap, ok := c.peek(k)
	if !ok {
		return Loading[T]()
	}
	return fromSnapshot[T](snap)
}

// Set stores v under q's key as a fresh result, superseding any fetch in
// flight. Mutations that return the updated resource use it.
func Set[T any](c *Cache, q Query[T], v T) {
	c.set(q.Key, v, q.StaleTime)
}

// Prefetch starts loading q in the background unless it is fresh.
func Prefetch[T any](c *Cache, q Query[T]) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(q.Key)
	e.staleTime = q.StaleTime
	if e.fresh(now) || e.inflight {
		return
	}
	e.lastUsed = now
	c.startLocked(q.Key, q.fetchFunc())
}

func fromSnapshot[T any](snap snapshot) Result[T] {
	if !snap.hasValue {
		if snap.err != nil {
			return Failed[T](snap.err)
		}
		return Loading[T]()
	}

	v, ok := snap.value.(T)
	if !ok {
		var zero T
		return Failed[T](fmt.Errorf("querycache: cached %T is not %T", snap.value, zero))
	}

	r := Succeeded(v)
	r.Err = snap.err
	r.Stale = snap.stale
	r.FetchedAt = snap.fetchedAt
	return r
}
