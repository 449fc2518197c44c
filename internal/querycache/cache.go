// Package querycache sits between page handlers and the backend client. It
// de-duplicates concurrent requests per key, serves cached results within a
// staleness window, revalidates stale results in the background, polls keys
// that must stay live and drops entries that a mutation has invalidated.
package querycache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// FetchFunc performs the backend call for one key.
type FetchFunc func(ctx context.Context) (any, error)

// Config holds cache tuning. Zero durations, clock and logger are replaced by
// DefaultConfig's; Retries is taken as given.
type Config struct {
	// GCTime is how long an entry may go unread before it is evicted.
	GCTime time.Duration
	// FetchTimeout bounds a single fetch, retries included.
	FetchTimeout time.Duration
	// Retries is the number of extra attempts for retryable errors. Zero or
	// negative disables retries.
	Retries int
	// RetryInterval is the first backoff interval; it doubles per attempt.
	RetryInterval time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool

	Clock  quartz.Clock
	Logger logrus.FieldLogger
	Meter  metric.Meter
}

func DefaultConfig() Config {
	return Config{
		GCTime:        5 * time.Minute,
		FetchTimeout:  30 * time.Second,
		Retries:       3,
		RetryInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GCTime <= 0 {
		c.GCTime = d.GCTime
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

type entry struct {
	key Key

	value     any
	hasValue  bool
	err       error
	fetchedAt time.Time
	staleTime time.Duration
	lastUsed  time.Time

	// gen is bumped when a fetch is requested, when the entry is invalidated
	// and when a value is set. A fetch may only store its outcome while the
	// gen it was requested under is still current.
	gen         uint64
	inflight    bool
	invalidated bool
	polls       int
}

// settled reports whether the entry holds an outcome nobody is replacing.
func (e *entry) settled() bool {
	return (e.hasValue || e.err != nil) && !e.inflight && !e.invalidated
}

func (e *entry) fresh(now time.Time) bool {
	return e.hasValue && !e.invalidated && e.err == nil && now.Sub(e.fetchedAt) < e.staleTime
}

// snapshot is an untyped view of an entry handed back to readers.
type snapshot struct {
	value     any
	hasValue  bool
	err       error
	stale     bool
	fetchedAt time.Time
}

type outcome struct {
	gen uint64
}

var errEvicted = errors.New("querycache: entry evicted while loading")

type Cache struct {
	cfg   Config
	clock quartz.Clock
	log   logrus.FieldLogger
	inst  *instruments

	mu      sync.Mutex
	entries map[string]*entry
	sf      singleflight.Group

	// ctx scopes background fetches and pollers; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	// wg tracks background fetches, pollers and the janitor.
	wg sync.WaitGroup
}

func New(cfg Config) (*Cache, error) {
	cfg = cfg.withDefaults()

	inst, err := newInstruments(cfg.Meter)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		cfg:     cfg,
		clock:   cfg.Clock,
		log:     cfg.Logger.WithField("component", "querycache"),
		inst:    inst,
		entries: map[string]*entry{},
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Close cancels background fetches, stops pollers and the janitor, and waits
// for all of them to return.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) entryLocked(k Key) *entry {
	ks := k.String()
	e, ok := c.entries[ks]
	if !ok {
		e = &entry{key: k}
		c.entries[ks] = e
	}
	return e
}

func (e *entry) snapshot(now time.Time) snapshot {
	return snapshot{
		value:     e.value,
		hasValue:  e.hasValue,
		err:       e.err,
		stale:     e.hasValue && !e.fresh(now),
		fetchedAt: e.fetchedAt,
	}
}

// get serves k. Fresh data is returned as is; stale data is returned at once
// while one background refetch runs; with nothing usable cached, the caller
// waits for the shared in-flight request.
func (c *Cache) get(ctx context.Context, k Key, staleTime time.Duration, fetch FetchFunc) (snapshot, error) {
	now := c.clock.Now()

	c.mu.Lock()
	e := c.entryLocked(k)
	e.lastUsed = now
	e.staleTime = staleTime

	switch {
	case e.fresh(now):
		snap := e.snapshot(now)
		c.mu.Unlock()
		c.inst.read(k, "hit")
		return snap, nil

	case e.hasValue && !e.invalidated:
		if !e.inflight {
			c.startLocked(k, fetch)
		}
		snap := e.snapshot(now)
		c.mu.Unlock()
		c.inst.read(k, "stale")
		return snap, nil
	}
	c.mu.Unlock()

	c.inst.read(k, "miss")
	return c.await(ctx, k, fetch)
}

// startLocked joins the fetch in flight for k or requests a new one. A new
// request takes its generation here, under c.mu, so a request that is still
// queued can never overwrite the outcome of one made after it.
func (c *Cache) startLocked(k Key, fetch FetchFunc) <-chan singleflight.Result {
	ks := k.String()
	e := c.entryLocked(k)
	if e.inflight {
		gen := e.gen
		return c.sf.DoChan(ks, func() (any, error) {
			return c.run(k, e, gen, fetch), nil
		})
	}

	e.gen++
	e.inflight = true
	gen := e.gen
	// A finished call may still be registered; never join it.
	c.sf.Forget(ks)
	c.wg.Add(1)
	return c.sf.DoChan(ks, func() (any, error) {
		defer c.wg.Done()
		return c.run(k, e, gen, fetch), nil
	})
}

// await waits for the current fetch of k. If that fetch is superseded while
// we wait, it waits for the one that replaced it, so a caller never receives
// a response older than the latest request.
func (c *Cache) await(ctx context.Context, k Key, fetch FetchFunc) (snapshot, error) {
	ks := k.String()
	for waited := false; ; waited = true {
		c.mu.Lock()
		if e, ok := c.entries[ks]; ok && (e.fresh(c.clock.Now()) || (waited && e.settled())) {
			snap := e.snapshot(c.clock.Now())
			c.mu.Unlock()
			return snap, nil
		}
		ch := c.startLocked(k, fetch)
		c.mu.Unlock()

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return snapshot{}, ctx.Err()
		case res = <-ch:
		}
		out := res.Val.(outcome)

		c.mu.Lock()
		e, ok := c.entries[ks]
		if !ok {
			c.mu.Unlock()
			return snapshot{}, errEvicted
		}
		if out.gen == e.gen {
			snap := e.snapshot(c.clock.Now())
			c.mu.Unlock()
			return snap, nil
		}
		c.mu.Unlock()
	}
}

// run executes the fetch requested under gen and stores its outcome if gen is
// still current.
func (c *Cache) run(k Key, e *entry, gen uint64, fetch FetchFunc) outcome {
	ks := k.String()

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := c.clock.Now()
	value, err := c.retry(ctx, k, fetch)
	elapsed := c.clock.Since(start).Seconds()

	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.entries[ks]
	if !ok || current != e || e.gen != gen {
		c.inst.fetched(k, "superseded", elapsed)
		return outcome{gen: gen}
	}

	e.inflight = false
	e.invalidated = false
	if err != nil {
		// Keep the last good value; readers see it together with the error.
		e.err = err
		c.inst.fetched(k, "error", elapsed)
		c.log.WithError(err).WithField("key", k.String()).Warn("fetch failed")
		return outcome{gen: gen}
	}

	e.value = value
	e.hasValue = true
	e.err = nil
	e.fetchedAt = c.clock.Now()
	c.inst.fetched(k, "ok", elapsed)
	return outcome{gen: gen}
}

// Invalidate marks every entry whose key starts with prefix as invalidated
// and supersedes their in-flight fetches. The next read of such an entry
// waits for fresh data. It returns the number of entries affected.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for ks, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.gen++
		e.inflight = false
		e.invalidated = true
		c.sf.Forget(ks)
		n++
	}
	return n
}

// refetch supersedes any in-flight request for k and starts a new one. The
// entry keeps serving its current value until the new fetch completes.
func (c *Cache) refetch(k Key, fetch FetchFunc) <-chan singleflight.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entryLocked(k).inflight = false
	return c.startLocked(k, fetch)
}

// set stores v for k as if it had just been fetched.
func (c *Cache) set(k Key, v any, staleTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(k)
	e.gen++
	e.inflight = false
	e.invalidated = false
	e.value = v
	e.hasValue = true
	e.err = nil
	e.fetchedAt = c.clock.Now()
	e.lastUsed = e.fetchedAt
	if staleTime > 0 {
		e.staleTime = staleTime
	}
	c.sf.Forget(k.String())
}

func (c *Cache) peek(k Key) (snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k.String()]
	if !ok {
		return snapshot{}, false
	}
	return e.snapshot(c.clock.Now()), true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
