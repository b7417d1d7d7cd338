// Package ratelimit keeps one token bucket per key (client IP, login
// identifier) and forgets idle keys.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Keyed is a set of token buckets sharing one rate and burst.
type Keyed struct {
	r     rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu sync.Mutex
	m  map[string]*entry

	stopOnce sync.Once
	stop     chan struct{}
}

// NewKeyed allows events per window with burst events up front. Keys idle
// for longer than ttl are dropped by Sweep or the Run loop.
func NewKeyed(events int, window time.Duration, burst int, ttl time.Duration) *Keyed {
	if events <= 0 {
		events = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = events
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Keyed{
		r:     rate.Every(window / time.Duration(events)),
		burst: burst,
		ttl:   ttl,
		now:   time.Now,
		m:     make(map[string]*entry),
		stop:  make(chan struct{}),
	}
}

// Allow spends one token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	return k.Reserve(key) == 0
}

// Reserve spends one token from key's bucket when available and returns zero.
// Otherwise nothing is spent and it returns how long until a token frees up.
func (k *Keyed) Reserve(key string) time.Duration {
	now := k.now()

	k.mu.Lock()
	e, ok := k.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(k.r, k.burst)}
		k.m[key] = e
	}
	e.seen = now
	k.mu.Unlock()

	r := e.lim.ReserveN(now, 1)
	if !r.OK() {
		return k.ttl
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d
	}
	return 0
}

// Len is the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}

// Sweep drops keys idle for longer than the ttl.
func (k *Keyed) Sweep() {
	now := k.now()
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.m {
		if now.Sub(e.seen) > k.ttl {
			delete(k.m, key)
		}
	}
}

// Run sweeps every interval until Stop is called.
func (k *Keyed) Run(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-k.stop:
			return
		case <-t.C:
			k.Sweep()
		}
	}
}

// Stop ends Run. Idempotent.
func (k *Keyed) Stop() {
	k.stopOnce.Do(func() { close(k.stop) })
}
