// Package ratelimit provides per-client request throttling for the fake API.
// Clients are identified by an opaque key, normally the bearer token.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit is a token bucket setting.
type Limit struct {
	RPS   float64
	Burst int
}

// Config defines the throttling configuration.
type Config struct {
	Default   Limit            // applied to keys without an override
	Overrides map[string]Limit // per-key settings, e.g. a throttled "unauthorized" token in tests
	IdleTTL   time.Duration    // limiters unused for this long are dropped
}

// DefaultConfig is generous enough that a full suite run never trips it.
var DefaultConfig = Config{
	Default: Limit{RPS: 200, Burst: 400},
	IdleTTL: 10 * time.Minute,
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter hands out one token bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*entry
	config  Config
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a limiter and starts its idle sweeper.
func New(config Config) *Limiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig.IdleTTL
	}
	l := &Limiter{
		buckets: make(map[string]*entry),
		config:  config,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.sweepLoop()
	return l
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Remaining reports the whole tokens currently available to key.
func (l *Limiter) Remaining(key string) int {
	n := int(l.bucket(key).Tokens())
	if n < 0 {
		return 0
	}
	return n
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.buckets[key]; ok {
		e.lastUsed = now
		return e.limiter
	}

	limit := l.config.Default
	if override, ok := l.config.Overrides[key]; ok {
		limit = override
	}
	e := &entry{
		limiter:  rate.NewLimiter(rate.Limit(limit.RPS), limit.Burst),
		lastUsed: now,
	}
	l.buckets[key] = e
	return e.limiter
}

// Sweep drops limiters idle for longer than IdleTTL and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.config.IdleTTL)
	removed := 0
	for key, e := range l.buckets {
		if e.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) sweepLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCh:
			return
		}
	}
}

// Stop ends the sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
