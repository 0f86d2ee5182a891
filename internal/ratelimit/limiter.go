// Package ratelimit enforces per-domain politeness intervals shared by every
// scrape task that targets the same retailer.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Config holds limiter configuration.
type Config struct {
	// Interval is the minimum spacing between two grants for one domain.
	Interval time.Duration
	// MaxPenalty caps the exponential cool-down applied after Blocked responses.
	MaxPenalty time.Duration
	// Overrides sets a different interval for specific domains.
	Overrides map[string]time.Duration
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Interval:   2 * time.Second,
		MaxPenalty: 5 * time.Minute,
	}
}

// Limiter gates requests to a single domain. Each Acquire takes a ticket and
// tickets are granted strictly in order, at least Interval apart and never
// during an active penalty.
type Limiter struct {
	mu           sync.Mutex
	interval     time.Duration
	maxPenalty   time.Duration
	issued       uint64 // next ticket to hand out
	serving      uint64 // ticket allowed to take the next grant
	abandoned    map[uint64]bool
	changed      chan struct{}
	lastGrant    time.Time
	blockedUntil time.Time
	strikes      int
}

// NewLimiter creates a limiter for one domain.
func NewLimiter(interval, maxPenalty time.Duration) *Limiter {
	if maxPenalty < interval {
		maxPenalty = interval
	}
	return &Limiter{
		interval:   interval,
		maxPenalty: maxPenalty,
		abandoned:  make(map[uint64]bool),
		changed:    make(chan struct{}),
	}
}

// Acquire blocks until the caller may issue one request, or ctx is done.
// A caller that gives up hands its turn to the next ticket; spacing is
// measured from the last grant that actually happened.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	ticket := l.issued
	l.issued++

	for {
		var wait time.Duration
		if ticket == l.serving {
			now := time.Now()
			earliest := l.earliestLocked()
			if !now.Before(earliest) {
				l.lastGrant = now
				l.advanceLocked()
				l.mu.Unlock()
				return nil
			}
			wait = earliest.Sub(now)
		}
		changed := l.changed
		l.mu.Unlock()

		if err := waitTurn(ctx, changed, wait); err != nil {
			l.mu.Lock()
			l.abandonLocked(ticket)
			l.mu.Unlock()
			return err
		}
		l.mu.Lock()
	}
}

// earliestLocked is the first instant the head of the queue may be granted.
func (l *Limiter) earliestLocked() time.Time {
	earliest := l.blockedUntil
	if !l.lastGrant.IsZero() {
		earliest = latest(earliest, l.lastGrant.Add(l.interval))
	}
	return earliest
}

// advanceLocked moves the queue head past the current ticket and any
// abandoned ones behind it, then wakes the waiters.
func (l *Limiter) advanceLocked() {
	l.serving++
	for l.abandoned[l.serving] {
		delete(l.abandoned, l.serving)
		l.serving++
	}
	l.notifyLocked()
}

func (l *Limiter) abandonLocked(ticket uint64) {
	if ticket == l.serving {
		l.advanceLocked()
		return
	}
	if ticket > l.serving {
		l.abandoned[ticket] = true
	}
}

func (l *Limiter) notifyLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Penalize applies an exponentially growing cool-down to the domain and
// returns its length.
func (l *Limiter) Penalize() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.strikes++
	penalty := l.interval
	if penalty <= 0 {
		penalty = time.Second
	}
	for i := 1; i < l.strikes && penalty < l.maxPenalty; i++ {
		penalty *= 2
	}
	if penalty > l.maxPenalty {
		penalty = l.maxPenalty
	}

	until := time.Now().Add(penalty)
	if until.After(l.blockedUntil) {
		l.blockedUntil = until
		l.notifyLocked()
	}
	return penalty
}

// Reward resets the penalty growth after a successful request.
func (l *Limiter) Reward() {
	l.mu.Lock()
	l.strikes = 0
	l.mu.Unlock()
}

// BlockedUntil returns the end of the current cool-down, if any.
func (l *Limiter) BlockedUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockedUntil
}

// waiting returns the number of callers queued for a grant.
func (l *Limiter) waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.issued-l.serving) - len(l.abandoned)
}

// Registry owns one Limiter per domain. It is shared by reference between
// all tasks of a run.
type Registry struct {
	cfg      Config
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.MaxPenalty <= 0 {
		cfg.MaxPenalty = DefaultConfig().MaxPenalty
	}
	return &Registry{
		cfg:      cfg,
		limiters: make(map[string]*Limiter),
	}
}

// For returns the limiter for a domain, creating it on first use.
func (r *Registry) For(domain string) *Limiter {
	domain = normalizeDomain(domain)

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[domain]
	if !ok {
		interval := r.cfg.Interval
		if d, ok := r.cfg.Overrides[domain]; ok {
			interval = d
		}
		l = NewLimiter(interval, r.cfg.MaxPenalty)
		r.limiters[domain] = l
	}
	return l
}

// Acquire waits for permission to send one request to domain.
func (r *Registry) Acquire(ctx context.Context, domain string) error {
	return r.For(domain).Acquire(ctx)
}

// Penalize backs off a domain that answered with a block.
func (r *Registry) Penalize(domain string) time.Duration {
	return r.For(domain).Penalize()
}

// Reward clears the penalty growth of a domain.
func (r *Registry) Reward(domain string) {
	r.For(domain).Reward()
}

// Domains lists the domains seen so far.
func (r *Registry) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.limiters))
	for d := range r.limiters {
		out = append(out, d)
	}
	return out
}

// DomainOf extracts the rate-limit key from a product URL.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return normalizeDomain(rawURL)
	}
	return normalizeDomain(u.Hostname())
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.TrimPrefix(d, "www.")
}

func latest(ts ...time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}

// waitTurn returns when the queue changes, after wait (if positive), or with
// ctx's error.
func waitTurn(ctx context.Context, changed <-chan struct{}, wait time.Duration) error {
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-changed:
		return nil
	case <-timeout:
		return nil
	}
}
