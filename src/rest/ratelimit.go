package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// manualLock is a gate any goroutine may close for a while. It starts
// open; LockFor closes it and a timer reopens it after the delay. Waiters
// block until the gate opens or their context ends.
type manualLock struct {
	mu          sync.Mutex
	gate        chan struct{} // closed channel = unlocked
	lockedUntil time.Time
	timer       *time.Timer
}

func newManualLock() *manualLock {
	gate := make(chan struct{})
	close(gate)
	return &manualLock{gate: gate}
}

func (l *manualLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	gate := l.gate
	l.mu.Unlock()
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *manualLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.gate:
		return false
	default:
		return true
	}
}

// LockFor closes the gate for the given delay. Locking an already locked
// gate is a no-op.
func (l *manualLock) LockFor(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.gate:
	default:
		return
	}
	gate := make(chan struct{})
	l.gate = gate
	l.lockedUntil = time.Now().Add(delay)
	l.timer = time.AfterFunc(delay, func() {
		// release may have closed the gate between the timer firing and
		// this callback running; only one of the two may close it.
		l.mu.Lock()
		defer l.mu.Unlock()
		select {
		case <-gate:
		default:
			close(gate)
		}
	})
}

func (l *manualLock) LockedUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lockedUntil
}

// release opens the gate immediately, cancelling any pending unlock timer.
// Used on shutdown so no waiter is stranded.
func (l *manualLock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.gate:
		return
	default:
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	close(l.gate)
}

// Bucket is the rate limit lease for one route (or a group of routes once
// Discord assigns them a shared hash). A fresh bucket starts unlocked with
// unknown quota; response headers fill it in.
type Bucket struct {
	lock *manualLock

	mu          sync.Mutex
	routeKey    string
	hash        string
	limit       int
	remaining   int // -1 until the first update
	resetAfter  time.Duration
	reset       time.Time
	firstUpdate bool
}

func newBucket(routeKey string, hash string) *Bucket {
	return &Bucket{
		lock:        newManualLock(),
		routeKey:    routeKey,
		hash:        hash,
		limit:       1,
		remaining:   -1,
		firstUpdate: true,
	}
}

// Acquire waits for the bucket. A bucket whose quota is exhausted locks
// itself for the known reset window before waiting, so the caller sleeps
// through the depletion instead of burning a 429.
func (b *Bucket) Acquire(ctx context.Context) error {
	b.mu.Lock()
	if b.remaining == 0 && b.resetAfter > 0 && !b.lock.Locked() {
		b.lock.LockFor(b.resetAfter)
	}
	b.mu.Unlock()
	return b.lock.Acquire(ctx)
}

// LockFor manually locks the bucket, typically from a 429's Retry-After.
func (b *Bucket) LockFor(delay time.Duration) {
	b.lock.LockFor(delay)
}

func (b *Bucket) Locked() bool {
	return b.lock.Locked()
}

func (b *Bucket) Hash() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hash
}

func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// UpdateInfo folds a response's rate limit headers into the bucket. The
// remaining count only ever tightens after the first update: two in-flight
// requests may both carry stale quota, and taking the minimum stops a late
// response from reopening headroom that is already spent.
func (b *Bucket) UpdateInfo(status int, headers http.Header) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if raw := headers.Get("X-RateLimit-Limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			b.limit = limit
		}
	}

	rawRemaining := headers.Get("X-RateLimit-Remaining")
	switch {
	case status == http.StatusTooManyRequests:
		b.remaining = 0
	case rawRemaining == "":
		b.remaining = 1
	default:
		remaining, err := strconv.Atoi(rawRemaining)
		if err == nil {
			if b.firstUpdate || b.remaining < 0 || remaining < b.remaining {
				b.remaining = remaining
			}
		}
	}

	if raw := headers.Get("X-RateLimit-Reset"); raw != "" {
		if unix, err := strconv.ParseFloat(raw, 64); err == nil {
			b.reset = time.Unix(0, int64(unix*float64(time.Second)))
		}
	}

	if raw := headers.Get("X-RateLimit-Reset-After"); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
			resetAfter := time.Duration(seconds * float64(time.Second))
			if resetAfter > b.resetAfter {
				b.resetAfter = resetAfter
			}
		}
	}

	if raw := headers.Get("X-RateLimit-Bucket"); raw != "" {
		b.hash = raw
	}

	b.firstUpdate = false
}

type bucketKey struct {
	route string
	hash  string
}

// RateLimiter owns the bucket registry and the global lock. Buckets are
// handed out by (route key, discovered hash) pair; callers never touch
// bucket fields directly.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*Bucket
	global  *manualLock
	log     *slog.Logger
}

func NewRateLimiter(log *slog.Logger) *RateLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiter{
		buckets: make(map[bucketKey]*Bucket),
		global:  newManualLock(),
		log:     log,
	}
}

// GetBucket returns the bucket for the pair, creating an unlocked one with
// unknown quota if none exists yet.
func (r *RateLimiter) GetBucket(routeKey string, hash string) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := bucketKey{route: routeKey, hash: hash}
	if b, ok := r.buckets[key]; ok {
		return b
	}
	b := newBucket(routeKey, hash)
	r.buckets[key] = b
	return b
}

// Migrate re-keys a route onto the bucket hash Discord reported. If the
// target bucket is new and the old one is mid-lock, the lock state carries
// over so migration never forfeits an active cooldown. Two synthetic keys
// may legitimately converge on one real bucket this way.
func (r *RateLimiter) Migrate(old *Bucket, routeKey string, hash string) *Bucket {
	r.mu.Lock()
	key := bucketKey{route: routeKey, hash: hash}
	b, exists := r.buckets[key]
	if !exists {
		b = newBucket(routeKey, hash)
		r.buckets[key] = b
	}
	r.mu.Unlock()

	if b == old {
		return b
	}
	r.log.Debug("migrating rate limit bucket", "route", routeKey, "from", old.Hash(), "to", hash)
	if !exists && old.Locked() {
		if until := old.lock.LockedUntil(); time.Until(until) > 0 {
			b.LockFor(time.Until(until))
		}
	}
	return b
}

// AcquireGlobal waits on the global lock. Every request passes here before
// touching its route bucket.
func (r *RateLimiter) AcquireGlobal(ctx context.Context) error {
	return r.global.Acquire(ctx)
}

// LockGlobal locks every outbound request for the delay a global 429
// dictated.
func (r *RateLimiter) LockGlobal(delay time.Duration) {
	r.log.Warn("global rate limit hit", "delay", delay)
	r.global.LockFor(delay)
}

func (r *RateLimiter) GlobalLocked() bool {
	return r.global.Locked()
}

// Close releases every lock and cancels pending unlock timers so no
// goroutine stays parked after shutdown.
func (r *RateLimiter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.buckets {
		b.lock.release()
	}
	r.global.release()
}
