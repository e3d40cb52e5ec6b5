package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter caps attempts per key per window. Each key gets a token
// bucket holding `limit` tokens refilled over one interval, which bounds a
// burst to `limit` attempts and sustained traffic to `limit` per interval.
//
// Keys are expected to be HashKey output, never raw client addresses.
type RateLimiter struct {
	mu        sync.Mutex
	interval  time.Duration
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter with the given window length.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval:  interval,
		limiters:  make(map[string]*limiterEntry),
		lastSweep: time.Now(),
	}
}

// Check records one attempt for key and fails with ErrTooManyAttempts if
// the key has exceeded limit attempts in the current window.
func (r *RateLimiter) Check(limit int, key string) error {
	if limit <= 0 {
		return ErrTooManyAttempts
	}

	r.mu.Lock()
	now := time.Now()
	if now.Sub(r.lastSweep) > r.interval {
		r.sweepLocked(now)
	}
	entry, ok := r.limiters[key]
	if !ok {
		entry = &limiterEntry{
			lim: rate.NewLimiter(rate.Every(r.interval/time.Duration(limit)), limit),
		}
		r.limiters[key] = entry
	}
	entry.lastSeen = now
	r.mu.Unlock()

	if !entry.lim.Allow() {
		return ErrTooManyAttempts
	}
	return nil
}

// sweepLocked drops keys idle for more than two windows. Caller holds r.mu.
func (r *RateLimiter) sweepLocked(now time.Time) {
	for k, e := range r.limiters {
		if now.Sub(e.lastSeen) > 2*r.interval {
			delete(r.limiters, k)
		}
	}
	r.lastSweep = now
}

// HashKey builds a rate-limit key from its parts. Client addresses are
// hashed before storage so no raw IP is retained.
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "-")))
	return hex.EncodeToString(sum[:])
}
