package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pairingEntry struct {
	secret    string
	expiresAt time.Time
}

// PairingCache brokers the two-phase UUID handshake. It maps a
// client-supplied UUID to a one-time secret; the secret is consumed on the
// first completion attempt whether or not it matches.
//
// State is per-process: a pairing begun on one instance cannot be completed
// on another. Entries expire after the configured TTL.
type PairingCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]pairingEntry
}

// NewPairingCache creates a pairing cache with the given entry lifetime.
func NewPairingCache(ttl time.Duration) *PairingCache {
	return &PairingCache{
		ttl:     ttl,
		entries: make(map[string]pairingEntry),
	}
}

// Begin validates the client UUID and issues a fresh pairing secret,
// overwriting any prior unconsumed entry for that UUID. The secret is an
// opaque token the client must echo back unmodified: a fresh random UUID
// joined to the client's own, so it is unguessable and bound to the caller.
func (p *PairingCache) Begin(clientUUID string) (string, error) {
	if _, err := uuid.Parse(clientUUID); err != nil {
		return "", ErrInvalidUUID
	}

	secret := base64.StdEncoding.EncodeToString([]byte(uuid.NewString() + "-" + clientUUID))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	p.entries[clientUUID] = pairingEntry{
		secret:    secret,
		expiresAt: time.Now().Add(p.ttl),
	}
	return secret, nil
}

// Complete consumes the pairing entry for clientUUID. The entry is removed
// whatever the outcome, so every secret gets exactly one comparison. Returns
// the consumed secret on match, ErrInvalidRequest on mismatch, expiry, or a
// UUID that was never begun (or was already consumed).
func (p *PairingCache) Complete(clientUUID, supplied string) (string, error) {
	p.mu.Lock()
	entry, ok := p.entries[clientUUID]
	delete(p.entries, clientUUID)
	p.mu.Unlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return "", ErrInvalidRequest
	}
	if subtle.ConstantTimeCompare([]byte(entry.secret), []byte(supplied)) != 1 {
		return "", ErrInvalidRequest
	}
	return entry.secret, nil
}

// Len returns the number of outstanding pairing entries.
func (p *PairingCache) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// sweepLocked discards expired entries. Caller holds p.mu.
func (p *PairingCache) sweepLocked() {
	now := time.Now()
	for k, e := range p.entries {
		if now.After(e.expiresAt) {
			delete(p.entries, k)
		}
	}
}
