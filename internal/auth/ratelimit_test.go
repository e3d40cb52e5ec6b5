package auth

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	key := HashKey("198.51.100.7", testUUID)

	for i := 0; i < 5; i++ {
		if err := rl.Check(5, key); err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i+1, err)
		}
	}
	if err := rl.Check(5, key); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("expected ErrTooManyAttempts on 6th attempt, got %v", err)
	}
}

func TestRateLimiter_SingleAttemptWindow(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	key := HashKey("198.51.100.7", testUUID)

	if err := rl.Check(1, key); err != nil {
		t.Fatalf("first attempt: unexpected error: %v", err)
	}
	// Second attempt in the same window fails regardless of anything else.
	if err := rl.Check(1, key); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("expected ErrTooManyAttempts on second attempt, got %v", err)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute)

	if err := rl.Check(1, HashKey("198.51.100.7")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rl.Check(1, HashKey("203.0.113.9")); err != nil {
		t.Errorf("different key should not be limited, got %v", err)
	}
}

func TestHashKey_DeterministicAndOpaque(t *testing.T) {
	a := HashKey("198.51.100.7", testUUID)
	b := HashKey("198.51.100.7", testUUID)
	c := HashKey("198.51.100.8", testUUID)

	if a != b {
		t.Error("expected identical inputs to hash identically")
	}
	if a == c {
		t.Error("expected different inputs to hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
