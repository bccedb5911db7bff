package ratelimit

import (
	"sync"
	"time"
)

// Clock is the time source for a TokenBucket. Tests inject a fake.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// One token is tracked as 1e9 nano-tokens, so a fill rate of X tokens/sec adds
// exactly X nano-tokens per elapsed nanosecond with no float rounding.
const nanoPerToken int64 = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket refills at an integer rate (tokens/sec) up to a fixed capacity.
// The bucket starts full.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	capacity int64 // nano-tokens
	rate     int64 // tokens/sec == nano-tokens/ns
	avail    int64 // nano-tokens
	last     time.Time
}

func NewTokenBucket(clock Clock, capacityTokens, tokensPerSecond int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if tokensPerSecond < 0 {
		tokensPerSecond = 0
	}
	capacity := toNano(capacityTokens)
	return &TokenBucket{
		clock:    clock,
		capacity: capacity,
		rate:     tokensPerSecond,
		avail:    capacity,
		last:     clock.Now(),
	}
}

// NewPerSecond returns a bucket allowing a burst of n and n/sec sustained.
func NewPerSecond(clock Clock, n int) *TokenBucket {
	return NewTokenBucket(clock, int64(n), int64(n))
}

// Allow consumes tokens if available. tokens <= 0 always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}
	cost := toNano(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.avail < cost {
		return false
	}
	b.avail -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last).Nanoseconds()
	// A clock that moved backwards only resets the reference point.
	b.last = now
	if elapsed <= 0 || b.rate == 0 || b.avail >= b.capacity {
		return
	}

	need := b.capacity - b.avail
	if elapsed >= need/b.rate {
		b.avail = b.capacity
		return
	}
	b.avail += elapsed * b.rate
	if b.avail > b.capacity {
		b.avail = b.capacity
	}
}

func toNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanoPerToken {
		return maxInt64
	}
	return tokens * nanoPerToken
}
