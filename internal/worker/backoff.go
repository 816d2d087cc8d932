package worker

import (
	"crypto/rand"
	"math/big"
	"time"
)

// Backoff is exponential backoff with jitter for the store polling loop.
// Not safe for concurrent use; each runner owns one.
type Backoff struct {
	minDelay time.Duration
	maxDelay time.Duration
	current  time.Duration
}

func NewBackoff(minDelay, maxDelay time.Duration) *Backoff {
	if minDelay <= 0 {
		minDelay = 1 * time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 1 * time.Minute
	}
	return &Backoff{minDelay: minDelay, maxDelay: maxDelay, current: minDelay}
}

// Next returns the current delay with ±25% jitter applied, then doubles the
// delay up to the maximum.
func (b *Backoff) Next() time.Duration {
	jittered := float64(b.current) * (1 + jitterFraction())

	next := b.current * 2
	if next > b.maxDelay {
		next = b.maxDelay
	}
	b.current = next

	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

// Reset returns the backoff to its minimum delay after a successful poll.
func (b *Backoff) Reset() {
	b.current = b.minDelay
}

// jitterFraction draws a value in [-0.25, 0.25).
func jitterFraction() float64 {
	limit := new(big.Int).Lsh(big.NewInt(1), 53) // 2^53
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return 0
	}
	frac := float64(n.Int64()) / float64(int64(1)<<53)
	return (frac - 0.5) * 0.5
}
