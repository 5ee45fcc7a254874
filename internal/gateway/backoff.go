package gateway

import (
	"context"
	"math/rand"
	"time"
)

// Backoff is the bounded retry policy shared by the gateway and the proxy
// IP check: Attempts tries in total, a uniformly random pause in
// [MinDelay, MaxDelay] between them.
type Backoff struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration

	// Sleep replaces the context-aware sleep, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff is 3 attempts with 4-10s pauses.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		MinDelay: 4 * time.Second,
		MaxDelay: 10 * time.Second,
	}
}

// Delay picks the next pause uniformly from [MinDelay, MaxDelay].
func (b Backoff) Delay() time.Duration {
	if b.MaxDelay <= b.MinDelay {
		return b.MinDelay
	}
	span := int64(b.MaxDelay - b.MinDelay)
	return b.MinDelay + time.Duration(rand.Int63n(span+1))
}

// Pause sleeps for Delay or until ctx is done.
func (b Backoff) Pause(ctx context.Context) error {
	d := b.Delay()
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func (b Backoff) attempts(retry bool) int {
	if !retry || b.Attempts < 1 {
		return 1
	}
	return b.Attempts
}

// Sleep waits for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
