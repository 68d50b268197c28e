// Package clock abstracts wall time and simulated processing latency so that
// stages can be driven deterministically in tests.
package clock

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Sleeper injects latency. Sleep returns early with ctx.Err() if the context
// is cancelled before d elapses.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Real returns the wall clock in UTC.
func Real() Clock { return realClock{} }

// Fixed is a Clock that always reports the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

type timerSleeper struct{}

// Timer returns a Sleeper backed by time.Timer.
func Timer() Sleeper { return timerSleeper{} }

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoDelay is a Sleeper that never waits. It still honours cancellation.
type NoDelay struct{}

func (NoDelay) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// Recorder is a Sleeper that records requested durations without waiting.
type Recorder struct {
	Slept []time.Duration
}

func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.Slept = append(r.Slept, d)
	return ctx.Err()
}
