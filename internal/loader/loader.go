package loader

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/reelroll/reelroll/internal/video"
)

// ErrCanceled is returned for a sequence whose context ended before it
// reached Success or Failed.
var ErrCanceled = errors.New("load canceled")

type Fetcher interface {
	Fetch(ctx context.Context) (video.Descriptor, error)
}

// FetcherFunc adapts a plain function, such as video.Source.Random, to Fetcher.
type FetcherFunc func(ctx context.Context) (video.Descriptor, error)

func (f FetcherFunc) Fetch(ctx context.Context) (video.Descriptor, error) {
	return f(ctx)
}

// Result is the outcome of one sequence. Exactly one of Video or Err is
// meaningful: Err is nil on success.
type Result struct {
	Video    video.Descriptor
	Err      error
	Attempts int
}

type Loader struct {
	fetcher Fetcher
	policy  Policy
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(fetcher Fetcher, policy Policy) *Loader {
	return &Loader{
		fetcher: fetcher,
		policy:  policy,
		sleep:   sleepContext,
	}
}

func (l *Loader) Policy() Policy {
	return l.policy
}

// Run performs one load sequence and reports every state change to observe,
// starting with Loading and ending with Success or Failed. A canceled
// sequence stops publishing and returns ErrCanceled.
func (l *Loader) Run(ctx context.Context, observe func(State)) Result {
	if observe == nil {
		observe = func(State) {}
	}

	observe(Loading())

	retries := 0
	for attempt := 1; ; attempt++ {
		v, err := l.fetcher.Fetch(ctx)
		if ctx.Err() != nil {
			return Result{Err: ErrCanceled, Attempts: attempt}
		}
		if err == nil {
			observe(Succeeded(v))
			return Result{Video: v, Attempts: attempt}
		}

		slog.Warn("random video fetch failed", "attempt", attempt, "error", err)
		retries++

		if retries > l.policy.MaxRetries {
			observe(Failed(err))
			return Result{Err: err, Attempts: attempt}
		}

		slog.Info("retrying random video fetch", "retry", retries, "max_retries", l.policy.MaxRetries)
		observe(Retrying(retries, l.policy.Attempts(), err))

		if err := l.sleep(ctx, l.policy.Delay); err != nil {
			return Result{Err: ErrCanceled, Attempts: attempt}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
