package resilience

import (
	"context"
	"time"
)

// PollConfig bounds how long Poll waits for a condition
type PollConfig struct {
	Interval    time.Duration // Delay between checks
	MaxAttempts int           // Maximum number of delays before giving up
}

// DefaultPollConfig waits up to one second in 100ms steps
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    100 * time.Millisecond,
		MaxAttempts: 10,
	}
}

// ReadyFunc reports whether the polled condition holds
type ReadyFunc func() bool

// Poll checks ready, sleeping Interval between checks, until it returns true,
// MaxAttempts delays have elapsed, stop is closed, or ctx is done.
// It never blocks indefinitely. The return value is the last result of ready;
// a false result is not an error, callers proceed with whatever is available.
func Poll(ctx context.Context, config PollConfig, stop <-chan struct{}, ready ReadyFunc) (bool, error) {
	for attempt := 0; ; attempt++ {
		if ready() {
			return true, nil
		}
		if attempt >= config.MaxAttempts {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-stop:
			return ready(), nil
		case <-time.After(config.Interval):
		}
	}
}

// Sleep waits for d or until ctx is done
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
