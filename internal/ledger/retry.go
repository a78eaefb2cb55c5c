package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retryer wraps mutating calls (and the listing/metadata reads the
// scanner depends on) in bounded exponential-backoff retry. Each call
// gets its own fresh attempt budget; one logical append can therefore
// issue far more than Attempts total retried calls across
// scan+dedupe+write+format+color.
type Retryer struct {
	Attempts     int
	InitialDelay time.Duration
	Logger       *zap.Logger

	// Sleep is injectable for deterministic backoff tests; nil means
	// time.Sleep.
	Sleep func(time.Duration)
}

// NewRetryer builds a Retryer with the configured budget.
func NewRetryer(attempts int, initialDelay time.Duration, logger *zap.Logger) *Retryer {
	if attempts < 1 {
		attempts = 1
	}
	return &Retryer{
		Attempts:     attempts,
		InitialDelay: initialDelay,
		Logger:       logger,
	}
}

// Do runs op up to Attempts times, doubling the delay after each failed
// attempt (1s, 2s, 4s, ...). The final error is returned unmodified.
func (r *Retryer) Do(ctx context.Context, name string, op func() error) error {
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	delay := r.InitialDelay
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = op(); err == nil {
			return nil
		}
		if attempt == r.Attempts {
			break
		}
		r.Logger.Warn("Operation failed, retrying...",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.Attempts),
			zap.Duration("retry_after", delay),
			zap.Error(err),
		)
		sleep(delay)
		delay *= 2
	}
	return err
}
