// Package publish holds the outbound sinks computed summaries are fanned out to.
package publish

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/scoring"
)

// Sink is an outbound destination for summaries.
type Sink interface {
	Name() string
	Publish(ctx context.Context, b scoring.BlockSummaries) error
}

// Backoff bounds the retries of a Retrying sink.
type Backoff struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		MaxAttempts: 5,
	}
}

// Retrying retries a sink with exponential backoff until it succeeds, the attempts run out
// or ctx is done.
type Retrying struct {
	sink    Sink
	backoff Backoff
	log     *zap.Logger
}

func WithRetry(sink Sink, backoff Backoff, log *zap.Logger) *Retrying {
	if backoff.MaxAttempts <= 0 {
		backoff.MaxAttempts = 1
	}
	return &Retrying{sink: sink, backoff: backoff, log: log}
}

func (r *Retrying) Name() string { return r.sink.Name() }

func (r *Retrying) Publish(ctx context.Context, b scoring.BlockSummaries) error {
	var lastErr error

	for attempt := 1; attempt <= r.backoff.MaxAttempts; attempt++ {
		err := r.sink.Publish(ctx, b)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == r.backoff.MaxAttempts {
			break
		}

		delay := r.backoff.BaseDelay << (attempt - 1)
		if r.backoff.MaxDelay > 0 && delay > r.backoff.MaxDelay {
			delay = r.backoff.MaxDelay
		}
		r.log.Debug("publish retry", zap.String("sink", r.sink.Name()), zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("publish to %s canceled after %d attempts: %w", r.sink.Name(), attempt, lastErr)
		}
	}

	return fmt.Errorf("publish to %s: %w", r.sink.Name(), lastErr)
}
