package utils

import (
	"context"
	"time"
)

// BackoffManager manages exponential backoff between retries
type BackoffManager struct {
	currentInterval time.Duration
	maxInterval     time.Duration
	initialInterval time.Duration
}

// NewBackoffManager initializes a new BackoffManager with the given intervals.
// A max below the initial interval is raised to it.
func NewBackoffManager(initialInterval, maxInterval time.Duration) *BackoffManager {
	if initialInterval <= 0 {
		initialInterval = time.Second
	}
	if maxInterval < initialInterval {
		maxInterval = initialInterval
	}
	return &BackoffManager{
		currentInterval: initialInterval,
		maxInterval:     maxInterval,
		initialInterval: initialInterval,
	}
}

// GetInterval returns the current interval
func (b *BackoffManager) GetInterval() time.Duration {
	return b.currentInterval
}

// IncreaseInterval doubles the current interval up to maxInterval
func (b *BackoffManager) IncreaseInterval() {
	newInterval := b.currentInterval * 2
	if newInterval > b.maxInterval {
		newInterval = b.maxInterval
	}
	b.currentInterval = newInterval
}

// ResetInterval resets the interval back to the initial value
func (b *BackoffManager) ResetInterval() {
	b.currentInterval = b.initialInterval
}

// Wait sleeps for the current interval, then increases it. It returns early with
// the context error when ctx ends.
func (b *BackoffManager) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.currentInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		b.IncreaseInterval()
		return nil
	}
}
