package worker

import (
	"errors"
	"time"
)

// Terminal pipeline failures. Jobs failing with one of these are never
// retried: retrying cannot change the outcome.
var (
	// ErrNoEligibleFiles means the change set yielded nothing to analyze.
	ErrNoEligibleFiles = errors.New("no reviewable files found in pull request")
	// ErrAnalyzerNotConfigured means no analysis service is configured.
	ErrAnalyzerNotConfigured = errors.New("analysis service not configured")
)

// RetryPolicy decides what happens after a failed job attempt. It is
// deliberately decoupled from the queue transport: the worker consults
// it and re-enqueues the same job itself.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy retries transient failures twice, five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Delay:      5 * time.Second,
	}
}

// IsTerminal reports whether a failure should not be retried.
func (p RetryPolicy) IsTerminal(err error) bool {
	return errors.Is(err, ErrNoEligibleFiles) || errors.Is(err, ErrAnalyzerNotConfigured)
}

// ShouldRetry reports whether another attempt should be scheduled for a
// job that has already been retried retryCount times.
func (p RetryPolicy) ShouldRetry(err error, retryCount int) bool {
	if err == nil || p.IsTerminal(err) {
		return false
	}
	return retryCount < p.MaxRetries
}
