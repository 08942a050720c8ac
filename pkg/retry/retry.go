// Package retry runs provider calls with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines how often and how fast a failed call is retried
type Policy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	// MaximumAttempts counts the first call; zero means retry until ctx is done
	MaximumAttempts int32
}

// Option represents a retry policy option
type Option func(*Policy)

// WithInitialInterval sets the delay before the first retry
func WithInitialInterval(interval time.Duration) Option {
	return func(p *Policy) { p.InitialInterval = interval }
}

// WithBackoffCoefficient sets the growth factor between retries
func WithBackoffCoefficient(coefficient float64) Option {
	return func(p *Policy) { p.BackoffCoefficient = coefficient }
}

// WithMaximumInterval caps the delay between retries
func WithMaximumInterval(interval time.Duration) Option {
	return func(p *Policy) { p.MaximumInterval = interval }
}

// WithMaxAttempts sets the total number of attempts
func WithMaxAttempts(attempts int32) Option {
	return func(p *Policy) { p.MaximumAttempts = attempts }
}

// NewPolicy returns a 1s/x2/100s policy with three attempts, adjusted by opts
func NewPolicy(opts ...Option) *Policy {
	policy := &Policy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    100 * time.Second,
		MaximumAttempts:    3,
	}
	for _, opt := range opts {
		opt(policy)
	}
	return policy
}

// Permanent wraps err so the executor gives up immediately
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Executor runs operations under a retry policy
type Executor struct {
	policy *Policy
}

// NewExecutor creates an executor for the given policy
func NewExecutor(policy *Policy) *Executor {
	if policy == nil {
		policy = NewPolicy()
	}
	return &Executor{policy: policy}
}

// Policy returns the policy the executor applies
func (e *Executor) Policy() *Policy {
	return e.policy
}

// Execute runs operation until it succeeds, returns a permanent error,
// the attempts are exhausted or ctx is done.
func (e *Executor) Execute(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.InitialInterval
	b.Multiplier = e.policy.BackoffCoefficient
	b.MaxInterval = e.policy.MaximumInterval
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if e.policy.MaximumAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(e.policy.MaximumAttempts-1))
	}

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
