package notify

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy decides how many times one recipient delivery is attempted.
type RetryPolicy interface {
	Do(ctx context.Context, attempt func() error) error
}

// NoRetry attempts each delivery exactly once.
type NoRetry struct{}

func (NoRetry) Do(_ context.Context, attempt func() error) error {
	return attempt()
}

// BoundedRetry retries transient failures with exponential backoff.
// Errors wrapping ErrPermanent stop immediately.
type BoundedRetry struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p BoundedRetry) Do(ctx context.Context, attempt func() error) error {
	initial := p.InitialInterval
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	maxInterval := p.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)

	op := func() error {
		err := attempt()
		if err != nil && errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx))
}

// RetryFromCount maps a configured retry count to a policy; zero disables retries.
func RetryFromCount(n int) RetryPolicy {
	if n <= 0 {
		return NoRetry{}
	}
	return BoundedRetry{MaxRetries: uint64(n)}
}
