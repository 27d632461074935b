package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/datallboy/blobsync/internal/domain"
)

// withRetry runs process for one block. With retries disabled the first
// error is final; otherwise transient transport failures are repeated with
// exponential backoff.
func (e *Engine) withRetry(ctx context.Context, r *run, b domain.Block, process blockFunc) error {
	if e.retries <= 0 {
		return process(ctx, r, b)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.retryDelay
	policy.MaxElapsedTime = 0 // bounded by the retry count instead

	attempt := 0
	op := func() error {
		attempt++
		err := process(ctx, r, b)
		if err == nil || (ctx.Err() == nil && retryable(err)) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		e.metrics.BlockRetried(string(r.mode))
		r.log.Warn("[Retry] Block #%d: attempt %d/%d failed, retrying in %s: %v",
			b.Index, attempt, e.retries+1, wait.Truncate(time.Millisecond), err)
	}

	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.retries)), ctx), notify)
}

// retryable reports whether err may go away on a second attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrChecksumMismatch) {
		return true
	}

	var te *domain.TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return false
}
