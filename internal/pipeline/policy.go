package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"hookforge/internal/domain"
)

const (
	maxTransientRetries = 3
	initialBackoff      = 2 * time.Second
	maxBackoffInterval  = 30 * time.Second
)

// withRetry runs fn under the stage retry policy: transient failures are
// retried with exponential backoff up to maxTransientRetries, each retry
// recorded as an informational event; permanent failures stop immediately.
func (r *Runner) withRetry(ctx context.Context, jobID string, stage domain.Stage, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.retryInitial
	bo.MaxInterval = maxBackoffInterval

	attempt := 0
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if domain.Classify(err) == domain.ClassPermanent {
			return backoff.Permanent(err)
		}
		attempt++
		if evErr := r.registry.AppendEvent(ctx, jobID, domain.JobStatus(stage),
			fmt.Sprintf("transient failure, retry %d/%d: %v", attempt, maxTransientRetries, err)); evErr != nil {
			r.logger.Error().Err(evErr).Msg("append retry event")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxTransientRetries), ctx))
}
