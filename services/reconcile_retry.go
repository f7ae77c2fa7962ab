package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	gax "github.com/googleapis/gax-go/v2"

	"github.com/HSouheill/barrim_notifier/models"
)

// RetryPolicy bounds the retries of a reconciliation nobody will redeliver
type RetryPolicy struct {
	Attempts int
	Backoff  gax.Backoff
}

// DefaultRetryPolicy tries five times over roughly fifteen seconds
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 5,
		Backoff:  gax.Backoff{Initial: 500 * time.Millisecond, Max: 8 * time.Second, Multiplier: 2},
	}
}

// ReconcileWithRetry runs the reconciler for change and retries ErrReconcile failures
// with backoff. It is meant for sources such as the MongoDB change stream that move
// past an event whether or not it was handled.
func (s *NotificationService) ReconcileWithRetry(ctx context.Context, change models.NotificationChange, policy RetryPolicy) (ReconcileOutcome, error) {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	bo := policy.Backoff
	log := s.log.With().
		Str("userId", change.UserID).
		Str("notificationId", change.NotificationID).
		Logger()

	for attempt := 1; ; attempt++ {
		outcome, err := s.reconciler.Reconcile(ctx, change)
		if err == nil || !errors.Is(err, ErrReconcile) || attempt >= policy.Attempts {
			return outcome, err
		}
		pause := bo.Pause()
		log.Warn().Err(err).Int("attempt", attempt).Dur("retryIn", pause).Msg("reconciliation failed, retrying")
		if err := gax.Sleep(ctx, pause); err != nil {
			return "", fmt.Errorf("%w: %w", ErrReconcile, err)
		}
	}
}
