package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/HSouheill/barrim_notifier/models"
	"github.com/HSouheill/barrim_notifier/repositories"
)

// ReconcileOutcome says what a reconciliation did
type ReconcileOutcome string

const (
	// OutcomeIgnored: the change was not an unread -> read edge
	OutcomeIgnored ReconcileOutcome = "ignored"
	// OutcomeOrphaned: the owning user does not exist
	OutcomeOrphaned ReconcileOutcome = "orphaned"
	// OutcomeAlreadyAbsent: the index held no reference to the notification
	OutcomeAlreadyAbsent ReconcileOutcome = "already_absent"
	// OutcomeRemoved: the reference was removed from the index
	OutcomeRemoved ReconcileOutcome = "removed"
)

type unreadIndex interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	RemoveUnread(ctx context.Context, userID, notificationID string) error
}

// ReadReconciler removes a notification from its owner's unread index once it is read.
// It is safe to run more than once for the same event.
type ReadReconciler struct {
	users    unreadIndex
	observer IndexObserver
	log      zerolog.Logger
}

func NewReadReconciler(users unreadIndex, observer IndexObserver, log zerolog.Logger) *ReadReconciler {
	return &ReadReconciler{
		users:    users,
		observer: observer,
		log:      log.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile applies change to the owner's unread index. A missing owner is not an error.
// A failed load or write is logged and returned wrapped in ErrReconcile.
func (r *ReadReconciler) Reconcile(ctx context.Context, change models.NotificationChange) (ReconcileOutcome, error) {
	log := r.log.With().
		Str("userId", change.UserID).
		Str("notificationId", change.NotificationID).
		Logger()

	if !change.IsReadEdge() {
		log.Debug().Msg("not a read transition, ignoring")
		return OutcomeIgnored, nil
	}

	user, err := r.users.GetUser(ctx, change.UserID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		log.Warn().Msg("owner of read notification does not exist")
		return OutcomeOrphaned, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to load owner")
		return "", fmt.Errorf("%w: %w", ErrReconcile, err)
	}

	if !models.HasNotificationRef(user.UnreadNotifications, change.NotificationID) {
		log.Debug().Msg("reference already absent from unread index")
		return OutcomeAlreadyAbsent, nil
	}

	if err := r.users.RemoveUnread(ctx, change.UserID, change.NotificationID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			log.Warn().Msg("owner deleted during reconciliation")
			return OutcomeOrphaned, nil
		}
		log.Error().Err(err).Msg("failed to remove unread index reference")
		return "", fmt.Errorf("%w: %w", ErrReconcile, err)
	}

	log.Info().Msg("removed read notification from unread index")
	notifyObserver(r.observer, change.UserID)
	return OutcomeRemoved, nil
}
