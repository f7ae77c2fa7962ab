package services

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/HSouheill/barrim_notifier/models"
)

// NotificationService wires the new-item pipeline and the read reconciler together
type NotificationService struct {
	selector     *RecipientSelector
	writer       *FanOutWriter
	reconciler   *ReadReconciler
	repairer     *IndexRepairer
	dispatcher   PushDispatcher
	guard        PushGuard
	users        unreadIndex
	fallbackLink string
	log          zerolog.Logger
}

// NotificationServiceDeps are the collaborators of a NotificationService
type NotificationServiceDeps struct {
	Selector     *RecipientSelector
	Writer       *FanOutWriter
	Reconciler   *ReadReconciler
	Repairer     *IndexRepairer
	Dispatcher   PushDispatcher
	Guard        PushGuard
	Users        unreadIndex
	FallbackLink string
}

func NewNotificationService(deps NotificationServiceDeps, log zerolog.Logger) *NotificationService {
	if deps.Guard == nil {
		deps.Guard = NopPushGuard{}
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NopDispatcher{Log: log}
	}
	return &NotificationService{
		selector:     deps.Selector,
		writer:       deps.Writer,
		reconciler:   deps.Reconciler,
		repairer:     deps.Repairer,
		dispatcher:   deps.Dispatcher,
		guard:        deps.Guard,
		users:        deps.Users,
		fallbackLink: deps.FallbackLink,
		log:          log.With().Str("component", "notifications").Logger(),
	}
}

// HandleItemCreated broadcasts the push and fans out notification records for item.
// The two run concurrently and are joined before returning; only the fan-out decides
// the result. A started run is not cancelled by its caller going away.
func (s *NotificationService) HandleItemCreated(ctx context.Context, item models.Item) (*FanOutResult, error) {
	ctx = context.WithoutCancel(ctx)

	var (
		g      errgroup.Group
		result *FanOutResult
		err    error
	)
	g.Go(func() error {
		s.dispatch(ctx, item)
		return nil
	})
	g.Go(func() error {
		result, err = s.fanOut(ctx, item)
		return nil
	})
	_ = g.Wait()
	return result, err
}

func (s *NotificationService) fanOut(ctx context.Context, item models.Item) (*FanOutResult, error) {
	users, err := s.selector.Snapshot(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("itemId", item.ID).Msg("recipient selection failed, nothing written")
		return nil, err
	}
	return s.writer.Write(ctx, item, users)
}

// dispatch sends the broadcast once per item. Failures are logged only.
func (s *NotificationService) dispatch(ctx context.Context, item models.Item) {
	log := s.log.With().Str("itemId", item.ID).Logger()

	ok, err := s.guard.Acquire(ctx, item.ID)
	if err != nil {
		log.Warn().Err(err).Msg("push guard unavailable, sending anyway")
		ok = true
	}
	if !ok {
		log.Info().Msg("push already sent for item, skipping")
		return
	}

	if err := s.dispatcher.Send(ctx, models.NewItemPush(item, s.fallbackLink)); err != nil {
		log.Error().Err(err).Msg("push dispatch failed")
		if err := s.guard.Release(ctx, item.ID); err != nil {
			log.Warn().Err(err).Msg("failed to release push guard")
		}
		return
	}
	log.Info().Msg("push dispatched")
}

// HandleNotificationChange runs the read reconciler for one change event
func (s *NotificationService) HandleNotificationChange(ctx context.Context, change models.NotificationChange) (ReconcileOutcome, error) {
	return s.reconciler.Reconcile(ctx, change)
}

// UnreadIndex returns the user's current unread index
func (s *NotificationService) UnreadIndex(ctx context.Context, userID string) ([]models.NotificationRef, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.UnreadNotifications == nil {
		return []models.NotificationRef{}, nil
	}
	return user.UnreadNotifications, nil
}

func (s *NotificationService) RepairUser(ctx context.Context, userID string) (*RepairReport, error) {
	return s.repairer.RepairUser(ctx, userID)
}

func (s *NotificationService) RepairAll(ctx context.Context) (*SweepReport, error) {
	return s.repairer.RepairAll(ctx)
}
