package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/HSouheill/barrim_notifier/models"
	"github.com/HSouheill/barrim_notifier/repositories"
)

type repairStore interface {
	AllUsers(ctx context.Context) iter.Seq2[models.User, error]
	GetUser(ctx context.Context, userID string) (*models.User, error)
	AppendUnread(ctx context.Context, userID string, ref models.NotificationRef) error
	RemoveUnread(ctx context.Context, userID, notificationID string) error
	GetNotification(ctx context.Context, userID, notificationID string) (*models.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]models.Notification, error)
}

// RepairReport describes the repair of one user's unread index
type RepairReport struct {
	UserID  string `json:"userId"`
	Before  int    `json:"before"`
	After   int    `json:"after"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Changed bool   `json:"changed"`
}

// SweepReport summarizes a repair pass over every user
type SweepReport struct {
	Users    int      `json:"users"`
	Repaired int      `json:"repaired"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

// IndexRepairer rebuilds unread indexes from the notifications themselves, which are
// the source of truth. It heals drift left by failed appends or stale entries.
type IndexRepairer struct {
	store    repairStore
	observer IndexObserver
	log      zerolog.Logger
}

func NewIndexRepairer(store repairStore, observer IndexObserver, log zerolog.Logger) *IndexRepairer {
	return &IndexRepairer{
		store:    store,
		observer: observer,
		log:      log.With().Str("component", "repair").Logger(),
	}
}

// RepairUser brings userID's index in line with its unread notifications using the
// same atomic append and remove operations as the fan-out and the reconciler, so a
// read or an append that lands during the repair is never overwritten.
//
// The user is loaded before the notifications are listed. An entry present at load
// time whose notification is not unread at list time is stale and removed; entries
// appended later are not touched. Missing entries are appended oldest first.
func (r *IndexRepairer) RepairUser(ctx context.Context, userID string) (*RepairReport, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRepair, err)
	}
	unread, err := r.store.ListUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepair, err)
	}

	want := make([]models.NotificationRef, 0, len(unread))
	wantIDs := make(map[string]bool, len(unread))
	for _, n := range unread {
		if wantIDs[n.ID] {
			continue
		}
		wantIDs[n.ID] = true
		want = append(want, n.Ref())
	}

	have := make(map[string]int, len(user.UnreadNotifications))
	for _, ref := range user.UnreadNotifications {
		have[ref.ID]++
	}

	report := &RepairReport{UserID: userID, Before: len(user.UnreadNotifications), After: len(want)}
	fail := func(err error) (*RepairReport, error) {
		if report.Changed {
			notifyObserver(r.observer, userID)
		}
		return nil, fmt.Errorf("%w: %w", ErrRepair, err)
	}

	// stale entries go entirely; duplicated ones go and are appended again below
	for _, ref := range user.UnreadNotifications {
		count := have[ref.ID]
		if count <= 0 || (wantIDs[ref.ID] && count == 1) {
			continue
		}
		if err := r.store.RemoveUnread(ctx, userID, ref.ID); err != nil {
			return fail(err)
		}
		report.Changed = true
		if wantIDs[ref.ID] {
			report.Removed += count - 1
			have[ref.ID] = -1
		} else {
			report.Removed += count
			have[ref.ID] = 0
		}
	}

	for _, ref := range want {
		count := have[ref.ID]
		if count == 1 {
			continue
		}
		restored, err := r.restore(ctx, userID, ref)
		if restored || err != nil {
			report.Changed = true
		}
		if err != nil {
			return fail(err)
		}
		switch {
		case !restored:
			// read since it was listed
			report.After--
			if count == -1 {
				report.Removed++
			}
		case count == 0:
			report.Added++
		}
	}

	if !report.Changed {
		return report, nil
	}
	r.log.Info().
		Str("userId", userID).
		Int("added", report.Added).
		Int("removed", report.Removed).
		Msg("repaired unread index")
	notifyObserver(r.observer, userID)
	return report, nil
}

// restore appends ref unless its notification is read or gone. The read flag is
// checked again after the append: a read that lands before that check may have had
// its removal run before the append, so the entry is taken back out here. A read
// after the check is handled by the reconciler, which then finds the entry.
func (r *IndexRepairer) restore(ctx context.Context, userID string, ref models.NotificationRef) (bool, error) {
	unread, err := r.stillUnread(ctx, userID, ref.ID)
	if err != nil || !unread {
		return false, err
	}
	if err := r.store.AppendUnread(ctx, userID, ref); err != nil {
		return false, err
	}
	unread, err = r.stillUnread(ctx, userID, ref.ID)
	if err != nil {
		return true, err
	}
	if unread {
		return true, nil
	}
	if err := r.store.RemoveUnread(ctx, userID, ref.ID); err != nil {
		return true, err
	}
	return false, nil
}

func (r *IndexRepairer) stillUnread(ctx context.Context, userID, notificationID string) (bool, error) {
	n, err := r.store.GetNotification(ctx, userID, notificationID)
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !n.Read, nil
}

// RepairAll sweeps every user. Per-user failures are counted and the sweep goes on;
// only a failure to enumerate users is returned.
func (r *IndexRepairer) RepairAll(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}
	for u, err := range r.store.AllUsers(ctx) {
		if err != nil {
			return report, fmt.Errorf("%w: %w", ErrRepair, err)
		}
		report.Users++
		res, err := r.RepairUser(ctx, u.ID)
		if err != nil {
			r.log.Error().Err(err).Str("userId", u.ID).Msg("unread index repair failed")
			report.Failed++
			report.Failures = append(report.Failures, u.ID)
			continue
		}
		if res.Changed {
			report.Repaired++
		}
	}
	r.log.Info().
		Int("users", report.Users).
		Int("repaired", report.Repaired).
		Int("failed", report.Failed).
		Msg("unread index sweep complete")
	return report, nil
}

// Run sweeps every interval until ctx is done
func (r *IndexRepairer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RepairAll(ctx); err != nil {
				r.log.Error().Err(err).Msg("unread index sweep failed")
			}
		}
	}
}
