package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/HSouheill/barrim_notifier/models"
	"github.com/HSouheill/barrim_notifier/repositories"
)

type unreadAppender interface {
	AppendUnread(ctx context.Context, userID string, ref models.NotificationRef) error
}

// FanOutResult summarizes one fan-out run
type FanOutResult struct {
	Recipients    int            `json:"recipients"`
	Batches       int            `json:"batches"`
	Created       int            `json:"created"`
	AlreadyExists int            `json:"alreadyExists"`
	IndexUpdated  int            `json:"indexUpdated"`
	IndexFailures []IndexFailure `json:"indexFailures,omitempty"`
}

// IndexFailure records a notification whose unread index reference did not land
type IndexFailure struct {
	UserID         string `json:"userId"`
	NotificationID string `json:"notificationId"`
	Error          string `json:"error"`
}

// FanOutWriter creates one notification per recipient and appends it to the
// recipient's unread index.
//
// Notifications are committed in chunks of the store's batch limit, each chunk all-or-nothing.
// Index appends for a chunk start only after it commits and run concurrently; they are
// not part of the commit, so a notification can briefly exist without its index entry.
type FanOutWriter struct {
	notifications repositories.NotificationStore
	index         unreadAppender
	observer      IndexObserver
	fallbackLink  string
	concurrency   int
	now           func() time.Time
	log           zerolog.Logger
}

// FanOutOptions tunes a FanOutWriter
type FanOutOptions struct {
	FallbackLink string
	// Concurrency bounds in-flight index appends; <= 0 means 32
	Concurrency int
	Observer    IndexObserver
	Now         func() time.Time
}

func NewFanOutWriter(notifications repositories.NotificationStore, index unreadAppender, opts FanOutOptions, log zerolog.Logger) *FanOutWriter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 32
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &FanOutWriter{
		notifications: notifications,
		index:         index,
		observer:      opts.Observer,
		fallbackLink:  opts.FallbackLink,
		concurrency:   opts.Concurrency,
		now:           opts.Now,
		log:           log.With().Str("component", "fanout").Logger(),
	}
}

// Write fans item out to users. A failed chunk commit stops the run with ErrBatchCommit
// after the appends of earlier chunks have finished. Failed appends are reported in the
// result, not as an error.
func (w *FanOutWriter) Write(ctx context.Context, item models.Item, users []models.User) (*FanOutResult, error) {
	result := &FanOutResult{Recipients: len(users)}
	if len(users) == 0 {
		w.log.Info().Str("itemId", item.ID).Msg("no eligible recipients")
		return result, nil
	}

	size := w.notifications.MaxBatchSize()
	if size <= 0 {
		size = len(users)
	}
	createdAt := w.now().UTC()

	var (
		appends  errgroup.Group
		mu       sync.Mutex
		updated  int
		failures []IndexFailure
	)
	appends.SetLimit(w.concurrency)

	finish := func() {
		_ = appends.Wait()
		sort.Slice(failures, func(i, j int) bool { return failures[i].UserID < failures[j].UserID })
		result.IndexUpdated = updated
		result.IndexFailures = failures
	}

	for start := 0; start < len(users); start += size {
		end := min(start+size, len(users))
		batch := make([]models.Notification, 0, end-start)
		for _, u := range users[start:end] {
			batch = append(batch, models.NewItemNotification(item, u.ID, w.fallbackLink, createdAt))
		}

		created, err := w.notifications.CreateBatch(ctx, batch)
		if err != nil {
			finish()
			w.log.Error().Err(err).
				Str("itemId", item.ID).
				Int("batch", result.Batches+1).
				Int("size", len(batch)).
				Msg("notification batch commit failed")
			return result, fmt.Errorf("%w: batch %d: %w", ErrBatchCommit, result.Batches+1, err)
		}
		result.Batches++
		result.Created += len(created)
		result.AlreadyExists += len(batch) - len(created)

		for _, n := range created {
			appends.Go(func() error {
				err := w.index.AppendUnread(ctx, n.UserID, n.Ref())
				if err != nil {
					w.log.Error().Err(err).
						Str("userId", n.UserID).
						Str("notificationId", n.ID).
						Msg("failed to append unread index reference")
					mu.Lock()
					failures = append(failures, IndexFailure{UserID: n.UserID, NotificationID: n.ID, Error: err.Error()})
					mu.Unlock()
					return nil
				}
				mu.Lock()
				updated++
				mu.Unlock()
				notifyObserver(w.observer, n.UserID)
				return nil
			})
		}
	}

	finish()
	w.log.Info().
		Str("itemId", item.ID).
		Int("recipients", result.Recipients).
		Int("created", result.Created).
		Int("alreadyExists", result.AlreadyExists).
		Int("indexFailures", len(result.IndexFailures)).
		Msg("fan-out complete")
	return result, nil
}
