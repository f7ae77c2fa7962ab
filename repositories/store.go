package repositories

import (
	"context"
	"errors"
	"iter"

	"github.com/HSouheill/barrim_notifier/models"
)

var (
	// ErrUserNotFound is returned when a user document does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrNotificationNotFound is returned when a notification document does not exist
	ErrNotificationNotFound = errors.New("notification not found")
)

// UserStore reads users and mutates their unread index.
// AppendUnread and RemoveUnread must be atomic on the stored array so that concurrent
// fan-out appends and read removals never overwrite each other. The array is never
// written as a whole.
type UserStore interface {
	// OptedInUsers streams users with allowNotifications == true
	OptedInUsers(ctx context.Context) iter.Seq2[models.User, error]
	// AllUsers streams every user
	AllUsers(ctx context.Context) iter.Seq2[models.User, error]
	GetUser(ctx context.Context, userID string) (*models.User, error)
	AppendUnread(ctx context.Context, userID string, ref models.NotificationRef) error
	// RemoveUnread drops every entry whose id is notificationID. Removing an absent entry is a no-op.
	RemoveUnread(ctx context.Context, userID, notificationID string) error
}

// NotificationStore persists notification records
type NotificationStore interface {
	// CreateBatch commits notifications all-or-nothing and returns the ones that did not
	// already exist. Existing documents are left untouched.
	CreateBatch(ctx context.Context, notifications []models.Notification) ([]models.Notification, error)
	// GetNotification reads one of the user's notifications
	GetNotification(ctx context.Context, userID, notificationID string) (*models.Notification, error)
	// ListUnread returns the user's notifications whose read field is false or missing, oldest first
	ListUnread(ctx context.Context, userID string) ([]models.Notification, error)
	// MaxBatchSize is the largest slice CreateBatch accepts
	MaxBatchSize() int
}

// Store is the full persistence surface of the notifier
type Store interface {
	UserStore
	NotificationStore
}
