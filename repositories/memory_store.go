package repositories

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/HSouheill/barrim_notifier/models"
)

// MemoryStore keeps users and notifications in process memory.
// It backs STORE_DRIVER=memory and the service tests.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]*models.User
	notifications map[string]models.Notification
	batchSize     int
}

// NewMemoryStore creates an empty store. batchSize <= 0 means 500.
func NewMemoryStore(batchSize int) *MemoryStore {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &MemoryStore{
		users:         make(map[string]*models.User),
		notifications: make(map[string]models.Notification),
		batchSize:     batchSize,
	}
}

// PutUser inserts or replaces a user
func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.UnreadNotifications = slices.Clone(u.UnreadNotifications)
	s.users[u.ID] = &u
}

// PutNotification inserts or replaces a notification
func (s *MemoryStore) PutNotification(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
}

// Notification returns a stored notification by id
func (s *MemoryStore) Notification(id string) (models.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	return n, ok
}

// NotificationsFor returns every notification owned by userID, oldest first
func (s *MemoryStore) NotificationsFor(userID string) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownedLocked(userID, false)
}

// MarkRead flips a notification to read, as the app's "mark as read" action would
func (s *MemoryStore) MarkRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.notifications[id]; ok {
		n.Read = true
		s.notifications[id] = n
	}
}

func (s *MemoryStore) ownedLocked(userID string, unreadOnly bool) []models.Notification {
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	models.SortOldestFirst(out)
	return out
}

func (s *MemoryStore) snapshotUsers(filter func(*models.User) bool) []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if filter(u) {
			c := *u
			c.UnreadNotifications = slices.Clone(u.UnreadNotifications)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func usersSeq(ctx context.Context, users []models.User) iter.Seq2[models.User, error] {
	return func(yield func(models.User, error) bool) {
		for _, u := range users {
			if err := ctx.Err(); err != nil {
				yield(models.User{}, err)
				return
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) OptedInUsers(ctx context.Context) iter.Seq2[models.User, error] {
	return usersSeq(ctx, s.snapshotUsers(func(u *models.User) bool { return u.AllowNotifications }))
}

func (s *MemoryStore) AllUsers(ctx context.Context) iter.Seq2[models.User, error] {
	return usersSeq(ctx, s.snapshotUsers(func(*models.User) bool { return true }))
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	c.UnreadNotifications = slices.Clone(u.UnreadNotifications)
	return &c, nil
}

func (s *MemoryStore) AppendUnread(_ context.Context, userID string, ref models.NotificationRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.UnreadNotifications = models.AppendNotificationRef(u.UnreadNotifications, ref)
	return nil
}

func (s *MemoryStore) RemoveUnread(_ context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.UnreadNotifications = models.RemoveNotificationRef(u.UnreadNotifications, notificationID)
	return nil
}

func (s *MemoryStore) GetNotification(_ context.Context, userID, notificationID string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[notificationID]
	if !ok || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	return &n, nil
}

func (s *MemoryStore) CreateBatch(_ context.Context, notifications []models.Notification) ([]models.Notification, error) {
	if len(notifications) > s.batchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(notifications), s.batchSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created := make([]models.Notification, 0, len(notifications))
	for _, n := range notifications {
		if _, exists := s.notifications[n.ID]; exists {
			continue
		}
		s.notifications[n.ID] = n
		created = append(created, n)
	}
	return created, nil
}

func (s *MemoryStore) ListUnread(_ context.Context, userID string) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownedLocked(userID, true), nil
}

func (s *MemoryStore) MaxBatchSize() int {
	return s.batchSize
}
