package services

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/rs/zerolog"

	"github.com/HSouheill/barrim_notifier/models"
	"github.com/HSouheill/barrim_notifier/repositories"
)

var errInjected = errors.New("injected failure")

// faultyStore wraps a MemoryStore and fails selected operations
type faultyStore struct {
	*repositories.MemoryStore

	mu sync.Mutex
	// failBatch fails the nth CreateBatch call (1-based); 0 disables
	failBatch   int
	batchCalls  int
	failAppend  map[string]bool
	failRemove  bool
	failGetUser bool
	failList    bool
	failUsers   bool
	// failRemoves fails that many RemoveUnread calls before delegating
	failRemoves int
	removeCalls int
	appends     []string

	// afterList runs once ListUnread has read the notifications
	afterList func()
	// beforeAppend runs ahead of every AppendUnread
	beforeAppend func(userID, notificationID string)
}

func newFaultyStore(batchSize int) *faultyStore {
	return &faultyStore{
		MemoryStore: repositories.NewMemoryStore(batchSize),
		failAppend:  make(map[string]bool),
	}
}

func (s *faultyStore) CreateBatch(ctx context.Context, ns []models.Notification) ([]models.Notification, error) {
	s.mu.Lock()
	s.batchCalls++
	fail := s.failBatch > 0 && s.batchCalls == s.failBatch
	s.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return s.MemoryStore.CreateBatch(ctx, ns)
}

func (s *faultyStore) AppendUnread(ctx context.Context, userID string, ref models.NotificationRef) error {
	if s.beforeAppend != nil {
		s.beforeAppend(userID, ref.ID)
	}
	s.mu.Lock()
	s.appends = append(s.appends, ref.ID)
	fail := s.failAppend[userID]
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.MemoryStore.AppendUnread(ctx, userID, ref)
}

func (s *faultyStore) RemoveUnread(ctx context.Context, userID, notificationID string) error {
	s.mu.Lock()
	s.removeCalls++
	fail := s.failRemove || s.removeCalls <= s.failRemoves
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.MemoryStore.RemoveUnread(ctx, userID, notificationID)
}

func (s *faultyStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if s.failGetUser {
		return nil, errInjected
	}
	return s.MemoryStore.GetUser(ctx, userID)
}

func (s *faultyStore) ListUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	if s.failList {
		return nil, errInjected
	}
	unread, err := s.MemoryStore.ListUnread(ctx, userID)
	if s.afterList != nil {
		s.afterList()
	}
	return unread, err
}

func (s *faultyStore) OptedInUsers(ctx context.Context) iter.Seq2[models.User, error] {
	if !s.failUsers {
		return s.MemoryStore.OptedInUsers(ctx)
	}
	inner := s.MemoryStore.OptedInUsers(ctx)
	return func(yield func(models.User, error) bool) {
		for u, err := range inner {
			if !yield(u, err) {
				return
			}
			// fail after the first user so a partial read is visible
			yield(models.User{}, errInjected)
			return
		}
	}
}

func (s *faultyStore) appendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appends)
}

// recordingObserver counts index change notifications per user
type recordingObserver struct {
	mu    sync.Mutex
	users map[string]int
}

func (o *recordingObserver) UnreadIndexChanged(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.users == nil {
		o.users = make(map[string]int)
	}
	o.users[userID]++
}

func (o *recordingObserver) count(userID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.users[userID]
}

// fakeDispatcher records sent payloads
type fakeDispatcher struct {
	mu   sync.Mutex
	sent []models.PushPayload
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, p models.PushPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, p)
	return d.err
}

func (d *fakeDispatcher) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

// memoryGuard behaves like the Redis guard without Redis
type memoryGuard struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released []string
}

func (g *memoryGuard) Acquire(_ context.Context, itemID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.held == nil {
		g.held = make(map[string]bool)
	}
	if g.held[itemID] {
		return false, nil
	}
	g.held[itemID] = true
	return true, nil
}

func (g *memoryGuard) Release(_ context.Context, itemID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, itemID)
	g.released = append(g.released, itemID)
	return nil
}

func seedUsers(s *faultyStore, users ...models.User) {
	for _, u := range users {
		s.PutUser(u)
	}
}

func optedIn(id string) models.User {
	return models.User{ID: id, AllowNotifications: true}
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func boolPtr(b bool) *bool {
	return &b
}
