package services

import (
	"context"
	"errors"
	"testing"

	"github.com/HSouheill/barrim_notifier/models"
)

type serviceFixture struct {
	store      *faultyStore
	dispatcher *fakeDispatcher
	guard      *memoryGuard
	svc        *NotificationService
}

func newServiceFixture(batchSize int) *serviceFixture {
	f := &serviceFixture{
		store:      newFaultyStore(batchSize),
		dispatcher: &fakeDispatcher{},
		guard:      &memoryGuard{},
	}
	log := nopLogger()
	f.svc = NewNotificationService(NotificationServiceDeps{
		Selector:   NewRecipientSelector(f.store),
		Writer:     NewFanOutWriter(f.store, f.store, FanOutOptions{Concurrency: 2}, log),
		Reconciler: NewReadReconciler(f.store, nil, log),
		Repairer:   NewIndexRepairer(f.store, nil, log),
		Dispatcher: f.dispatcher,
		Guard:      f.guard,
		Users:      f.store,
	}, log)
	return f
}

func TestNotificationService_HandleItemCreated(t *testing.T) {
	t.Parallel()

	t.Run("only opted-in users receive notifications", func(t *testing.T) {
		t.Parallel()

		f := newServiceFixture(500)
		f.store.PutUser(optedIn("u1"))
		f.store.PutUser(models.User{ID: "u2", AllowNotifications: false})
		f.store.PutUser(optedIn("u3"))

		item := models.Item{ID: "item-1", Name: "Blue Pens", URL: "https://shop.example.com/blue-pens"}
		result, err := f.svc.HandleItemCreated(context.Background(), item)
		if err != nil {
			t.Fatalf("HandleItemCreated() error = %v", err)
		}
		if result.Recipients != 2 || result.Created != 2 {
			t.Errorf("result = %+v", result)
		}
		if got := f.store.NotificationsFor("u2"); len(got) != 0 {
			t.Errorf("opted-out user got %d notifications", len(got))
		}

		if f.dispatcher.calls() != 1 {
			t.Fatalf("dispatch calls = %d, want 1", f.dispatcher.calls())
		}
		p := f.dispatcher.sent[0]
		if p.Title != "New Product Alert!" || p.Body != "Blue Pens has been added to the store!" {
			t.Errorf("payload = %+v", p)
		}
		if p.WebURL != "https://shop.example.com/blue-pens" || p.DeepLink != "" {
			t.Errorf("payload links = %q / %q", p.WebURL, p.DeepLink)
		}
	})

	t.Run("dispatch failure does not affect fan-out", func(t *testing.T) {
		t.Parallel()

		f := newServiceFixture(500)
		f.store.PutUser(optedIn("u1"))
		f.dispatcher.err = errors.New("provider down")

		result, err := f.svc.HandleItemCreated(context.Background(), models.Item{ID: "item-2"})
		if err != nil {
			t.Fatalf("HandleItemCreated() error = %v", err)
		}
		if result.Created != 1 {
			t.Errorf("Created = %d, want 1", result.Created)
		}
		if len(f.guard.released) != 1 || f.guard.released[0] != "item-2" {
			t.Errorf("released = %v, want guard released after failed dispatch", f.guard.released)
		}
	})

	t.Run("redelivered event sends one push and no duplicates", func(t *testing.T) {
		t.Parallel()

		f := newServiceFixture(500)
		f.store.PutUser(optedIn("u1"))
		item := models.Item{ID: "item-3", Path: "/products/3"}

		for i := 0; i < 2; i++ {
			if _, err := f.svc.HandleItemCreated(context.Background(), item); err != nil {
				t.Fatal(err)
			}
		}
		if f.dispatcher.calls() != 1 {
			t.Errorf("dispatch calls = %d, want 1", f.dispatcher.calls())
		}
		if p := f.dispatcher.sent[0]; p.DeepLink != "/products/3" || p.WebURL != "" {
			t.Errorf("payload links = %q / %q", p.WebURL, p.DeepLink)
		}
		if n := len(f.store.NotificationsFor("u1")); n != 1 {
			t.Errorf("notifications = %d, want 1", n)
		}
	})

	t.Run("unavailable guard still sends", func(t *testing.T) {
		t.Parallel()

		f := newServiceFixture(500)
		f.guard.err = errors.New("redis down")

		if _, err := f.svc.HandleItemCreated(context.Background(), models.Item{ID: "item-4"}); err != nil {
			t.Fatal(err)
		}
		if f.dispatcher.calls() != 1 {
			t.Errorf("dispatch calls = %d, want 1", f.dispatcher.calls())
		}
	})

	t.Run("selection failure writes nothing", func(t *testing.T) {
		t.Parallel()

		f := newServiceFixture(500)
		f.store.PutUser(optedIn("u1"))
		f.store.PutUser(optedIn("u2"))
		f.store.failUsers = true

		_, err := f.svc.HandleItemCreated(context.Background(), models.Item{ID: "item-5"})
		if !errors.Is(err, ErrSelectRecipients) {
			t.Fatalf("error = %v, want ErrSelectRecipients", err)
		}
		if f.store.batchCalls != 0 {
			t.Errorf("CreateBatch calls = %d, want 0", f.store.batchCalls)
		}
		if f.dispatcher.calls() != 1 {
			t.Errorf("dispatch calls = %d, push is independent of selection", f.dispatcher.calls())
		}
	})

	t.Run("cancelled caller does not stop a started run", func(t *testing.T) {
		t.Parallel()

		f := newServiceFixture(500)
		f.store.PutUser(optedIn("u1"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := f.svc.HandleItemCreated(ctx, models.Item{ID: "item-6"})
		if err != nil {
			t.Fatalf("HandleItemCreated() error = %v", err)
		}
		if result.Created != 1 {
			t.Errorf("Created = %d, want 1", result.Created)
		}
	})
}

func TestNotificationService_ReadFlow(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(500)
	f.store.PutUser(optedIn("u1"))
	ctx := context.Background()

	if _, err := f.svc.HandleItemCreated(ctx, models.Item{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.HandleItemCreated(ctx, models.Item{ID: "b"}); err != nil {
		t.Fatal(err)
	}
	refs, err := f.svc.UnreadIndex(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("unread = %v, want 2 entries", refs)
	}

	readID := models.NotificationID("a", "u1")
	f.store.MarkRead(readID)
	outcome, err := f.svc.HandleNotificationChange(ctx, readChange("u1", readID, boolPtr(false), boolPtr(true)))
	if err != nil || outcome != OutcomeRemoved {
		t.Fatalf("HandleNotificationChange() = %q, %v", outcome, err)
	}

	refs, _ = f.svc.UnreadIndex(ctx, "u1")
	if len(refs) != 1 || refs[0].ID != models.NotificationID("b", "u1") {
		t.Errorf("unread = %v, want only item b", refs)
	}
}

func TestNotificationService_UnreadIndexEmpty(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(500)
	f.store.PutUser(optedIn("u1"))

	refs, err := f.svc.UnreadIndex(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if refs == nil || len(refs) != 0 {
		t.Errorf("UnreadIndex() = %#v, want empty non-nil slice", refs)
	}
}
