package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/HSouheill/barrim_notifier/models"
)

func TestNotificationRefs(t *testing.T) {
	t.Parallel()

	raw := []interface{}{
		&firestore.DocumentRef{ID: "n1", Path: "projects/p/databases/(default)/documents/users/u1/notifications/n1"},
		"users/u1/notifications/legacy-string",
		(*firestore.DocumentRef)(nil),
		&firestore.DocumentRef{ID: "n2"},
	}

	got := notificationRefs("u1", raw)
	want := []models.NotificationRef{
		{ID: "n1", Path: "users/u1/notifications/n1"},
		{ID: "n2", Path: "users/u1/notifications/n2"},
	}
	if len(got) != len(want) {
		t.Fatalf("notificationRefs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ref[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	for _, raw := range []interface{}{nil, "not an array", []interface{}{}} {
		if refs := notificationRefs("u1", raw); len(refs) != 0 {
			t.Errorf("notificationRefs(%#v) = %v, want none", raw, refs)
		}
	}
}

func TestToCreate(t *testing.T) {
	t.Parallel()

	ns := []models.Notification{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "c"}}

	tests := []struct {
		name   string
		exists []bool
		want   []int
	}{
		{"all new, repeated id once", []bool{false, false, false, false}, []int{0, 1, 3}},
		{"existing documents skipped", []bool{true, false, true, false}, []int{1, 3}},
		{"replayed batch", []bool{true, true, true, true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := toCreate(ns, tt.exists)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("toCreate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnreadOldestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := unreadOldestFirst([]models.Notification{
		{ID: "late", CreatedAt: base.Add(time.Hour)},
		{ID: "read", Read: true, CreatedAt: base},
		{ID: "b", CreatedAt: base},
		{ID: "a", CreatedAt: base},
	})
	var ids []string
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	if fmt.Sprint(ids) != "[a b late]" {
		t.Errorf("unreadOldestFirst() ids = %v, want [a b late]", ids)
	}
}

// newEmulatorStore connects to the Firestore emulator, or skips the test without one
func newEmulatorStore(t *testing.T) *FirestoreStore {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "demo-notifier")
	if err != nil {
		t.Fatalf("firestore.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewFirestoreStore(client, 0)
}

func TestFirestoreStore_Emulator(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	userID := fmt.Sprintf("user-%d", time.Now().UnixNano())

	if _, err := s.userDoc(userID).Set(ctx, map[string]interface{}{"allowNotifications": true}); err != nil {
		t.Fatal(err)
	}
	// written by an older client: no read field
	if _, err := s.notificationDoc(userID, "legacy").Set(ctx, map[string]interface{}{
		"userId":    userID,
		"createdAt": time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	batch := []models.Notification{
		models.NewItemNotification(models.Item{ID: "i1"}, userID, "", now),
		models.NewItemNotification(models.Item{ID: "i2"}, userID, "", now.Add(time.Second)),
	}
	created, err := s.CreateBatch(ctx, batch)
	if err != nil || len(created) != 2 {
		t.Fatalf("CreateBatch() = %d created, %v", len(created), err)
	}
	created, err = s.CreateBatch(ctx, batch)
	if err != nil || len(created) != 0 {
		t.Fatalf("replayed CreateBatch() = %d created, %v, want 0", len(created), err)
	}

	for _, n := range batch {
		if err := s.AppendUnread(ctx, userID, n.Ref()); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendUnread(ctx, userID, batch[0].Ref()); err != nil {
		t.Fatal(err)
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(u.UnreadNotifications) != 2 || u.UnreadNotifications[0] != batch[0].Ref() {
		t.Errorf("index = %v", u.UnreadNotifications)
	}

	if err := s.RemoveUnread(ctx, userID, batch[0].ID); err != nil {
		t.Fatal(err)
	}
	if u, _ = s.GetUser(ctx, userID); len(u.UnreadNotifications) != 1 || u.UnreadNotifications[0].ID != batch[1].ID {
		t.Errorf("index after remove = %v", u.UnreadNotifications)
	}

	unread, err := s.ListUnread(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 3 || unread[0].ID != "legacy" {
		t.Errorf("ListUnread() = %v, want legacy first then the batch", unread)
	}

	n, err := s.GetNotification(ctx, userID, batch[1].ID)
	if err != nil || n.Read || n.ItemID != "i2" {
		t.Errorf("GetNotification() = %+v, %v", n, err)
	}
	if _, err := s.GetNotification(ctx, userID, "ghost"); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("missing notification: error = %v", err)
	}
	if _, err := s.GetUser(ctx, "ghost-"+userID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing user: error = %v", err)
	}
	if err := s.AppendUnread(ctx, "ghost-"+userID, batch[0].Ref()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("append to missing user: error = %v", err)
	}
}
