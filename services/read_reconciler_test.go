package services

import (
	"context"
	"errors"
	"testing"

	"github.com/HSouheill/barrim_notifier/models"
)

func refFor(userID, notificationID string) models.NotificationRef {
	return models.NotificationRef{ID: notificationID, Path: models.NotificationPath(userID, notificationID)}
}

func readChange(userID, notificationID string, before, after *bool) models.NotificationChange {
	return models.NotificationChange{
		UserID:         userID,
		NotificationID: notificationID,
		Before:         &models.NotificationSnapshot{Read: before},
		After:          &models.NotificationSnapshot{Read: after},
	}
}

func TestReadReconciler_Reconcile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		index       []models.NotificationRef
		change      models.NotificationChange
		want        ReconcileOutcome
		wantIndex   []string
		wantChanged int
	}{
		{
			name:        "unread to read removes the reference",
			index:       []models.NotificationRef{refFor("u1", "n1"), refFor("u1", "n2")},
			change:      readChange("u1", "n1", boolPtr(false), boolPtr(true)),
			want:        OutcomeRemoved,
			wantIndex:   []string{"n2"},
			wantChanged: 1,
		},
		{
			name:        "absent read field counts as unread",
			index:       []models.NotificationRef{refFor("u1", "n1")},
			change:      readChange("u1", "n1", nil, boolPtr(true)),
			want:        OutcomeRemoved,
			wantIndex:   []string{},
			wantChanged: 1,
		},
		{
			name:        "duplicate references are all removed",
			index:       []models.NotificationRef{refFor("u1", "n1"), refFor("u1", "n2"), refFor("u1", "n1")},
			change:      readChange("u1", "n1", boolPtr(false), boolPtr(true)),
			want:        OutcomeRemoved,
			wantIndex:   []string{"n2"},
			wantChanged: 1,
		},
		{
			name:      "reference already absent",
			index:     []models.NotificationRef{refFor("u1", "n2")},
			change:    readChange("u1", "n1", boolPtr(false), boolPtr(true)),
			want:      OutcomeAlreadyAbsent,
			wantIndex: []string{"n2"},
		},
		{
			name:      "read to read is ignored",
			index:     []models.NotificationRef{refFor("u1", "n1")},
			change:    readChange("u1", "n1", boolPtr(true), boolPtr(true)),
			want:      OutcomeIgnored,
			wantIndex: []string{"n1"},
		},
		{
			name:      "read to unread is ignored",
			index:     []models.NotificationRef{refFor("u1", "n1")},
			change:    readChange("u1", "n1", boolPtr(true), boolPtr(false)),
			want:      OutcomeIgnored,
			wantIndex: []string{"n1"},
		},
		{
			name:      "unrelated update is ignored",
			index:     []models.NotificationRef{refFor("u1", "n1")},
			change:    readChange("u1", "n1", boolPtr(false), boolPtr(false)),
			want:      OutcomeIgnored,
			wantIndex: []string{"n1"},
		},
		{
			name:      "missing after snapshot is ignored",
			index:     []models.NotificationRef{refFor("u1", "n1")},
			change:    models.NotificationChange{UserID: "u1", NotificationID: "n1", Before: &models.NotificationSnapshot{}},
			want:      OutcomeIgnored,
			wantIndex: []string{"n1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFaultyStore(500)
			store.PutUser(models.User{ID: "u1", AllowNotifications: true, UnreadNotifications: tt.index})
			obs := &recordingObserver{}
			r := NewReadReconciler(store, obs, nopLogger())

			got, err := r.Reconcile(context.Background(), tt.change)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Reconcile() = %q, want %q", got, tt.want)
			}

			u, _ := store.GetUser(context.Background(), "u1")
			ids := make([]string, 0, len(u.UnreadNotifications))
			for _, ref := range u.UnreadNotifications {
				ids = append(ids, ref.ID)
			}
			if len(ids) != len(tt.wantIndex) {
				t.Fatalf("index = %v, want %v", ids, tt.wantIndex)
			}
			for i := range ids {
				if ids[i] != tt.wantIndex[i] {
					t.Errorf("index = %v, want %v", ids, tt.wantIndex)
					break
				}
			}
			if obs.count("u1") != tt.wantChanged {
				t.Errorf("observer calls = %d, want %d", obs.count("u1"), tt.wantChanged)
			}
		})
	}
}

func TestReadReconciler_Failures(t *testing.T) {
	t.Parallel()

	t.Run("missing owner is orphaned", func(t *testing.T) {
		t.Parallel()

		r := NewReadReconciler(newFaultyStore(500), nil, nopLogger())
		got, err := r.Reconcile(context.Background(), readChange("ghost", "n1", boolPtr(false), boolPtr(true)))
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if got != OutcomeOrphaned {
			t.Errorf("Reconcile() = %q, want %q", got, OutcomeOrphaned)
		}
	})

	t.Run("write failure is returned", func(t *testing.T) {
		t.Parallel()

		store := newFaultyStore(500)
		store.PutUser(models.User{ID: "u1", UnreadNotifications: []models.NotificationRef{refFor("u1", "n1")}})
		store.failRemove = true
		r := NewReadReconciler(store, nil, nopLogger())

		_, err := r.Reconcile(context.Background(), readChange("u1", "n1", boolPtr(false), boolPtr(true)))
		if !errors.Is(err, ErrReconcile) || !errors.Is(err, errInjected) {
			t.Fatalf("error = %v, want ErrReconcile wrapping the store error", err)
		}

		// redelivery after the store recovers
		store.failRemove = false
		got, err := r.Reconcile(context.Background(), readChange("u1", "n1", boolPtr(false), boolPtr(true)))
		if err != nil || got != OutcomeRemoved {
			t.Fatalf("retry = %q, %v", got, err)
		}
		got, err = r.Reconcile(context.Background(), readChange("u1", "n1", boolPtr(false), boolPtr(true)))
		if err != nil || got != OutcomeAlreadyAbsent {
			t.Errorf("second retry = %q, %v, want already_absent", got, err)
		}
	})

	t.Run("load failure is returned", func(t *testing.T) {
		t.Parallel()

		store := newFaultyStore(500)
		store.failGetUser = true
		r := NewReadReconciler(store, nil, nopLogger())

		if _, err := r.Reconcile(context.Background(), readChange("u1", "n1", nil, boolPtr(true))); !errors.Is(err, ErrReconcile) {
			t.Errorf("error = %v, want ErrReconcile", err)
		}
	})
}
