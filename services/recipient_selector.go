package services

import (
	"context"
	"fmt"
	"iter"

	"github.com/HSouheill/barrim_notifier/models"
)

type optedInSource interface {
	OptedInUsers(ctx context.Context) iter.Seq2[models.User, error]
}

// RecipientSelector finds the users a new item notification goes to
type RecipientSelector struct {
	users optedInSource
}

func NewRecipientSelector(users optedInSource) *RecipientSelector {
	return &RecipientSelector{users: users}
}

// Select lazily streams users with allowNotifications == true
func (s *RecipientSelector) Select(ctx context.Context) iter.Seq2[models.User, error] {
	return func(yield func(models.User, error) bool) {
		for u, err := range s.users.OptedInUsers(ctx) {
			if err != nil {
				yield(models.User{}, err)
				return
			}
			if !u.AllowNotifications {
				continue
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}

// Snapshot drains Select into a point-in-time list without duplicate ids.
// Any query error fails the whole snapshot.
func (s *RecipientSelector) Snapshot(ctx context.Context) ([]models.User, error) {
	var users []models.User
	seen := make(map[string]bool)
	for u, err := range s.Select(ctx) {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSelectRecipients, err)
		}
		if u.ID == "" || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		users = append(users, u)
	}
	return users, nil
}
