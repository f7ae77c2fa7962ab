package repositories

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/HSouheill/barrim_notifier/models"
)

// firestoreMaxWrites is the write limit of a single Firestore transaction
const firestoreMaxWrites = 500

// FirestoreStore keeps notifications in users/{uid}/notifications/{nid} and the
// unread index as an array of document references on users/{uid}.
type FirestoreStore struct {
	client    *firestore.Client
	batchSize int
}

// NewFirestoreStore creates a store on client. batchSize is capped at 500.
func NewFirestoreStore(client *firestore.Client, batchSize int) *FirestoreStore {
	if batchSize <= 0 || batchSize > firestoreMaxWrites {
		batchSize = firestoreMaxWrites
	}
	return &FirestoreStore{client: client, batchSize: batchSize}
}

func (s *FirestoreStore) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

func (s *FirestoreStore) notificationDoc(userID, notificationID string) *firestore.DocumentRef {
	return s.userDoc(userID).Collection(notificationsCollection).Doc(notificationID)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// decodeUser reads a user snapshot, turning stored document references into NotificationRefs
func decodeUser(doc *firestore.DocumentSnapshot) (models.User, error) {
	var u models.User
	if err := doc.DataTo(&u); err != nil {
		return models.User{}, fmt.Errorf("failed to decode user %s: %w", doc.Ref.ID, err)
	}
	u.ID = doc.Ref.ID
	u.UnreadNotifications = notificationRefs(u.ID, doc.Data()["unreadNotifications"])
	return u, nil
}

// notificationRefs converts the stored unreadNotifications array. Entries that are not
// document references are skipped.
func notificationRefs(userID string, raw interface{}) []models.NotificationRef {
	values, _ := raw.([]interface{})
	var refs []models.NotificationRef
	for _, v := range values {
		ref, ok := v.(*firestore.DocumentRef)
		if !ok || ref == nil || ref.ID == "" {
			continue
		}
		refs = append(refs, models.NotificationRef{
			ID:   ref.ID,
			Path: models.NotificationPath(userID, ref.ID),
		})
	}
	return refs
}

func streamDocuments(it *firestore.DocumentIterator) iter.Seq2[models.User, error] {
	return func(yield func(models.User, error) bool) {
		defer it.Stop()
		for {
			doc, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(models.User{}, fmt.Errorf("failed to query users: %w", err))
				return
			}
			u, err := decodeUser(doc)
			if !yield(u, err) || err != nil {
				return
			}
		}
	}
}

func (s *FirestoreStore) OptedInUsers(ctx context.Context) iter.Seq2[models.User, error] {
	return func(yield func(models.User, error) bool) {
		it := s.client.Collection(usersCollection).Where("allowNotifications", "==", true).Documents(ctx)
		streamDocuments(it)(yield)
	}
}

func (s *FirestoreStore) AllUsers(ctx context.Context) iter.Seq2[models.User, error] {
	return func(yield func(models.User, error) bool) {
		streamDocuments(s.client.Collection(usersCollection).Documents(ctx))(yield)
	}
}

func (s *FirestoreStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	doc, err := s.userDoc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	u, err := decodeUser(doc)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *FirestoreStore) updateUnread(ctx context.Context, userID string, value interface{}) error {
	_, err := s.userDoc(userID).Update(ctx, []firestore.Update{{Path: "unreadNotifications", Value: value}})
	if isNotFound(err) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update unread index of %s: %w", userID, err)
	}
	return nil
}

func (s *FirestoreStore) AppendUnread(ctx context.Context, userID string, ref models.NotificationRef) error {
	return s.updateUnread(ctx, userID, firestore.ArrayUnion(s.notificationDoc(userID, ref.ID)))
}

func (s *FirestoreStore) RemoveUnread(ctx context.Context, userID, notificationID string) error {
	return s.updateUnread(ctx, userID, firestore.ArrayRemove(s.notificationDoc(userID, notificationID)))
}

func (s *FirestoreStore) GetNotification(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	doc, err := s.notificationDoc(userID, notificationID).Get(ctx)
	if isNotFound(err) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification %s: %w", notificationID, err)
	}
	return decodeNotification(doc)
}

func decodeNotification(doc *firestore.DocumentSnapshot) (*models.Notification, error) {
	var n models.Notification
	if err := doc.DataTo(&n); err != nil {
		return nil, fmt.Errorf("failed to decode notification %s: %w", doc.Ref.ID, err)
	}
	n.ID = doc.Ref.ID
	return &n, nil
}

// toCreate returns the indexes of notifications that do not exist yet. exists is
// parallel to notifications; a repeated id within the batch is created once.
func toCreate(notifications []models.Notification, exists []bool) []int {
	seen := make(map[string]bool, len(notifications))
	var out []int
	for i, n := range notifications {
		if exists[i] || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, i)
	}
	return out
}

// unreadOldestFirst keeps the notifications that are not read. A document without a
// read field decodes as unread.
func unreadOldestFirst(ns []models.Notification) []models.Notification {
	out := make([]models.Notification, 0, len(ns))
	for _, n := range ns {
		if !n.Read {
			out = append(out, n)
		}
	}
	models.SortOldestFirst(out)
	return out
}

// CreateBatch creates the missing notifications in one transaction. Documents that
// already exist are read inside the same transaction and skipped.
func (s *FirestoreStore) CreateBatch(ctx context.Context, notifications []models.Notification) ([]models.Notification, error) {
	if len(notifications) == 0 {
		return nil, nil
	}
	if len(notifications) > s.batchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(notifications), s.batchSize)
	}

	refs := make([]*firestore.DocumentRef, len(notifications))
	for i, n := range notifications {
		refs[i] = s.notificationDoc(n.UserID, n.ID)
	}

	var created []models.Notification
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created = created[:0]
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		exists := make([]bool, len(snaps))
		for i, snap := range snaps {
			exists[i] = snap.Exists()
		}
		for _, i := range toCreate(notifications, exists) {
			if err := tx.Create(refs[i], notifications[i]); err != nil {
				return err
			}
			created = append(created, notifications[i])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("notification batch transaction failed: %w", err)
	}
	return created, nil
}

// ListUnread reads every notification of the user and filters in memory: a
// read == false query would not match documents that lack the field.
func (s *FirestoreStore) ListUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	docs, err := s.userDoc(userID).Collection(notificationsCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications of %s: %w", userID, err)
	}
	all := make([]models.Notification, 0, len(docs))
	for _, doc := range docs {
		n, err := decodeNotification(doc)
		if err != nil {
			return nil, err
		}
		all = append(all, *n)
	}
	return unreadOldestFirst(all), nil
}

func (s *FirestoreStore) MaxBatchSize() int {
	return s.batchSize
}
