package repositories

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/barrim_notifier/models"
)

const (
	usersCollection         = "users"
	notificationsCollection = "notifications"
)

// MongoStore keeps users and notifications in two MongoDB collections.
// Notifications carry their owner in userId; the unread index is an array of
// {id, path} subdocuments on the user.
type MongoStore struct {
	client        *mongo.Client
	users         *mongo.Collection
	notifications *mongo.Collection
	batchSize     int
	log           zerolog.Logger
}

// NewMongoStore creates a store on database dbName
func NewMongoStore(client *mongo.Client, dbName string, batchSize int, log zerolog.Logger) *MongoStore {
	if batchSize <= 0 {
		batchSize = 500
	}
	db := client.Database(dbName)
	return &MongoStore{
		client:        client,
		users:         db.Collection(usersCollection),
		notifications: db.Collection(notificationsCollection),
		batchSize:     batchSize,
		log:           log.With().Str("store", "mongo").Logger(),
	}
}

func (s *MongoStore) streamUsers(ctx context.Context, filter bson.M) iter.Seq2[models.User, error] {
	return func(yield func(models.User, error) bool) {
		cursor, err := s.users.Find(ctx, filter)
		if err != nil {
			yield(models.User{}, fmt.Errorf("failed to query users: %w", err))
			return
		}
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			var u models.User
			if err := cursor.Decode(&u); err != nil {
				yield(models.User{}, fmt.Errorf("failed to decode user: %w", err))
				return
			}
			if !yield(u, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(models.User{}, fmt.Errorf("user cursor failed: %w", err))
		}
	}
}

func (s *MongoStore) OptedInUsers(ctx context.Context) iter.Seq2[models.User, error] {
	return s.streamUsers(ctx, bson.M{"allowNotifications": true})
}

func (s *MongoStore) AllUsers(ctx context.Context) iter.Seq2[models.User, error] {
	return s.streamUsers(ctx, bson.M{})
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", userID, err)
	}
	return &u, nil
}

func (s *MongoStore) updateUser(ctx context.Context, userID string, update bson.M) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoStore) AppendUnread(ctx context.Context, userID string, ref models.NotificationRef) error {
	return s.updateUser(ctx, userID, bson.M{"$addToSet": bson.M{"unreadNotifications": ref}})
}

func (s *MongoStore) RemoveUnread(ctx context.Context, userID, notificationID string) error {
	return s.updateUser(ctx, userID, bson.M{"$pull": bson.M{"unreadNotifications": bson.M{"id": notificationID}}})
}

func (s *MongoStore) GetNotification(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var n models.Notification
	err := s.notifications.FindOne(ctx, bson.M{"_id": notificationID, "userId": userID}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notification %s: %w", notificationID, err)
	}
	return &n, nil
}

// CreateBatch upserts the batch inside a transaction. $setOnInsert leaves existing
// documents (possibly already read) untouched, so a replayed batch is a no-op.
func (s *MongoStore) CreateBatch(ctx context.Context, notifications []models.Notification) ([]models.Notification, error) {
	if len(notifications) == 0 {
		return nil, nil
	}
	if len(notifications) > s.batchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(notifications), s.batchSize)
	}

	writes := make([]mongo.WriteModel, 0, len(notifications))
	for _, n := range notifications {
		doc := bson.M{
			"userId":      n.UserID,
			"itemId":      n.ItemID,
			"type":        n.Type,
			"message":     n.Message,
			"description": n.Description,
			"path":        n.Path,
			"read":        n.Read,
			"createdAt":   n.CreatedAt,
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": n.ID}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}

	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.notifications.BulkWrite(sc, writes, options.BulkWrite().SetOrdered(true))
	})
	if err != nil {
		return nil, fmt.Errorf("notification batch transaction failed: %w", err)
	}

	bulk, ok := result.(*mongo.BulkWriteResult)
	if !ok || bulk == nil {
		return nil, fmt.Errorf("unexpected bulk write result %T", result)
	}
	created := make([]models.Notification, 0, len(bulk.UpsertedIDs))
	for i, n := range notifications {
		if _, upserted := bulk.UpsertedIDs[int64(i)]; upserted {
			created = append(created, n)
		}
	}
	return created, nil
}

// unreadFilter matches the user's notifications whose read field is false or missing
func unreadFilter(userID string) bson.M {
	return bson.M{"userId": userID, "read": bson.M{"$ne": true}}
}

func (s *MongoStore) ListUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.notifications.Find(ctx, unreadFilter(userID), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread notifications: %w", err)
	}
	var out []models.Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode unread notifications: %w", err)
	}
	return out, nil
}

func (s *MongoStore) MaxBatchSize() int {
	return s.batchSize
}

// readChangeEvent is the subset of a change stream document the watcher needs
type readChangeEvent struct {
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *struct {
		UserID string `bson:"userId"`
		Read   *bool  `bson:"read"`
	} `bson:"fullDocument"`
	FullDocumentBeforeChange *struct {
		Read *bool `bson:"read"`
	} `bson:"fullDocumentBeforeChange"`
}

// toChange converts a change stream document into a NotificationChange.
// Without a pre-image the before side is taken as unread: the stream only matches
// updates that wrote read=true, and MongoDB emits no event for a same-value $set.
func (e readChangeEvent) toChange() (models.NotificationChange, bool) {
	if e.FullDocument == nil || e.FullDocument.UserID == "" {
		return models.NotificationChange{}, false
	}
	before := &models.NotificationSnapshot{Read: new(bool)}
	if e.FullDocumentBeforeChange != nil {
		before.Read = e.FullDocumentBeforeChange.Read
	}
	read := true
	return models.NotificationChange{
		UserID:         e.FullDocument.UserID,
		NotificationID: e.DocumentKey.ID,
		Before:         before,
		After:          &models.NotificationSnapshot{Read: &read},
	}, true
}

// WatchReadTransitions tails the notifications change stream and calls handle for every
// update that set read to true. It blocks until ctx is done or the stream fails.
func (s *MongoStore) WatchReadTransitions(ctx context.Context, handle func(context.Context, models.NotificationChange)) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "update"},
			{Key: "updateDescription.updatedFields.read", Value: true},
		}}},
	}
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)

	stream, err := s.notifications.Watch(ctx, pipeline, opts)
	if err != nil {
		return fmt.Errorf("failed to open notifications change stream: %w", err)
	}
	defer stream.Close(context.Background())

	s.log.Info().Msg("watching notification read transitions")
	for stream.Next(ctx) {
		var ev readChangeEvent
		if err := stream.Decode(&ev); err != nil {
			s.log.Error().Err(err).Msg("failed to decode change event")
			continue
		}
		change, ok := ev.toChange()
		if !ok {
			s.log.Warn().Str("notificationId", ev.DocumentKey.ID).Msg("change event without owner, skipping")
			continue
		}
		handle(ctx, change)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("notifications change stream failed: %w", err)
	}
	return nil
}
