package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// NotificationTypeNewProduct tags notifications produced by the item fan-out
const NotificationTypeNewProduct = "new_product"

// notificationNamespace seeds the name-based UUIDs of fan-out notifications.
// Changing it would let a redelivered event create duplicates.
var notificationNamespace = uuid.MustParse("6f1c2d3e-8a4b-5c6d-9e0f-1a2b3c4d5e6f")

// Notification model
type Notification struct {
	ID          string    `json:"id" bson:"_id" firestore:"-"`
	UserID      string    `json:"userId" bson:"userId" firestore:"userId"`    // Owner, exactly one user
	ItemID      string    `json:"itemId" bson:"itemId" firestore:"itemId"`    // Item that triggered the fan-out
	Type        string    `json:"type" bson:"type" firestore:"type"`          // Category tag (e.g., "new_product")
	Message     string    `json:"message" bson:"message" firestore:"message"` // Short text
	Description string    `json:"description" bson:"description" firestore:"description"`
	Path        string    `json:"path" bson:"path" firestore:"path"` // Deep-link target
	Read        bool      `json:"read" bson:"read" firestore:"read"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
}

// Ref returns the unread index entry pointing at n
func (n Notification) Ref() NotificationRef {
	return NotificationRef{ID: n.ID, Path: NotificationPath(n.UserID, n.ID)}
}

// SortOldestFirst orders notifications by creation time, then id
func SortOldestFirst(ns []Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].ID < ns[j].ID
		}
		return ns[i].CreatedAt.Before(ns[j].CreatedAt)
	})
}

// NotificationID derives the identity of the notification an item produces for a user.
// The same (item, user) pair always maps to the same id.
func NotificationID(itemID, userID string) string {
	return uuid.NewSHA1(notificationNamespace, []byte(itemID+"/"+userID)).String()
}

// NotificationPath is the storage location of a notification under its owner
func NotificationPath(userID, notificationID string) string {
	return "users/" + userID + "/notifications/" + notificationID
}

// NewItemNotification builds the notification record item produces for userID
func NewItemNotification(item Item, userID, fallbackLink string, now time.Time) Notification {
	return Notification{
		ID:          NotificationID(item.ID, userID),
		UserID:      userID,
		ItemID:      item.ID,
		Type:        NotificationTypeNewProduct,
		Message:     item.NotificationMessage(),
		Description: item.NotificationDescription(),
		Path:        item.Link(fallbackLink),
		Read:        false,
		CreatedAt:   now,
	}
}

// NotificationSnapshot is one side of a notification change event.
// Read is nil when the field is absent from the document.
type NotificationSnapshot struct {
	Read *bool `json:"read,omitempty"`
}

// NotificationChange is delivered when a notification document is updated
type NotificationChange struct {
	UserID         string                `json:"userId" validate:"required"`
	NotificationID string                `json:"notificationId" validate:"required"`
	Before         *NotificationSnapshot `json:"before"`
	After          *NotificationSnapshot `json:"after"`
}

// IsReadEdge reports whether the change is exactly the unread -> read transition.
// An already-read document or an unrelated field update is not an edge.
func (c NotificationChange) IsReadEdge() bool {
	if c.Before == nil || c.After == nil {
		return false
	}
	wasRead := c.Before.Read != nil && *c.Before.Read
	isRead := c.After.Read != nil && *c.After.Read
	return !wasRead && isRead
}
