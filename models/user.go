// models/user.go
package models

// User model
type User struct {
	ID                  string            `json:"id" bson:"_id" firestore:"-"`
	AllowNotifications  bool              `json:"allowNotifications" bson:"allowNotifications" firestore:"allowNotifications"`
	UnreadNotifications []NotificationRef `json:"unreadNotifications" bson:"unreadNotifications" firestore:"-"`
}

// NotificationRef is an entry of a user's unread index
type NotificationRef struct {
	ID   string `json:"id" bson:"id"`
	Path string `json:"path" bson:"path"`
}

// HasNotificationRef reports whether refs contains a reference to notificationID
func HasNotificationRef(refs []NotificationRef, notificationID string) bool {
	for _, ref := range refs {
		if ref.ID == notificationID {
			return true
		}
	}
	return false
}

// RemoveNotificationRef returns refs without any entry pointing at notificationID.
// The input slice is not modified.
func RemoveNotificationRef(refs []NotificationRef, notificationID string) []NotificationRef {
	out := make([]NotificationRef, 0, len(refs))
	for _, ref := range refs {
		if ref.ID != notificationID {
			out = append(out, ref)
		}
	}
	return out
}

// AppendNotificationRef adds ref unless an entry with the same id is already present
func AppendNotificationRef(refs []NotificationRef, ref NotificationRef) []NotificationRef {
	if HasNotificationRef(refs, ref.ID) {
		return refs
	}
	out := make([]NotificationRef, len(refs), len(refs)+1)
	copy(out, refs)
	return append(out, ref)
}

// Response model
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
