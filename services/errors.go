package services

import "errors"

var (
	// ErrSelectRecipients means the opted-in users could not be enumerated; nothing was written
	ErrSelectRecipients = errors.New("failed to select recipients")
	// ErrBatchCommit means a notification batch was not persisted; no index update was issued for it
	ErrBatchCommit = errors.New("failed to commit notification batch")
	// ErrReconcile means a read transition could not be applied to the owner's unread index
	ErrReconcile = errors.New("failed to reconcile unread index")
	// ErrRepair means an unread index could not be rebuilt
	ErrRepair = errors.New("failed to repair unread index")
)

// IndexObserver is told when a user's unread index was written
type IndexObserver interface {
	UnreadIndexChanged(userID string)
}

func notifyObserver(o IndexObserver, userID string) {
	if o != nil {
		o.UnreadIndexChanged(userID)
	}
}
