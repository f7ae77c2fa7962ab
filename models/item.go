package models

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultItemName replaces a missing item name in notification text
	DefaultItemName = "a new product"
	// DefaultItemLink is used when a created item carries neither url nor path
	DefaultItemLink = "https://your-app-url.com/products"
)

// Item is the newly created product that triggers a fan-out run
type Item struct {
	ID   string `json:"id" bson:"_id" firestore:"-" validate:"required"`
	Name string `json:"name,omitempty" bson:"name,omitempty" firestore:"name,omitempty"`
	URL  string `json:"url,omitempty" bson:"url,omitempty" firestore:"url,omitempty"`
	Path string `json:"path,omitempty" bson:"path,omitempty" firestore:"path,omitempty"`
}

// DisplayName returns the item name, or the generic label when it is blank
func (i Item) DisplayName() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	return DefaultItemName
}

// Link returns the item's url, then its path, then fallback.
// An empty fallback means DefaultItemLink.
func (i Item) Link(fallback string) string {
	if u := strings.TrimSpace(i.URL); u != "" {
		return u
	}
	if p := strings.TrimSpace(i.Path); p != "" {
		return p
	}
	if fallback != "" {
		return fallback
	}
	return DefaultItemLink
}

// IsWebLink reports whether link is an absolute http(s) URL rather than an in-app route
func IsWebLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// NotificationMessage is the short text shown for a new item
func (i Item) NotificationMessage() string {
	return fmt.Sprintf("%s has been added to the store!", i.DisplayName())
}

// NotificationDescription is the longer text stored on the notification record
func (i Item) NotificationDescription() string {
	return fmt.Sprintf("Check out %s, now available in the store.", i.DisplayName())
}
