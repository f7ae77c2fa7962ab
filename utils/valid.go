// utils/validation.go
package utils

import (
	"strings"
	"unicode"

	"github.com/HSouheill/barrim_notifier/models"
)

// SanitizeInput trims input and drops control characters.
// Notification text is not HTML, so nothing is escaped.
func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)

	// Remove control characters
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
}

// IsValidDocumentID reports whether id can name a document. Ids are joined with '/'
// to derive notification identities, so they may not contain one.
func IsValidDocumentID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && id != "." && id != ".." && !strings.Contains(id, "/")
}

// SanitizeItem cleans the free-text fields of an item event
func SanitizeItem(item models.Item) models.Item {
	item.ID = strings.TrimSpace(item.ID)
	item.Name = SanitizeInput(item.Name)
	item.URL = SanitizeInput(item.URL)
	item.Path = SanitizeInput(item.Path)
	return item
}
