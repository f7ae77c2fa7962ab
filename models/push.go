package models

// PushPayload is the broadcast sent when a new item is created.
// Exactly one of WebURL and DeepLink is set.
type PushPayload struct {
	Audience []string `json:"audience"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	WebURL   string   `json:"webUrl,omitempty"`
	DeepLink string   `json:"deepLink,omitempty"`
}

const (
	// PushTitleNewProduct is the heading of the new item broadcast
	PushTitleNewProduct = "New Product Alert!"
	// PushAudienceAll targets every subscriber
	PushAudienceAll = "All"
)

// NewItemPush builds the broadcast for item, choosing the web or app link by its shape
func NewItemPush(item Item, fallbackLink string) PushPayload {
	p := PushPayload{
		Audience: []string{PushAudienceAll},
		Title:    PushTitleNewProduct,
		Body:     item.NotificationMessage(),
	}
	link := item.Link(fallbackLink)
	if IsWebLink(link) {
		p.WebURL = link
	} else {
		p.DeepLink = link
	}
	return p
}
