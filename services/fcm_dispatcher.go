package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"firebase.google.com/go/v4/messaging"

	"github.com/HSouheill/barrim_notifier/models"
)

// messageSender is satisfied by *messaging.Client
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMDispatcher broadcasts to Firebase Cloud Messaging topics
type FCMDispatcher struct {
	client messageSender
	// topics maps audience names to FCM topics; unknown names are used as-is
	topics map[string]string
}

// NewFCMDispatcher sends to client. allTopic is the topic every device subscribes to.
func NewFCMDispatcher(client messageSender, allTopic string) *FCMDispatcher {
	if allTopic == "" {
		allTopic = "all"
	}
	return &FCMDispatcher{
		client: client,
		topics: map[string]string{models.PushAudienceAll: allTopic},
	}
}

func (d *FCMDispatcher) topic(audience string) string {
	if t, ok := d.topics[audience]; ok {
		return t
	}
	return audience
}

// buildMessage targets a single topic directly and several through a condition
func (d *FCMDispatcher) buildMessage(payload models.PushPayload) (*messaging.Message, error) {
	if len(payload.Audience) == 0 {
		return nil, fmt.Errorf("push payload has no audience")
	}

	data := map[string]string{
		"type":      models.NotificationTypeNewProduct,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if payload.WebURL != "" {
		data["url"] = payload.WebURL
	}
	if payload.DeepLink != "" {
		data["deepLink"] = payload.DeepLink
	}

	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "barrim_fcm_channel",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: payload.Title,
						Body:  payload.Body,
					},
					Sound:    "default",
					Category: "NEW_PRODUCT",
				},
			},
		},
	}
	if strings.HasPrefix(payload.WebURL, "https://") {
		msg.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: payload.WebURL},
		}
	}

	if len(payload.Audience) == 1 {
		msg.Topic = d.topic(payload.Audience[0])
		return msg, nil
	}
	conds := make([]string, 0, len(payload.Audience))
	for _, a := range payload.Audience {
		conds = append(conds, fmt.Sprintf("'%s' in topics", d.topic(a)))
	}
	msg.Condition = strings.Join(conds, " || ")
	return msg, nil
}

func (d *FCMDispatcher) Send(ctx context.Context, payload models.PushPayload) error {
	msg, err := d.buildMessage(payload)
	if err != nil {
		return err
	}
	if _, err := d.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send FCM notification: %w", err)
	}
	return nil
}
