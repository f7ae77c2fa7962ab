package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/HSouheill/barrim_notifier/models"
)

// PushDispatcher sends a best-effort broadcast push. Callers never retry.
type PushDispatcher interface {
	Send(ctx context.Context, payload models.PushPayload) error
}

// NopDispatcher logs the payload and sends nothing
type NopDispatcher struct {
	Log zerolog.Logger
}

func (d NopDispatcher) Send(_ context.Context, payload models.PushPayload) error {
	d.Log.Info().Str("title", payload.Title).Str("body", payload.Body).Msg("push disabled, skipping broadcast")
	return nil
}
