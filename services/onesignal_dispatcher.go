package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/HSouheill/barrim_notifier/models"
)

// DefaultOneSignalURL is the OneSignal create-notification endpoint
const DefaultOneSignalURL = "https://onesignal.com/api/v1/notifications"

// OneSignalDispatcher broadcasts through the OneSignal REST API
type OneSignalDispatcher struct {
	appID      string
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// OneSignalConfig configures a OneSignalDispatcher
type OneSignalConfig struct {
	AppID    string
	APIKey   string
	Endpoint string
	// RatePerSecond caps outgoing requests; <= 0 means 10
	RatePerSecond float64
	Timeout       time.Duration
}

func NewOneSignalDispatcher(cfg OneSignalConfig) *OneSignalDispatcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOneSignalURL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &OneSignalDispatcher{
		appID:      cfg.AppID,
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
	}
}

type oneSignalRequest struct {
	AppID            string            `json:"app_id"`
	IncludedSegments []string          `json:"included_segments"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	URL              string            `json:"url,omitempty"`
	AppURL           string            `json:"app_url,omitempty"`
}

type oneSignalResponse struct {
	ID     string          `json:"id"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

func (d *OneSignalDispatcher) newRequest(payload models.PushPayload) oneSignalRequest {
	return oneSignalRequest{
		AppID:            d.appID,
		IncludedSegments: payload.Audience,
		Headings:         map[string]string{"en": payload.Title},
		Contents:         map[string]string{"en": payload.Body},
		URL:              payload.WebURL,
		AppURL:           payload.DeepLink,
	}
}

func (d *OneSignalDispatcher) Send(ctx context.Context, payload models.PushPayload) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("onesignal rate limiter: %w", err)
	}

	body, err := json.Marshal(d.newRequest(payload))
	if err != nil {
		return fmt.Errorf("failed to encode onesignal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build onesignal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("onesignal request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("onesignal returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out oneSignalResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode onesignal response: %w", err)
	}
	if len(out.Errors) > 0 && string(out.Errors) != "null" {
		return fmt.Errorf("onesignal rejected notification: %s", string(out.Errors))
	}
	return nil
}
