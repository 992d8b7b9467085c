// Package notify is the best-effort push side channel. Nothing in here may
// ever fail a send: errors are logged, counted and swallowed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"unicode/utf8"

	webpush "github.com/SherClockHolmes/webpush-go"

	"cmc-connect/internal/observability"
	"cmc-connect/internal/repositories"
)

const bodyLimit = 30

// Notifier dispatches a new-message notification to one recipient.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, receiverID int, senderName, text string)
}

// Config carries the VAPID material.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	BaseURL         string
}

// WebPushNotifier sends VAPID web-push notifications to stored
// subscriptions.
type WebPushNotifier struct {
	cfg   Config
	users repositories.UserRepository
}

// NewNotifier returns a web-push notifier, or a noop one when the VAPID
// keys are not configured.
func NewNotifier(cfg Config, users repositories.UserRepository) Notifier {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		slog.Warn("VAPID keys missing, push notifications disabled")
		return noopNotifier{}
	}
	return &WebPushNotifier{cfg: cfg, users: users}
}

// NotifyNewMessage pushes a short preview to the receiver's subscription if
// one exists. Receivers without a subscription, revoked subscriptions and
// transport errors are all normal outcomes here.
func (n *WebPushNotifier) NotifyNewMessage(ctx context.Context, receiverID int, senderName, text string) {
	sub, err := n.users.GetSubscription(ctx, receiverID)
	if err != nil {
		if !errors.Is(err, repositories.ErrSubscriptionNotFound) {
			slog.Warn("push subscription lookup failed", "user_id", receiverID, "error", err)
		}
		return
	}

	payload, err := buildPayload(senderName, text, n.cfg.BaseURL)
	if err != nil {
		slog.Warn("push payload build failed", "error", err)
		return
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      n.cfg.Subject,
		VAPIDPublicKey:  n.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: n.cfg.VAPIDPrivateKey,
		TTL:             60,
	})
	if err != nil {
		observability.IncPushError()
		slog.Warn("push dispatch failed", "user_id", receiverID, "error", err)
		return
	}
	defer resp.Body.Close()
	observability.IncPushSent()
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

func buildPayload(senderName, text, url string) ([]byte, error) {
	return json.Marshal(pushPayload{
		Title: "New message from " + senderName,
		Body:  truncate(text, bodyLimit),
		URL:   url,
	})
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

type noopNotifier struct{}

func (noopNotifier) NotifyNewMessage(context.Context, int, string, string) {}

var _ Notifier = (*WebPushNotifier)(nil)
