// Web Push subscriptions and new-movie notifications.

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/maruel/moviedb/internal/metrics"
	"github.com/maruel/moviedb/internal/models"
	"github.com/maruel/moviedb/internal/server/dto"
	"github.com/maruel/moviedb/internal/storage"
)

// PushHandler manages the caller's Web Push subscriptions.
type PushHandler struct {
	push  *storage.PushSubscriptionService
	vapid storage.VAPIDConfig
}

// NewPushHandler creates a new push handler.
func NewPushHandler(push *storage.PushSubscriptionService, vapid storage.VAPIDConfig) *PushHandler {
	return &PushHandler{push: push, vapid: vapid}
}

// VAPIDPublicKey returns the server's VAPID public key for push subscription.
func (h *PushHandler) VAPIDPublicKey(_ context.Context, _ *models.User, _ *dto.EmptyRequest) (*dto.VAPIDPublicKeyResponse, error) {
	if h.vapid.PublicKey == "" {
		return nil, dto.Unavailable("Web Push")
	}
	return &dto.VAPIDPublicKeyResponse{PublicKey: h.vapid.PublicKey}, nil
}

// Subscribe saves a push subscription for the authenticated user.
func (h *PushHandler) Subscribe(ctx context.Context, user *models.User, req *dto.SubscribeRequest) (*dto.SubscribeResponse, error) {
	sub, err := h.push.Subscribe(ctx, user.Username, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		return nil, storeError(err)
	}
	return &dto.SubscribeResponse{ID: sub.ID.String()}, nil
}

// Unsubscribe removes one of the user's push subscriptions.
func (h *PushHandler) Unsubscribe(ctx context.Context, user *models.User, req *dto.UnsubscribeRequest) (*dto.OkResponse, error) {
	if err := h.push.Unsubscribe(ctx, user.Username, req.Endpoint); err != nil {
		return nil, storeError(err)
	}
	return &dto.OkResponse{Ok: true}, nil
}

// Notifier sends Web Push messages when movies are added.
//
// Delivery is asynchronous; failures are logged and counted, never returned.
type Notifier struct {
	push       *storage.PushSubscriptionService
	vapid      storage.VAPIDConfig
	metrics    *metrics.Metrics
	httpClient webpush.HTTPClient
	subscriber string

	wg sync.WaitGroup
}

// NewNotifier returns a notifier. It is a no-op when vapid has no keys.
func NewNotifier(push *storage.PushSubscriptionService, vapid storage.VAPIDConfig, m *metrics.Metrics) *Notifier {
	return &Notifier{push: push, vapid: vapid, metrics: m, subscriber: "moviedb@localhost"}
}

// MovieAdded notifies every subscription not owned by user.
func (n *Notifier) MovieAdded(ctx context.Context, user string, m *models.Movie) {
	if n == nil || n.push == nil || n.vapid.PrivateKey == "" {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"title": "New movie",
		"body":  user + " added " + m.Title,
		"id":    m.ID.String(),
		"url":   "/",
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode push payload", "err", err)
		return
	}
	ctx = context.WithoutCancel(ctx)
	n.wg.Go(func() {
		for _, sub := range n.push.List(ctx) {
			if sub.Username == user {
				continue
			}
			n.send(ctx, payload, &sub)
		}
	})
}

func (n *Notifier) send(ctx context.Context, payload []byte, sub *models.PushSubscription) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      n.httpClient,
		Subscriber:      n.subscriber,
		VAPIDPublicKey:  n.vapid.PublicKey,
		VAPIDPrivateKey: n.vapid.PrivateKey,
		TTL:             86400,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Web push send failed", "err", err, "endpoint", sub.Endpoint)
		n.result("error")
		return
	}
	_ = resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		// The subscription expired or was revoked by the browser.
		if err := n.push.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
			slog.ErrorContext(ctx, "Failed to delete expired push subscription", "err", err, "user", sub.Username)
		}
		n.result("gone")
	case resp.StatusCode >= 300:
		slog.WarnContext(ctx, "Web push rejected", "status", resp.StatusCode, "user", sub.Username)
		n.result("error")
	default:
		n.result("ok")
	}
}

func (n *Notifier) result(r string) {
	if n.metrics != nil {
		n.metrics.PushSent(r)
	}
}

// Wait blocks until pending notifications are sent.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}
