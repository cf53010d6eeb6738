package storage

import (
	"context"
	"slices"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/moviedb/internal/jsondb"
	"github.com/maruel/moviedb/internal/models"
)

// PushSubscriptionService stores Web Push subscriptions.
type PushSubscriptionService struct {
	coll *jsondb.Collection[models.PushSubscription]
	now  func() time.Time
}

// NewPushSubscriptionService returns a service over the document at path.
func NewPushSubscriptionService(path string, opts *jsondb.Options) (*PushSubscriptionService, error) {
	coll, err := jsondb.Open[models.PushSubscription](path, opts)
	if err != nil {
		return nil, err
	}
	return &PushSubscriptionService{coll: coll, now: time.Now}, nil
}

// Subscribe records a subscription. An existing subscription with the same
// endpoint is replaced, keeping its id.
func (s *PushSubscriptionService) Subscribe(ctx context.Context, username, endpoint, p256dh, auth string) (*models.PushSubscription, error) {
	sub := models.PushSubscription{
		ID:       ksid.NewID(),
		Username: username,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
		Created:  s.now(),
	}
	err := s.coll.Modify(ctx, func(subs []models.PushSubscription) ([]models.PushSubscription, error) {
		if i := indexOfEndpoint(subs, endpoint); i >= 0 {
			sub.ID = subs[i].ID
			subs[i] = sub
			return subs, nil
		}
		return append(subs, sub), nil
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Unsubscribe removes the user's subscription for endpoint.
func (s *PushSubscriptionService) Unsubscribe(ctx context.Context, username, endpoint string) error {
	return s.coll.Modify(ctx, func(subs []models.PushSubscription) ([]models.PushSubscription, error) {
		i := indexOfEndpoint(subs, endpoint)
		if i < 0 || subs[i].Username != username {
			return nil, ErrSubscriptionNotFound
		}
		return slices.Delete(subs, i, i+1), nil
	})
}

// DeleteByEndpoint removes the subscription for endpoint regardless of owner.
// Used when the push service reports the subscription as gone.
func (s *PushSubscriptionService) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	return s.coll.Modify(ctx, func(subs []models.PushSubscription) ([]models.PushSubscription, error) {
		i := indexOfEndpoint(subs, endpoint)
		if i < 0 {
			return nil, ErrSubscriptionNotFound
		}
		return slices.Delete(subs, i, i+1), nil
	})
}

// List returns all subscriptions.
func (s *PushSubscriptionService) List(ctx context.Context) []models.PushSubscription {
	return s.coll.Load(ctx)
}

func indexOfEndpoint(subs []models.PushSubscription, endpoint string) int {
	return slices.IndexFunc(subs, func(p models.PushSubscription) bool { return p.Endpoint == endpoint })
}
