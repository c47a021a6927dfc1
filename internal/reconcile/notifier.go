package reconcile

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/skoolhub/entitlement-engine/pkg/db/models"
	"github.com/skoolhub/entitlement-engine/pkg/logger"
)

type eventPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// PubSubNotifier publishes entitlement.updated messages after a
// reconciliation commits. Publish failures are logged and swallowed; the
// subscription row is already durable at that point.
type PubSubNotifier struct {
	publisher eventPublisher
	logg      *logger.Logger
}

// NewPubSubNotifier builds a notifier around the given publisher. A nil
// publisher yields a notifier that does nothing, so wiring stays
// unconditional even when Pub/Sub is not configured.
func NewPubSubNotifier(publisher eventPublisher, logg *logger.Logger) *PubSubNotifier {
	return &PubSubNotifier{publisher: publisher, logg: logg}
}

type entitlementUpdated struct {
	SubscriptionID string    `json:"subscriptionId"`
	UserID         string    `json:"userId"`
	PlanID         string    `json:"planId"`
	State          string    `json:"state"`
	StorePlatform  string    `json:"storePlatform"`
	EntitlementID  string    `json:"entitlementId"`
	WillRenew      bool      `json:"willRenew"`
	Created        bool      `json:"created"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (n *PubSubNotifier) SubscriptionReconciled(ctx context.Context, sub *models.Subscription, created bool) {
	if n == nil || n.publisher == nil || sub == nil {
		return
	}

	payload, err := json.Marshal(entitlementUpdated{
		SubscriptionID: sub.ID.String(),
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		State:          sub.State.String(),
		StorePlatform:  sub.StorePlatform.String(),
		EntitlementID:  sub.EntitlementID,
		WillRenew:      sub.WillRenew,
		Created:        created,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		if n.logg != nil {
			n.logg.Error(ctx, "marshal entitlement event", err)
		}
		return
	}

	result := n.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"eventType": "entitlement.updated",
			"userId":    sub.UserID,
			"platform":  sub.StorePlatform.String(),
		},
	})
	if _, err := result.Get(ctx); err != nil && n.logg != nil {
		n.logg.Error(ctx, "publish entitlement event", err)
	}
}
