package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/skoolhub/entitlement-engine/api/responses"
	"github.com/skoolhub/entitlement-engine/api/validators"
	"github.com/skoolhub/entitlement-engine/internal/reconcile"
	billingwebhook "github.com/skoolhub/entitlement-engine/internal/webhooks/billing"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
	"github.com/skoolhub/entitlement-engine/pkg/logger"
)

type BillingWebhookService interface {
	HandleEvent(ctx context.Context, payload *billingwebhook.Payload, raw json.RawMessage) (*reconcile.Result, error)
}

type billingWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// BillingWebhook ingests billing-aggregator lifecycle notifications. The
// aggregator authenticates with a static shared secret in the Authorization
// header.
func BillingWebhook(svc BillingWebhookService, secret string, guard billingWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured"))
			return
		}

		provided := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook credentials"))
			return
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var payload billingwebhook.Payload
		if err := validators.DecodeBody(raw, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventKey := payload.Event.DedupeKey()
		if guard != nil {
			alreadyProcessed, err := guard.CheckAndMark(ctx, eventKey)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				responses.WriteSuccess(w, map[string]any{"ok": true, "duplicate": true})
				return
			}
		}

		result, err := svc.HandleEvent(ctx, &payload, raw)
		if err != nil {
			if guard != nil {
				_ = guard.Delete(ctx, eventKey)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithUserID(ctx, result.Subscription.UserID)
			ctx = logg.WithPlatform(ctx, result.Subscription.StorePlatform.String())
			logg.Info(ctx, fmt.Sprintf("webhook event %s processed", eventKey))
		}
		responses.WriteSuccess(w, map[string]any{
			"ok":             true,
			"subscriptionId": result.Subscription.ID,
			"state":          result.Subscription.State,
			"created":        result.Created,
		})
	}
}
