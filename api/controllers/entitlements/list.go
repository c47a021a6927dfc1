package entitlements

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skoolhub/entitlement-engine/api/responses"
	"github.com/skoolhub/entitlement-engine/internal/subscriptions"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
	"github.com/skoolhub/entitlement-engine/pkg/logger"
)

type SubscriptionReader interface {
	ListForUser(ctx context.Context, userID string) ([]subscriptions.UserSubscription, error)
}

// ListForUser returns every subscription recorded for a user, newest first.
func ListForUser(svc SubscriptionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		userID := chi.URLParam(r, "userId")
		if userID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "userId is required"))
			return
		}

		if logg != nil {
			ctx = logg.WithUserID(ctx, userID)
		}

		subs, err := svc.ListForUser(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"ok": true, "subscriptions": subs})
	}
}
