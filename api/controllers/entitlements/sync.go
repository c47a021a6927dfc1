package entitlements

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/skoolhub/entitlement-engine/api/responses"
	"github.com/skoolhub/entitlement-engine/api/validators"
	syncsvc "github.com/skoolhub/entitlement-engine/internal/sync"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
	"github.com/skoolhub/entitlement-engine/pkg/logger"
)

type SyncService interface {
	Sync(ctx context.Context, req *syncsvc.Request, raw json.RawMessage) (*syncsvc.Result, error)
}

// Sync ingests a client-driven customer snapshot and reconciles the user's
// subscription from it.
func Sync(svc SyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var req syncsvc.Request
		if err := validators.DecodeBody(raw, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			ctx = logg.WithUserID(ctx, req.AppUserID)
		}

		result, err := svc.Sync(ctx, &req, raw)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if result.Skipped {
			responses.WriteSuccess(w, map[string]any{"ok": true, "skipped": true})
			return
		}

		sub := result.Reconciled.Subscription
		if logg != nil {
			ctx = logg.WithPlatform(ctx, sub.StorePlatform.String())
			logg.Info(ctx, "entitlement snapshot reconciled")
		}
		responses.WriteSuccess(w, map[string]any{
			"ok":             true,
			"skipped":        false,
			"subscriptionId": sub.ID,
			"state":          sub.State,
			"created":        result.Reconciled.Created,
		})
	}
}
