package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skoolhub/entitlement-engine/api/controllers"
	entitlementcontrollers "github.com/skoolhub/entitlement-engine/api/controllers/entitlements"
	webhookcontrollers "github.com/skoolhub/entitlement-engine/api/controllers/webhooks"
	"github.com/skoolhub/entitlement-engine/api/middleware"
	billingwebhook "github.com/skoolhub/entitlement-engine/internal/webhooks/billing"
	"github.com/skoolhub/entitlement-engine/pkg/config"
	"github.com/skoolhub/entitlement-engine/pkg/db"
	"github.com/skoolhub/entitlement-engine/pkg/logger"
	"github.com/skoolhub/entitlement-engine/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	registry *prometheus.Registry,
	webhookService webhookcontrollers.BillingWebhookService,
	webhookGuard *billingwebhook.IdempotencyGuard,
	syncService entitlementcontrollers.SyncService,
	subscriptionsService entitlementcontrollers.SubscriptionReader,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/billing", webhookcontrollers.BillingWebhook(webhookService, cfg.Billing.WebhookSecret, webhookGuard, logg))
		r.Post("/entitlements/sync", entitlementcontrollers.Sync(syncService, logg))
		r.Get("/entitlements/{userId}", entitlementcontrollers.ListForUser(subscriptionsService, logg))
	})

	return r
}
