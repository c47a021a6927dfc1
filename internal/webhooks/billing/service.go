package billingwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skoolhub/entitlement-engine/internal/reconcile"
	"github.com/skoolhub/entitlement-engine/pkg/enums"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
	"github.com/skoolhub/entitlement-engine/pkg/logger"
	"github.com/skoolhub/entitlement-engine/pkg/metrics"
)

const metricsSource = "webhook"

// Payload is the aggregator's webhook envelope.
type Payload struct {
	APIVersion string     `json:"api_version"`
	Event      *EventBody `json:"event" validate:"required"`
}

// EventBody is the lifecycle notification inside the webhook envelope.
// Unknown sibling fields are tolerated; the aggregator adds them freely.
type EventBody struct {
	ID             string   `json:"id"`
	Type           string   `json:"type" validate:"required"`
	AppUserID      string   `json:"app_user_id" validate:"required"`
	ProductID      string   `json:"product_id" validate:"required"`
	EntitlementIDs []string `json:"entitlement_ids"`
	TransactionID  string   `json:"transaction_id"`
	Store          string   `json:"store" validate:"required"`
	Environment    string   `json:"environment"`
	PurchasedAtMS  int64    `json:"purchased_at_ms"`
	ExpirationAtMS int64    `json:"expiration_at_ms"`
	ManagementURL  *string  `json:"management_url"`
}

// DedupeKey identifies one delivery for the idempotency guard. The
// aggregator's event id is preferred; older payload versions omit it.
func (e *EventBody) DedupeKey() string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%s:%s:%s:%d", e.Type, e.AppUserID, e.TransactionID, e.PurchasedAtMS)
}

// Reconciler is the slice of the reconcile service this adapter needs.
type Reconciler interface {
	Process(ctx context.Context, event reconcile.Event) (*reconcile.Result, error)
}

// ServiceParams groups dependencies for the webhook adapter.
type ServiceParams struct {
	Reconciler Reconciler
	Metrics    *metrics.IngestMetrics
	Logger     *logger.Logger
}

// Service translates webhook payloads into normalized events and feeds them
// to the reconciler.
type Service struct {
	reconciler Reconciler
	metrics    *metrics.IngestMetrics
	logg       *logger.Logger
}

// NewService builds a webhook adapter.
func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	return &Service{
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

// HandleEvent processes one webhook delivery. raw is the verbatim request
// body; it is stored on the subscription row for audit.
func (s *Service) HandleEvent(ctx context.Context, payload *Payload, raw json.RawMessage) (*reconcile.Result, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveDuration(metricsSource, time.Since(start))
	}()

	event, err := s.normalize(ctx, payload, raw)
	if err != nil {
		s.metrics.IncResult(metricsSource, "rejected")
		return nil, err
	}

	result, err := s.reconciler.Process(ctx, event)
	if err != nil {
		s.metrics.IncResult(metricsSource, "error")
		return nil, err
	}

	if result.Created {
		s.metrics.IncResult(metricsSource, "created")
	} else {
		s.metrics.IncResult(metricsSource, "updated")
	}
	return result, nil
}

func (s *Service) normalize(ctx context.Context, payload *Payload, raw json.RawMessage) (reconcile.Event, error) {
	if payload == nil || payload.Event == nil {
		return reconcile.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook event body is required")
	}
	body := payload.Event

	platform, err := enums.ParseStorePlatform(body.Store)
	if err != nil {
		return reconcile.Event{}, pkgerrors.New(pkgerrors.CodeUnsupportedStore, err.Error()).
			WithDetails(map[string]any{"store": body.Store})
	}

	state, known := reconcile.StateForWebhookType(body.Type)
	if !known && s.logg != nil {
		warnCtx := s.logg.WithField(ctx, "event_type", body.Type)
		s.logg.Warn(warnCtx, "unknown webhook event type, treating as active")
	}

	productID, basePlan := reconcile.SplitStoreProductID(body.ProductID)

	event := reconcile.Event{
		Source:             reconcile.SourceWebhook,
		Kind:               body.Type,
		UserID:             strings.TrimSpace(body.AppUserID),
		Platform:           platform,
		StoreProductID:     productID,
		StoreProductPlanID: basePlan,
		State:              state,
		WillRenew:          state == enums.SubscriptionStateActive,
		Environment:        enums.ParseStoreEnvironment(body.Environment),
		ManagementURL:      body.ManagementURL,
		RawPayload:         raw,
	}
	if body.TransactionID != "" {
		txnID := body.TransactionID
		event.TransactionID = &txnID
	}
	if len(body.EntitlementIDs) > 0 {
		event.EntitlementID = body.EntitlementIDs[0]
	}
	if body.PurchasedAtMS > 0 {
		purchased := time.UnixMilli(body.PurchasedAtMS).UTC()
		event.PurchasedAt = &purchased
	}
	if body.ExpirationAtMS > 0 {
		expires := time.UnixMilli(body.ExpirationAtMS).UTC()
		event.ExpiresAt = &expires
	}
	return event, nil
}
