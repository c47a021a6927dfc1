package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/skoolhub/entitlement-engine/internal/reconcile"
	"github.com/skoolhub/entitlement-engine/pkg/enums"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
	"github.com/skoolhub/entitlement-engine/pkg/logger"
	"github.com/skoolhub/entitlement-engine/pkg/metrics"
)

const (
	metricsSource = "sync"

	managementURLAttribute = "management_url"
)

// Request is the client-driven snapshot body.
type Request struct {
	AppUserID    string        `json:"appUserId" validate:"required"`
	CustomerInfo *CustomerInfo `json:"customerInfo" validate:"required"`
}

// CustomerInfo mirrors the aggregator SDK's customer snapshot. Only the
// fields the engine consumes are decoded.
type CustomerInfo struct {
	Entitlements         EntitlementBlock               `json:"entitlements"`
	Subscriptions        map[string]ProductSubscription `json:"subscriptionsByProductIdentifier"`
	ManagementURL        *string                        `json:"managementURL"`
	SubscriberAttributes AttributeMap                   `json:"subscriberAttributes"`
	Attributes           AttributeMap                   `json:"attributes"`
}

// EntitlementBlock wraps the SDK's entitlement map, keyed by entitlement id.
type EntitlementBlock struct {
	All map[string]Entitlement `json:"all"`
}

// Entitlement is one entitlement entry from the snapshot.
type Entitlement struct {
	IsActive              bool       `json:"isActive"`
	WillRenew             bool       `json:"willRenew"`
	LatestPurchaseDate    *time.Time `json:"latestPurchaseDate"`
	ExpirationDate        *time.Time `json:"expirationDate"`
	Store                 string     `json:"store"`
	ProductIdentifier     string     `json:"productIdentifier"`
	ProductPlanIdentifier *string    `json:"productPlanIdentifier"`
	IsSandbox             bool       `json:"isSandbox"`
}

// ProductSubscription supplements entitlement entries with purchase dates
// when the entitlement itself omits them.
type ProductSubscription struct {
	PurchaseDate *time.Time `json:"purchaseDate"`
	ExpiresDate  *time.Time `json:"expiresDate"`
	IsSandbox    bool       `json:"isSandbox"`
}

// Reconciler is the slice of the reconcile service this adapter needs.
type Reconciler interface {
	Process(ctx context.Context, event reconcile.Event) (*reconcile.Result, error)
}

// ServiceParams groups dependencies for the sync adapter.
type ServiceParams struct {
	Reconciler Reconciler
	Metrics    *metrics.IngestMetrics
	Logger     *logger.Logger
}

// Service reduces a customer snapshot to one normalized event and feeds it
// to the reconciler.
type Service struct {
	reconciler Reconciler
	metrics    *metrics.IngestMetrics
	logg       *logger.Logger
}

// Result reports the snapshot outcome. Skipped means the snapshot carried
// no entitlement the engine tracks; that is a success, not an error.
type Result struct {
	Skipped    bool
	Reconciled *reconcile.Result
}

// NewService builds a sync adapter.
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

// Sync processes one client snapshot. raw is the verbatim request body,
// stored on the subscription row for audit.
func (s *Service) Sync(ctx context.Context, req *Request, raw json.RawMessage) (*Result, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveDuration(metricsSource, time.Since(start))
	}()

	if req == nil || req.CustomerInfo == nil || len(req.CustomerInfo.Entitlements.All) == 0 {
		if s.logg != nil {
			s.logg.Info(ctx, "snapshot carries no entitlements, nothing to reconcile")
		}
		s.metrics.IncResult(metricsSource, "skipped")
		return &Result{Skipped: true}, nil
	}
	info := req.CustomerInfo

	entitlementID, entitlement := selectEntitlement(info.Entitlements.All)

	platform, err := enums.ParseStorePlatform(entitlement.Store)
	if err != nil {
		s.metrics.IncResult(metricsSource, "rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedStore, err.Error()).
			WithDetails(map[string]any{"store": entitlement.Store, "entitlementId": entitlementID})
	}

	event := s.normalize(req.AppUserID, entitlementID, entitlement, info, platform, raw)

	reconciled, err := s.reconciler.Process(ctx, event)
	if err != nil {
		s.metrics.IncResult(metricsSource, "error")
		return nil, err
	}

	if reconciled.Created {
		s.metrics.IncResult(metricsSource, "created")
	} else {
		s.metrics.IncResult(metricsSource, "updated")
	}
	return &Result{Reconciled: reconciled}, nil
}

// selectEntitlement picks the entitlement a snapshot reduces to: the first
// active one in key order, else the first in key order. Key order keeps the
// choice deterministic across replays of the same snapshot.
func selectEntitlement(all map[string]Entitlement) (string, Entitlement) {
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if all[key].IsActive {
			return key, all[key]
		}
	}
	return keys[0], all[keys[0]]
}

func (s *Service) normalize(appUserID, entitlementID string, ent Entitlement, info *CustomerInfo, platform enums.StorePlatform, raw json.RawMessage) reconcile.Event {
	state := reconcile.StateForEntitlement(ent.IsActive)

	kind := string(enums.WebhookEventExpiration)
	if ent.IsActive {
		kind = string(enums.WebhookEventRenewal)
	}

	productID, basePlan := reconcile.SplitStoreProductID(ent.ProductIdentifier)
	if ent.ProductPlanIdentifier != nil && *ent.ProductPlanIdentifier != "" {
		basePlan = ent.ProductPlanIdentifier
	}

	purchasedAt := ent.LatestPurchaseDate
	expiresAt := ent.ExpirationDate
	if sub, ok := info.Subscriptions[ent.ProductIdentifier]; ok {
		if purchasedAt == nil {
			purchasedAt = sub.PurchaseDate
		}
		if expiresAt == nil {
			expiresAt = sub.ExpiresDate
		}
	}

	managementURL := info.ManagementURL
	if managementURL == nil {
		managementURL = info.SubscriberAttributes.Get(managementURLAttribute)
	}
	if managementURL == nil {
		managementURL = info.Attributes.Get(managementURLAttribute)
	}

	return reconcile.Event{
		Source:             reconcile.SourceSync,
		Kind:               kind,
		UserID:             strings.TrimSpace(appUserID),
		Platform:           platform,
		StoreProductID:     productID,
		StoreProductPlanID: basePlan,
		EntitlementID:      entitlementID,
		State:              state,
		WillRenew:          reconcile.NormalizeWillRenew(state, ent.WillRenew),
		Environment:        enums.EnvironmentFromSandboxFlag(ent.IsSandbox),
		ManagementURL:      managementURL,
		PurchasedAt:        purchasedAt,
		ExpiresAt:          expiresAt,
		RawPayload:         raw,
	}
}
