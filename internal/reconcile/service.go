package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skoolhub/entitlement-engine/internal/subscriptions"
	"github.com/skoolhub/entitlement-engine/pkg/db"
	"github.com/skoolhub/entitlement-engine/pkg/db/models"
	"github.com/skoolhub/entitlement-engine/pkg/enums"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
	"github.com/skoolhub/entitlement-engine/pkg/logger"
)

// UserRepository is the slice of the users repository the reconciler needs.
type UserRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// PlanResolver resolves a store product reference to its plan mapping.
type PlanResolver interface {
	Resolve(ctx context.Context, platform enums.StorePlatform, storeProductID string, storeProductPlanID *string) (*models.StoreProductMapping, error)
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier is told about committed reconciliation outcomes. Implementations
// must not fail the request path.
type Notifier interface {
	SubscriptionReconciled(ctx context.Context, sub *models.Subscription, created bool)
}

// ServiceParams groups dependencies for the reconciler.
type ServiceParams struct {
	Users         UserRepository
	Resolver      PlanResolver
	Subscriptions subscriptions.Repository
	Tx            TxRunner
	Notifier      Notifier
	Logger        *logger.Logger
}

// Service applies normalized entitlement events to the subscriptions table,
// upserting at most one row per event.
type Service struct {
	users         UserRepository
	resolver      PlanResolver
	subscriptions subscriptions.Repository
	tx            TxRunner
	notifier      Notifier
	logg          *logger.Logger
}

// Result describes the row an event landed on.
type Result struct {
	Subscription *models.Subscription
	Created      bool
}

// NewService builds a reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, errors.New("users repository is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("plan resolver is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscriptions repository is required")
	}
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	return &Service{
		users:         params.Users,
		resolver:      params.Resolver,
		subscriptions: params.Subscriptions,
		tx:            params.Tx,
		notifier:      params.Notifier,
		logg:          params.Logger,
	}, nil
}

// Process reconciles one normalized event. Resolution order: the row that
// already carries the event's store transaction id, then the user's active
// row on the same platform, then a fresh insert. Replaying the same event
// converges on the same row with the same values.
func (s *Service) Process(ctx context.Context, event Event) (*Result, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	exists, err := s.users.Exists(ctx, event.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("user %s not found", event.UserID))
	}

	mapping, err := s.resolver.Resolve(ctx, event.Platform, event.StoreProductID, event.StoreProductPlanID)
	if err != nil {
		return nil, err
	}

	entitlementID := event.EntitlementID
	if entitlementID == "" {
		entitlementID = mapping.EntitlementID
	}

	result, err := s.persist(ctx, event, mapping.PlanID, entitlementID)
	if err != nil && db.IsUniqueViolation(err, "") {
		// Lost a concurrent-insert race; the winner's row is now visible,
		// so a second pass lands on it as an update.
		if s.logg != nil {
			s.logg.Warn(ctx, "concurrent insert detected, retrying reconciliation")
		}
		result, err = s.persist(ctx, event, mapping.PlanID, entitlementID)
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist subscription")
	}

	if s.notifier != nil {
		s.notifier.SubscriptionReconciled(ctx, result.Subscription, result.Created)
	}
	return result, nil
}

func (s *Service) persist(ctx context.Context, event Event, planID, entitlementID string) (*Result, error) {
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.subscriptions.WithTx(tx)

		if event.TransactionID != nil {
			sub, err := repo.FindByTransactionID(ctx, *event.TransactionID)
			if err != nil {
				return err
			}
			if sub != nil {
				applyEvent(sub, event, planID, entitlementID)
				if err := repo.Update(ctx, sub); err != nil {
					return err
				}
				result = &Result{Subscription: sub}
				return nil
			}
		}

		sub, err := repo.FindActive(ctx, event.UserID, event.Platform)
		if err != nil {
			return err
		}
		if sub != nil {
			applyEvent(sub, event, planID, entitlementID)
			if err := repo.Update(ctx, sub); err != nil {
				return err
			}
			result = &Result{Subscription: sub}
			return nil
		}

		fresh := newSubscription(event, planID, entitlementID)
		if err := repo.Create(ctx, fresh); err != nil {
			return err
		}
		result = &Result{Subscription: fresh, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateEvent(event Event) error {
	fields := map[string]string{}
	if event.UserID == "" {
		fields["userId"] = "required"
	}
	if event.StoreProductID == "" {
		fields["storeProductId"] = "required"
	}
	if !event.Platform.IsValid() {
		fields["platform"] = fmt.Sprintf("unsupported value %q", event.Platform)
	}
	if !event.State.IsValid() {
		fields["state"] = fmt.Sprintf("unsupported value %q", event.State)
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid entitlement event").
			WithDetails(map[string]any{"fields": fields})
	}
	return nil
}

func applyEvent(sub *models.Subscription, event Event, planID, entitlementID string) {
	sub.PlanID = planID
	sub.State = event.State
	sub.StorePlatform = event.Platform
	sub.StoreProductID = event.StoreProductID
	sub.StoreProductPlanID = event.StoreProductPlanID
	sub.EntitlementID = entitlementID
	sub.WillRenew = NormalizeWillRenew(event.State, event.WillRenew)
	sub.StoreEnvironment = event.Environment
	if event.TransactionID != nil {
		sub.StoreTransactionID = event.TransactionID
	}
	if event.ManagementURL != nil {
		sub.ManagementURL = event.ManagementURL
	}
	if event.PurchasedAt != nil {
		sub.LatestPurchaseAt = event.PurchasedAt
	}
	if event.ExpiresAt != nil {
		sub.ExpiresAt = event.ExpiresAt
	}
	if len(event.RawPayload) > 0 {
		sub.StoreReceiptData = event.RawPayload
	}
	sub.UpdatedAt = time.Now().UTC()
}

func newSubscription(event Event, planID, entitlementID string) *models.Subscription {
	sub := &models.Subscription{
		ID:     uuid.New(),
		UserID: event.UserID,
	}
	applyEvent(sub, event, planID, entitlementID)
	return sub
}
