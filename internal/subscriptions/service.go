package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skoolhub/entitlement-engine/pkg/db/models"
	"github.com/skoolhub/entitlement-engine/pkg/enums"
	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
)

// UserFinder is the slice of the users repository the read side needs.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// PlanFinder resolves plan reference data for display.
type PlanFinder interface {
	FindPlanByID(ctx context.Context, id string) (*models.Plan, error)
}

// ServiceParams groups dependencies for the subscription read service.
type ServiceParams struct {
	Repo  Repository
	Users UserFinder
	Plans PlanFinder
}

// Service serves the read side of the subscriptions table: the host
// application asks it what a user is entitled to.
type Service struct {
	repo  Repository
	users UserFinder
	plans PlanFinder
}

// NewService builds a subscription read service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Users == nil {
		return nil, errors.New("users repository is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans repository is required")
	}
	return &Service{
		repo:  params.Repo,
		users: params.Users,
		plans: params.Plans,
	}, nil
}

// UserSubscription is the read-side view of one subscription row.
type UserSubscription struct {
	ID               uuid.UUID               `json:"id"`
	PlanID           string                  `json:"planId"`
	PlanName         string                  `json:"planName,omitempty"`
	State            enums.SubscriptionState `json:"state"`
	StorePlatform    enums.StorePlatform     `json:"storePlatform"`
	StoreProductID   string                  `json:"storeProductId"`
	EntitlementID    string                  `json:"entitlementId"`
	WillRenew        bool                    `json:"willRenew"`
	StoreEnvironment enums.StoreEnvironment  `json:"storeEnvironment"`
	ManagementURL    *string                 `json:"managementUrl,omitempty"`
	LatestPurchaseAt *time.Time              `json:"latestPurchaseAt,omitempty"`
	ExpiresAt        *time.Time              `json:"expiresAt,omitempty"`
}

// ListForUser returns every subscription row recorded for the user, newest
// first, with plan names joined in.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]UserSubscription, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("user %s not found", userID))
	}

	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list subscriptions")
	}

	planNames := map[string]string{}
	out := make([]UserSubscription, 0, len(rows))
	for _, row := range rows {
		name, seen := planNames[row.PlanID]
		if !seen {
			plan, err := s.plans.FindPlanByID(ctx, row.PlanID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup plan")
			}
			if plan != nil {
				name = plan.Name
			}
			planNames[row.PlanID] = name
		}

		out = append(out, UserSubscription{
			ID:               row.ID,
			PlanID:           row.PlanID,
			PlanName:         name,
			State:            row.State,
			StorePlatform:    row.StorePlatform,
			StoreProductID:   row.StoreProductID,
			EntitlementID:    row.EntitlementID,
			WillRenew:        row.WillRenew,
			StoreEnvironment: row.StoreEnvironment,
			ManagementURL:    row.ManagementURL,
			LatestPurchaseAt: row.LatestPurchaseAt,
			ExpiresAt:        row.ExpiresAt,
		})
	}
	return out, nil
}
