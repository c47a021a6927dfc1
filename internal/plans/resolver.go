package plans

import (
	"context"
	"errors"

	pkgerrors "github.com/skoolhub/entitlement-engine/pkg/errors"
	"github.com/skoolhub/entitlement-engine/pkg/enums"

	"github.com/skoolhub/entitlement-engine/pkg/db/models"
)

// ResolverParams groups dependencies for the mapping resolver.
type ResolverParams struct {
	Repo Repository
}

// Resolver turns a store product reference into the internal plan mapping
// that governs it. Resolution tries the exact (product, base plan) row
// first, then the product's generic row with a null base plan.
type Resolver struct {
	repo Repository
}

// NewResolver builds a mapping resolver.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Resolver{repo: params.Repo}, nil
}

// MappingRow is the shape of a known mapping surfaced in error details when
// resolution fails, so operators can see what configuration exists.
type MappingRow struct {
	StoreProductID     string  `json:"storeProductId"`
	StoreProductPlanID *string `json:"storeProductPlanId"`
	PlanID             string  `json:"planId"`
	EntitlementID      string  `json:"entitlementId"`
}

// Resolve returns the mapping for the given store product reference, or a
// typed error carrying diagnostic details when no row matches.
func (r *Resolver) Resolve(ctx context.Context, platform enums.StorePlatform, storeProductID string, storeProductPlanID *string) (*models.StoreProductMapping, error) {
	mapping, err := r.repo.FindMapping(ctx, platform, storeProductID, storeProductPlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup store product mapping")
	}
	if mapping != nil {
		return mapping, nil
	}

	if storeProductPlanID != nil {
		mapping, err = r.repo.FindMapping(ctx, platform, storeProductID, nil)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup fallback mapping")
		}
		if mapping != nil {
			return mapping, nil
		}
	}

	return nil, r.unmappedError(ctx, platform, storeProductID, storeProductPlanID)
}

func (r *Resolver) unmappedError(ctx context.Context, platform enums.StorePlatform, storeProductID string, storeProductPlanID *string) error {
	rows := []MappingRow{}
	existing, err := r.repo.ListMappingsForProduct(ctx, platform, storeProductID)
	if err == nil {
		for _, row := range existing {
			rows = append(rows, MappingRow{
				StoreProductID:     row.StoreProductID,
				StoreProductPlanID: row.StoreProductPlanID,
				PlanID:             row.PlanID,
				EntitlementID:      row.EntitlementID,
			})
		}
	}

	return pkgerrors.New(pkgerrors.CodeUnmappedProduct, "no plan mapping for store product").
		WithDetails(map[string]any{
			"platform":           platform.String(),
			"storeProductId":     storeProductID,
			"storeProductPlanId": storeProductPlanID,
			"existingRows":       rows,
		})
}
