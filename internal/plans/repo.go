package plans

import (
	"context"

	"gorm.io/gorm"

	"github.com/skoolhub/entitlement-engine/pkg/db/models"
	"github.com/skoolhub/entitlement-engine/pkg/enums"
)

// Repository reads plan and store-product-mapping reference data. Both
// tables are maintained out-of-band by operators; the engine never writes
// them.
type Repository interface {
	FindPlanByID(ctx context.Context, id string) (*models.Plan, error)
	FindMapping(ctx context.Context, platform enums.StorePlatform, storeProductID string, storeProductPlanID *string) (*models.StoreProductMapping, error)
	ListMappingsForProduct(ctx context.Context, platform enums.StorePlatform, storeProductID string) ([]models.StoreProductMapping, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindPlanByID(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindMapping(ctx context.Context, platform enums.StorePlatform, storeProductID string, storeProductPlanID *string) (*models.StoreProductMapping, error) {
	query := r.db.WithContext(ctx).
		Where("platform = ?", platform).
		Where("store_product_id = ?", storeProductID)
	if storeProductPlanID != nil {
		query = query.Where("store_product_plan_id = ?", *storeProductPlanID)
	} else {
		query = query.Where("store_product_plan_id IS NULL")
	}

	var mapping models.StoreProductMapping
	if err := query.First(&mapping).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *repository) ListMappingsForProduct(ctx context.Context, platform enums.StorePlatform, storeProductID string) ([]models.StoreProductMapping, error) {
	var mappings []models.StoreProductMapping
	if err := r.db.WithContext(ctx).
		Where("platform = ?", platform).
		Where("store_product_id = ?", storeProductID).
		Order("store_product_plan_id ASC").
		Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}
