package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/skoolhub/entitlement-engine/pkg/enums"
)

// StoreProductMapping maps a store-specific SKU (and, on Android, an optional
// base plan) to an internal Plan. Maintained out-of-band by operators;
// read-only to the engine. A null store_product_plan_id row is the generic
// fallback matching any base plan of that product.
type StoreProductMapping struct {
	ID                 uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Platform           enums.StorePlatform `gorm:"column:platform;type:store_platform;not null;uniqueIndex:idx_mapping_product,priority:1"`
	StoreProductID     string              `gorm:"column:store_product_id;not null;uniqueIndex:idx_mapping_product,priority:2"`
	StoreProductPlanID *string             `gorm:"column:store_product_plan_id;uniqueIndex:idx_mapping_product,priority:3"`
	EntitlementID      string              `gorm:"column:entitlement_id;not null"`
	PlanID             string              `gorm:"column:plan_id;not null"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the plural form GORM would otherwise guess.
func (StoreProductMapping) TableName() string {
	return "store_product_mappings"
}
