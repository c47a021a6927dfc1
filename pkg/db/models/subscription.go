package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/skoolhub/entitlement-engine/pkg/enums"
)

// Subscription is the reconciled per-user subscription record. Rows are never
// deleted on expiration; they transition state in place so the purchase
// history stays auditable. The partial unique index on
// (user_id, store_platform) WHERE state = 'active' is what closes the
// concurrent-insert race; see the init migration.
type Subscription struct {
	ID                 uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             string                  `gorm:"column:user_id;not null;index"`
	PlanID             string                  `gorm:"column:plan_id;not null"`
	State              enums.SubscriptionState `gorm:"column:state;type:subscription_state;not null;default:'active'"`
	StorePlatform      enums.StorePlatform     `gorm:"column:store_platform;type:store_platform;not null"`
	StoreProductID     string                  `gorm:"column:store_product_id;not null"`
	StoreProductPlanID *string                 `gorm:"column:store_product_plan_id"`
	StoreTransactionID *string                 `gorm:"column:store_transaction_id;uniqueIndex:idx_subscriptions_transaction"`
	EntitlementID      string                  `gorm:"column:entitlement_id;not null"`
	WillRenew          bool                    `gorm:"column:will_renew;not null;default:false"`
	StoreEnvironment   enums.StoreEnvironment  `gorm:"column:store_environment;type:store_environment;not null;default:'PRODUCTION'"`
	ManagementURL      *string                 `gorm:"column:management_url"`
	LatestPurchaseAt   *time.Time              `gorm:"column:latest_purchase_at"`
	ExpiresAt          *time.Time              `gorm:"column:expires_at"`
	StoreReceiptData   json.RawMessage         `gorm:"column:store_receipt_data;type:jsonb"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
