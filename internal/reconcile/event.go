package reconcile

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/skoolhub/entitlement-engine/pkg/enums"
)

// Source identifies which ingress path produced an event.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceSync    Source = "sync"
)

// Event is the normalized shape both ingress paths reduce to before
// reconciliation. Adapters own the translation from external payloads;
// the reconciler only ever sees this.
type Event struct {
	Source             Source
	Kind               string
	UserID             string
	Platform           enums.StorePlatform
	StoreProductID     string
	StoreProductPlanID *string
	TransactionID      *string
	EntitlementID      string
	State              enums.SubscriptionState
	WillRenew          bool
	Environment        enums.StoreEnvironment
	ManagementURL      *string
	PurchasedAt        *time.Time
	ExpiresAt          *time.Time
	RawPayload         json.RawMessage
}

// SplitStoreProductID splits a Play product identifier of the form
// "product:base-plan" into its parts. App Store identifiers never carry the
// colon, so they pass through with a nil base plan. Only the first colon
// separates; the remainder stays part of the base plan identifier.
func SplitStoreProductID(productID string) (string, *string) {
	product, basePlan, found := strings.Cut(productID, ":")
	if !found || basePlan == "" {
		return product, nil
	}
	return product, &basePlan
}
