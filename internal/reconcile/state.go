package reconcile

import "github.com/skoolhub/entitlement-engine/pkg/enums"

var webhookStateTable = map[enums.WebhookEventType]enums.SubscriptionState{
	enums.WebhookEventInitialPurchase:      enums.SubscriptionStateActive,
	enums.WebhookEventRenewal:              enums.SubscriptionStateActive,
	enums.WebhookEventUncancellation:       enums.SubscriptionStateActive,
	enums.WebhookEventBillingIssueResolved: enums.SubscriptionStateActive,
	enums.WebhookEventCancellation:         enums.SubscriptionStateCancelled,
	enums.WebhookEventExpiration:           enums.SubscriptionStateExpired,
}

// StateForWebhookType maps an aggregator lifecycle event type to the
// canonical state. Unknown types resolve to active; the second return lets
// callers log that the default kicked in. The aggregator adds event types
// over time and dropping them on the floor would silently desync users, so
// active is the deliberate safe default.
func StateForWebhookType(eventType string) (enums.SubscriptionState, bool) {
	if state, ok := webhookStateTable[enums.WebhookEventType(eventType)]; ok {
		return state, true
	}
	return enums.SubscriptionStateActive, false
}

// StateForEntitlement maps a snapshot's isActive flag to the canonical
// state. Snapshots carry no lifecycle history, so an inactive entitlement
// always lands on expired, never cancelled.
func StateForEntitlement(isActive bool) enums.SubscriptionState {
	if isActive {
		return enums.SubscriptionStateActive
	}
	return enums.SubscriptionStateExpired
}

// NormalizeWillRenew forces willRenew to false on any non-active state.
// A cancelled or expired subscription cannot renew regardless of what the
// source payload claims.
func NormalizeWillRenew(state enums.SubscriptionState, willRenew bool) bool {
	if state != enums.SubscriptionStateActive {
		return false
	}
	return willRenew
}
