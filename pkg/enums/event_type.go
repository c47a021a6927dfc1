package enums

// WebhookEventType enumerates the billing aggregator's lifecycle event types
// the engine assigns explicit semantics to. Any other type falls through to
// the default handling in the state table.
type WebhookEventType string

const (
	WebhookEventInitialPurchase      WebhookEventType = "INITIAL_PURCHASE"
	WebhookEventRenewal              WebhookEventType = "RENEWAL"
	WebhookEventUncancellation       WebhookEventType = "UNCANCELLATION"
	WebhookEventBillingIssueResolved WebhookEventType = "BILLING_ISSUE_RESOLVED"
	WebhookEventCancellation         WebhookEventType = "CANCELLATION"
	WebhookEventExpiration           WebhookEventType = "EXPIRATION"
)

// String implements fmt.Stringer.
func (t WebhookEventType) String() string {
	return string(t)
}
