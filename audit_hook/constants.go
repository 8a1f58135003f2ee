package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"

	// Subscription actions
	ActionSubscribed           = "subscription.subscribed"
	ActionDeposited            = "subscription.deposited"
	ActionUnsubscribed         = "subscription.unsubscribed"
	ActionSubscriptionCanceled = "subscription.canceled"

	// Funds actions
	ActionCharged        = "funds.charged"
	ActionWithdrawn      = "funds.withdrawn"
	ActionTransferFailed = "funds.transfer_failed"

	// Billing actions
	ActionBillingCycle = "billing.cycle"
)

// Resource constants for audit events.
const (
	ResourceAccount      = "account"
	ResourceSubscription = "subscription"
	ResourceTransfer     = "transfer"
	ResourceBilling      = "billing"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
