package marketplace

// Subscription is a marketplace SaaS subscription as returned by the
// fulfillment API.
type Subscription struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PlanID   string `json:"planId"`
	Status   string `json:"saasSubscriptionStatus"`
	TenantID string `json:"beneficiaryTenantId"`
}

// ResolvedSubscription is the result of redeeming a purchase token.
type ResolvedSubscription struct {
	ID               string       `json:"id"`
	SubscriptionName string       `json:"subscriptionName"`
	Subscription     Subscription `json:"subscription"`
}

// Dimension is a billable metering dimension declared on a plan.
type Dimension struct {
	ID string `json:"id"`
}

// Plan is one of the plans available on a subscription's offer. Dimensions
// preserve the order declared by the marketplace; the first one is the
// dimension usage is billed against.
type Plan struct {
	PlanID      string      `json:"planId"`
	DisplayName string      `json:"displayName"`
	Dimensions  []Dimension `json:"meteringDimensions"`
}
