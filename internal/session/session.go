package session

import "context"

// Context is the per-session billing context established by a successful
// purchase-token resolution. All three fields are set together by the
// resolver; a partially resolved session leaves the later fields empty.
type Context struct {
	SubscriptionID string `json:"subscription_id"`
	PlanID         string `json:"plan_id"`
	DimensionID    string `json:"dimension_id"`
}

// Complete reports whether every field required for usage recording is set.
// The recorder treats an incomplete context as "not resolved" and skips.
func (c Context) Complete() bool {
	return c.SubscriptionID != "" && c.PlanID != "" && c.DimensionID != ""
}

// Store is the session context store: short-lived state keyed by session id,
// written by the resolver and read by the usage recorder. Implementations
// must serialize writes per key.
type Store interface {
	Get(ctx context.Context, key string) (Context, bool, error)
	Put(ctx context.Context, key string, sc Context) error
	Delete(ctx context.Context, key string) error
}
