// Package resolver turns a marketplace purchase token into per-session
// billing context: subscription, plan, and metering dimension.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alecgard/gabelle/internal/marketplace"
	"github.com/alecgard/gabelle/internal/session"
)

// ErrEmptyToken is returned for an empty or blank purchase token. No external
// call is made in that case.
var ErrEmptyToken = errors.New("resolver: purchase token must not be empty")

// Fulfillment is the marketplace collaborator the resolver depends on.
type Fulfillment interface {
	Resolve(ctx context.Context, token string) (*marketplace.ResolvedSubscription, error)
	ListPlans(ctx context.Context, subscriptionID string) ([]marketplace.Plan, error)
}

// Metrics is an optional interface for observing resolution outcomes.
type Metrics interface {
	IncResolution(outcome string)
}

// Resolution is the display model of a successful token resolution. The
// usage recorder never reads this; it reads the session context the resolver
// writes as a side effect.
type Resolution struct {
	SubscriptionID    string `json:"subscription_id"`
	SubscriptionName  string `json:"subscription_name"`
	FulfillmentStatus string `json:"fulfillment_status"`
	PlanName          string `json:"plan_name"`
	TenantID          string `json:"tenant_id"`
	PurchaseToken     string `json:"purchase_token"`
}

// Details is the full resolution view for the details page: the resolved
// subscription plus every plan available on its offer.
type Details struct {
	Resolved *marketplace.ResolvedSubscription `json:"resolved"`
	Plans    []marketplace.Plan                `json:"plans"`
}

// Resolver resolves purchase tokens and maintains session billing context.
type Resolver struct {
	fulfillment Fulfillment
	sessions    session.Store
	metrics     Metrics
}

// New creates a Resolver.
func New(fulfillment Fulfillment, sessions session.Store) *Resolver {
	return &Resolver{fulfillment: fulfillment, sessions: sessions}
}

// SetMetrics sets the optional metrics sink.
func (r *Resolver) SetMetrics(m Metrics) {
	r.metrics = m
}

// NormalizeToken repairs purchase tokens mangled by upstream transport:
// tokens are URL-safe-base64-like, and '+' characters arrive as spaces.
func NormalizeToken(token string) string {
	return strings.ReplaceAll(token, " ", "+")
}

// Resolve redeems the purchase token, selects the matching plan and its
// first metering dimension, and overwrites the session's billing context.
// An unmatched plan or a plan without dimensions is a soft failure: the
// context is still written (partially populated) and the display model is
// still returned, but later usage recording will skip.
func (r *Resolver) Resolve(ctx context.Context, sessionKey, token string) (*Resolution, error) {
	if strings.TrimSpace(token) == "" {
		r.count("empty_token")
		return nil, ErrEmptyToken
	}

	token = NormalizeToken(token)

	resolved, err := r.fulfillment.Resolve(ctx, token)
	if err != nil {
		r.count("resolve_error")
		return nil, fmt.Errorf("resolving subscription: %w", err)
	}

	plans, err := r.fulfillment.ListPlans(ctx, resolved.ID)
	if err != nil {
		r.count("plans_error")
		return nil, fmt.Errorf("listing subscription plans: %w", err)
	}

	sctx := session.Context{SubscriptionID: resolved.Subscription.ID}
	planName := ""
	for _, plan := range plans {
		if plan.PlanID != resolved.Subscription.PlanID {
			continue
		}
		planName = plan.DisplayName
		sctx.PlanID = plan.PlanID
		// Plans carry exactly one billable dimension in this system; the
		// first declared one wins.
		if len(plan.Dimensions) > 0 {
			sctx.DimensionID = plan.Dimensions[0].ID
		}
		break
	}

	// The context is overwritten even when plan matching failed, so a stale
	// fully-resolved context from an earlier token cannot bill new calls.
	if err := r.sessions.Put(ctx, sessionKey, sctx); err != nil {
		r.count("session_error")
		return nil, fmt.Errorf("storing session context: %w", err)
	}

	if sctx.Complete() {
		r.count("resolved")
	} else {
		r.count("partial")
		slog.Warn("purchase token resolved without billable plan context",
			"subscription_id", resolved.Subscription.ID,
			"plan_id", resolved.Subscription.PlanID,
			"matched_plan", sctx.PlanID != "",
		)
	}

	return &Resolution{
		SubscriptionID:    resolved.ID,
		SubscriptionName:  resolved.SubscriptionName,
		FulfillmentStatus: resolved.Subscription.Status,
		PlanName:          planName,
		TenantID:          resolved.Subscription.TenantID,
		PurchaseToken:     token,
	}, nil
}

// Describe resolves the token and returns the subscription together with all
// available plans. Unlike Resolve it has no session side effect.
func (r *Resolver) Describe(ctx context.Context, token string) (*Details, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrEmptyToken
	}

	token = NormalizeToken(token)

	resolved, err := r.fulfillment.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolving subscription: %w", err)
	}

	plans, err := r.fulfillment.ListPlans(ctx, resolved.ID)
	if err != nil {
		return nil, fmt.Errorf("listing subscription plans: %w", err)
	}

	return &Details{Resolved: resolved, Plans: plans}, nil
}

func (r *Resolver) count(outcome string) {
	if r.metrics != nil {
		r.metrics.IncResolution(outcome)
	}
}
