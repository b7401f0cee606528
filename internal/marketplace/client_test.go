package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Resolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/saas/subscriptions/resolve" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Marketplace-Token"); got != "abc+def" {
			t.Errorf("expected token header abc+def, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer mk_test" {
			t.Errorf("expected bearer credential, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "S1",
			"subscriptionName": "Contoso OCR",
			"subscription": {
				"id": "S1",
				"name": "Contoso OCR",
				"planId": "P1",
				"saasSubscriptionStatus": "Subscribed",
				"beneficiaryTenantId": "T1"
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mk_test", time.Second)
	resolved, err := c.Resolve(context.Background(), "abc+def")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if resolved.ID != "S1" {
		t.Errorf("expected id S1, got %s", resolved.ID)
	}
	if resolved.Subscription.PlanID != "P1" {
		t.Errorf("expected plan P1, got %s", resolved.Subscription.PlanID)
	}
	if resolved.Subscription.TenantID != "T1" {
		t.Errorf("expected tenant T1, got %s", resolved.Subscription.TenantID)
	}
}

func TestClient_ListPlans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/saas/subscriptions/S1/listAvailablePlans" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"plans": [
			{"planId": "P1", "displayName": "Basic", "meteringDimensions": [{"id": "d1"}, {"id": "d2"}]},
			{"planId": "P2", "displayName": "Premium", "meteringDimensions": []}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	plans, err := c.ListPlans(context.Background(), "S1")
	if err != nil {
		t.Fatalf("ListPlans failed: %v", err)
	}

	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].PlanID != "P1" || plans[0].DisplayName != "Basic" {
		t.Errorf("unexpected first plan %+v", plans[0])
	}
	// Declared dimension order must survive the round trip.
	if len(plans[0].Dimensions) != 2 || plans[0].Dimensions[0].ID != "d1" {
		t.Errorf("expected dimensions [d1 d2] in order, got %+v", plans[0].Dimensions)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Resolve(context.Background(), "stale")
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestClient_Cancellation(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := NewClient(srv.URL, "", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Resolve(ctx, "tok"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
