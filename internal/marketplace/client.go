package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// tokenHeader carries the purchase token on resolve calls.
const tokenHeader = "X-Marketplace-Token"

// Client talks to the marketplace subscription fulfillment API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a fulfillment client for the given API base URL. The
// apiKey is sent as a bearer credential on every call.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Resolve redeems a purchase token for the subscription it was issued
// against. The token is passed as-is; normalization is the caller's job.
func (c *Client) Resolve(ctx context.Context, token string) (*ResolvedSubscription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/saas/subscriptions/resolve", nil)
	if err != nil {
		return nil, fmt.Errorf("building resolve request: %w", err)
	}
	req.Header.Set(tokenHeader, token)
	c.setAuth(req)

	var resolved ResolvedSubscription
	if err := c.do(req, &resolved); err != nil {
		return nil, fmt.Errorf("resolving purchase token: %w", err)
	}
	return &resolved, nil
}

// ListPlans returns every plan available on the subscription's offer,
// in the order the marketplace declares them.
func (c *Client) ListPlans(ctx context.Context, subscriptionID string) ([]Plan, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/saas/subscriptions/"+subscriptionID+"/listAvailablePlans", nil)
	if err != nil {
		return nil, fmt.Errorf("building list plans request: %w", err)
	}
	c.setAuth(req)

	var body struct {
		Plans []Plan `json:"plans"`
	}
	if err := c.do(req, &body); err != nil {
		return nil, fmt.Errorf("listing plans for subscription %s: %w", subscriptionID, err)
	}
	return body.Plans, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// do executes the request and decodes a JSON response into out. Non-2xx
// responses are returned as errors carrying the status and a body excerpt.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("marketplace API returned %d: %s", resp.StatusCode,
			strings.TrimSpace(string(excerpt)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
