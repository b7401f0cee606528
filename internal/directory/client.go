// Package directory looks up profile details for the authenticated principal
// in the external user directory.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// User is the directory profile of the current principal.
type User struct {
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
}

// Client talks to the user directory API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a directory client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// CurrentUser returns the profile of the principal identified by the bearer
// token. The directory owns the token's meaning; this client just forwards it.
func (c *Client) CurrentUser(ctx context.Context, bearer string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/me", nil)
	if err != nil {
		return nil, fmt.Errorf("building directory request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory API returned %d", resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decoding directory response: %w", err)
	}
	return &u, nil
}
