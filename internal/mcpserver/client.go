package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the configuration for connecting to the payments platform.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // API key, e.g. "sk_..."
}

// PaymentsClient is a pure HTTP client for the payments platform API.
type PaymentsClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewPaymentsClient creates a new client for the payments platform.
func NewPaymentsClient(cfg Config) *PaymentsClient {
	return &PaymentsClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// get makes an authenticated GET request and returns the response body.
func (c *PaymentsClient) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetTransaction returns a single transaction.
func (c *PaymentsClient) GetTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/transactions/"+id)
}

// GetWallet returns a user's wallet balance.
func (c *PaymentsClient) GetWallet(ctx context.Context, userID string) (json.RawMessage, error) {
	return c.get(ctx, "/v1/users/"+userID+"/wallet")
}

// ListDisputes returns open disputes.
func (c *PaymentsClient) ListDisputes(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/v1/admin/disputes")
}

// GetStatusSummary returns aggregated transaction totals.
func (c *PaymentsClient) GetStatusSummary(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/v1/admin/transactions/summary")
}
