/**
 * @description
 * This package provides a client for the platform fee service. Fee computation
 * is a pure lookup: given an amount, transfer category, and payment channel it
 * returns the fee and total debit. The transfer-service calls it exactly once,
 * at confirmation time; the result is frozen into the TransferRequest.
 */
package feeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the fee service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new fee service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type computeRequest struct {
	Amount   int64  `json:"amount"`
	Category string `json:"category"`
	Channel  string `json:"channel"`
}

type computeResponse struct {
	Fee        int64 `json:"fee"`
	TotalDebit int64 `json:"total_debit"`
}

// Compute returns the fee and total debit for one prospective transfer.
func (c *Client) Compute(ctx context.Context, amount int64, category, channel string) (int64, int64, error) {
	if c.baseURL == "" {
		return 0, 0, fmt.Errorf("fee service base url is empty")
	}

	payload := computeRequest{Amount: amount, Category: category, Channel: channel}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal fee request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/fees/compute", bytes.NewBuffer(body))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create fee request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to execute fee request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, 0, fmt.Errorf("fee service returned error status %d", resp.StatusCode)
	}

	var response computeResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, 0, fmt.Errorf("failed to decode fee response: %w", err)
	}
	return response.Fee, response.TotalDebit, nil
}
