/**
 * @description
 * This package provides a client for communicating with the account service.
 * The transfer-service never stores account profiles itself; it fetches a
 * point-in-time snapshot of the sender's own identity (wallet account number,
 * platform id, configured payout account) for validation and self-transfer
 * detection.
 */
package profileclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/payvault/transfer-service/internal/domain"
)

// Client is a client for the account service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new account service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type transferProfileResponse struct {
	PlatformAccountID   string `json:"platform_account_id"`
	WalletAccountNumber string `json:"wallet_account_number"`
	PayoutBankCode      string `json:"payout_bank_code"`
	PayoutAccountNumber string `json:"payout_account_number"`
	PayoutAccountName   string `json:"payout_account_name"`
}

// GetTransferProfile fetches the sender snapshot used for transfer validation.
func (c *Client) GetTransferProfile(ctx context.Context, ownerID uuid.UUID) (*domain.SenderSnapshot, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("account service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/accounts/%s/transfer-profile", c.baseURL, ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to account service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("account service returned error status %d", resp.StatusCode)
	}

	var body transferProfileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &domain.SenderSnapshot{
		OwnerID:             ownerID,
		PlatformAccountID:   body.PlatformAccountID,
		WalletAccountNumber: body.WalletAccountNumber,
		PayoutBankCode:      body.PayoutBankCode,
		PayoutAccountNumber: body.PayoutAccountNumber,
		PayoutAccountName:   body.PayoutAccountName,
	}, nil
}
