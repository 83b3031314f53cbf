/**
 * @description
 * This package provides a client for the ledger/wallet gateway that performs
 * the actual money movement: withholding funds from the sender, routing the
 * transfer over a bank rail or the internal ledger, and issuing compensating
 * refunds. It also exposes the gateway's account directory lookups used for
 * recipient verification.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors mapped from the gateway's error envelope. Callers branch on
// these to decide between the no-debit and refund failure paths.
var (
	ErrInvalidSecret      = errors.New("gateway: invalid transaction secret")
	ErrInsufficientFunds  = errors.New("gateway: insufficient funds")
	ErrGatewayUnavailable = errors.New("gateway: unavailable")
	ErrRecipientRejected  = errors.New("gateway: recipient rejected")
	ErrAccountNotFound    = errors.New("gateway: account not found")
)

// Client is a client for the transfer gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new gateway API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type withholdRequest struct {
	OwnerID        string `json:"owner_id"`
	Amount         int64  `json:"amount"`
	Secret         string `json:"secret"`
	IdempotencyKey string `json:"idempotency_key"`
}

type withholdResponse struct {
	Data struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

type routeRequest struct {
	Reference         string `json:"reference"`
	Rail              string `json:"rail"` // "bank" or "ledger"
	BankCode          string `json:"bank_code,omitempty"`
	AccountNumber     string `json:"account_number,omitempty"`
	PlatformAccountID string `json:"platform_account_id,omitempty"`
	Narration         string `json:"narration"`
}

type routeResponse struct {
	Data struct {
		Confirmation string `json:"confirmation"`
	} `json:"data"`
}

type refundRequest struct {
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
}

type refundResponse struct {
	Data struct {
		Confirmation string `json:"confirmation"`
	} `json:"data"`
}

// ErrorResponse represents an error envelope from the gateway API.
type ErrorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("gateway api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown gateway api error"
}

// sentinel maps the gateway's machine-readable error codes onto sentinel
// errors, keeping the verbatim detail available via %w wrapping.
func (e *ErrorResponse) sentinel() error {
	if len(e.Errors) == 0 {
		return e
	}
	switch e.Errors[0].Code {
	case "invalid_secret":
		return fmt.Errorf("%w: %s", ErrInvalidSecret, e.Errors[0].Detail)
	case "insufficient_funds":
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, e.Errors[0].Detail)
	case "recipient_rejected":
		return fmt.Errorf("%w: %s", ErrRecipientRejected, e.Errors[0].Detail)
	case "account_not_found":
		return fmt.Errorf("%w: %s", ErrAccountNotFound, e.Errors[0].Detail)
	case "unavailable":
		return fmt.Errorf("%w: %s", ErrGatewayUnavailable, e.Errors[0].Detail)
	}
	return e
}

// Withhold removes totalDebit from the sender's available balance, pending
// completion of the transfer. The gateway verifies the secret PIN and dedupes
// on the idempotency key; the returned reference addresses the held funds.
func (c *Client) Withhold(ctx context.Context, ownerID uuid.UUID, amount int64, secret, idempotencyKey string) (string, error) {
	payload := withholdRequest{
		OwnerID:        ownerID.String(),
		Amount:         amount,
		Secret:         secret,
		IdempotencyKey: idempotencyKey,
	}
	var resp withholdResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/transfers/withhold", payload, &resp); err != nil {
		return "", err
	}
	return resp.Data.Reference, nil
}

// RouteExternal moves withheld funds to an external bank account over the bank rail.
func (c *Client) RouteExternal(ctx context.Context, reference, bankCode, accountNumber, narration string) (string, error) {
	payload := routeRequest{
		Reference:     reference,
		Rail:          "bank",
		BankCode:      bankCode,
		AccountNumber: accountNumber,
		Narration:     narration,
	}
	var resp routeResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/transfers/route", payload, &resp); err != nil {
		return "", err
	}
	return resp.Data.Confirmation, nil
}

// RouteInternal moves withheld funds to another platform wallet on the internal ledger.
func (c *Client) RouteInternal(ctx context.Context, reference, platformAccountID, narration string) (string, error) {
	payload := routeRequest{
		Reference:         reference,
		Rail:              "ledger",
		PlatformAccountID: platformAccountID,
		Narration:         narration,
	}
	var resp routeResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/transfers/route", payload, &resp); err != nil {
		return "", err
	}
	return resp.Data.Confirmation, nil
}

// Refund returns withheld funds to the sender after a failed routing leg.
// The idempotency key belongs to the same family as the original withhold,
// so the gateway never issues a refund twice for the same failed attempt.
func (c *Client) Refund(ctx context.Context, reference, idempotencyKey string) (string, error) {
	payload := refundRequest{
		Reference:      reference,
		IdempotencyKey: idempotencyKey,
	}
	var resp refundResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/transfers/refund", payload, &resp); err != nil {
		return "", err
	}
	return resp.Data.Confirmation, nil
}

type verifyAccountResponse struct {
	Data struct {
		AccountName string `json:"account_name"`
	} `json:"data"`
}

type platformLookupResponse struct {
	Data struct {
		PlatformAccountID string `json:"platform_account_id"`
		DisplayName       string `json:"display_name"`
	} `json:"data"`
}

// VerifyBankAccount resolves the display name for a bank account via the
// gateway's directory. Safe to call speculatively; never mutates money state.
func (c *Client) VerifyBankAccount(ctx context.Context, bankCode, accountNumber string) (string, error) {
	var resp verifyAccountResponse
	path := fmt.Sprintf("/api/v1/directory/verify-account/%s/%s", bankCode, accountNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Data.AccountName, nil
}

// LookupPlatformAccount resolves a platform handle or tag to a canonical
// platform account id and display name.
func (c *Client) LookupPlatformAccount(ctx context.Context, query string) (string, string, error) {
	var resp platformLookupResponse
	path := "/api/v1/directory/platform-accounts/" + query
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", "", err
	}
	return resp.Data.PlatformAccountID, resp.Data.DisplayName, nil
}

// do is a helper to execute gateway requests and decode the response envelope.
func (c *Client) do(ctx context.Context, method, path string, payload, target interface{}) error {
	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		reqBody = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-gateway-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Transport failures and timeouts are indistinguishable from an
		// unreachable gateway to the caller.
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			if resp.StatusCode >= 500 {
				return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
			}
			return fmt.Errorf("failed to decode gateway error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=gateway_client op=%s status=%d code=%q detail=%q", path, resp.StatusCode, firstErrorCode(errResp), firstErrorDetail(errResp))
		return errResp.sentinel()
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

func firstErrorCode(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Code
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
