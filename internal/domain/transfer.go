/**
 * @description
 * This file defines the core domain models for the transfer-service.
 * These structs represent the transfer intent, recipient verification results,
 * saved beneficiaries, and the terminal outcome record consumed by the dashboard.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit, which avoids floating-point inaccuracies with financial data.
 * - A TransferRequest is frozen at confirmation time: its fee and total debit are
 *   computed once and must never be recomputed afterwards, so the total the user
 *   confirms is the total that is withheld.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferCategory identifies how a transfer is routed.
type TransferCategory string

const (
	CategorySelfAccount  TransferCategory = "self_account"
	CategoryExternalBank TransferCategory = "external_bank"
	CategoryPeerToPeer   TransferCategory = "peer_to_peer"
)

// Valid reports whether the category is one of the known routing categories.
func (c TransferCategory) Valid() bool {
	switch c {
	case CategorySelfAccount, CategoryExternalBank, CategoryPeerToPeer:
		return true
	}
	return false
}

// BankRecipient is the destination for self_account and external_bank transfers.
type BankRecipient struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// PeerRecipient is the destination for peer_to_peer transfers.
type PeerRecipient struct {
	PlatformAccountID string `json:"platform_account_id"`
	DisplayName       string `json:"display_name"`
}

// TransferRequest is the user's transfer intent, frozen at confirmation time.
// It is consumed exactly once by the orchestrator and then discarded; a retry
// after a failed attempt is a new request with a new ID.
type TransferRequest struct {
	ID            uuid.UUID        `json:"id"`
	OwnerID       uuid.UUID        `json:"owner_id"`
	Category      TransferCategory `json:"category"`
	Amount        int64            `json:"amount"` // minor units
	Narration     string           `json:"narration"`
	Bank          *BankRecipient   `json:"bank,omitempty"`
	Peer          *PeerRecipient   `json:"peer,omitempty"`
	Fee           int64            `json:"fee"`         // minor units, fixed at confirmation
	TotalDebit    int64            `json:"total_debit"` // amount + fee, fixed at confirmation
	SaveRecipient bool             `json:"save_recipient"`
}

// WithholdIdempotencyKey derives the deterministic idempotency key for the
// withhold leg of a request. A client retry of the same frozen request
// produces the same key, so the gateway can recognize and ignore duplicates.
func (r *TransferRequest) WithholdIdempotencyKey() string {
	return uuid.NewSHA1(r.ID, []byte("withhold")).String()
}

// RefundIdempotencyKey derives the refund-leg key of the same family, so a
// refund is never issued twice for the same failed attempt.
func (r *TransferRequest) RefundIdempotencyKey() string {
	return RefundIdempotencyKeyFor(r.ID)
}

// RefundIdempotencyKeyFor recomputes the refund key from a request ID alone.
// The reconciliation sweep uses this to re-drive a pending refund with the
// exact key the original attempt used.
func RefundIdempotencyKeyFor(requestID uuid.UUID) string {
	return uuid.NewSHA1(requestID, []byte("refund")).String()
}

// VerificationStatus is the state of one recipient lookup.
type VerificationStatus string

const (
	VerificationPending         VerificationStatus = "pending"
	VerificationVerified        VerificationStatus = "verified"
	VerificationNotFound        VerificationStatus = "not_found"
	VerificationSelfReferential VerificationStatus = "self_referential"
	VerificationError           VerificationStatus = "error"
)

// RecipientVerification is the result of one AccountResolver lookup. It is
// only meaningful while QueryKey still matches the current input; any edit to
// the underlying field invalidates prior results.
type RecipientVerification struct {
	QueryKey          string             `json:"query_key"`
	ResolvedName      string             `json:"resolved_name,omitempty"`
	PlatformAccountID string             `json:"platform_account_id,omitempty"`
	Status            VerificationStatus `json:"status"`
}

// SavedRecipient is a persisted beneficiary or external account. It is created
// only after a successful transfer when the user opted in, never automatically.
type SavedRecipient struct {
	ID                uuid.UUID        `json:"id"`
	OwnerID           uuid.UUID        `json:"owner_id"`
	Category          TransferCategory `json:"category"`
	BankCode          string           `json:"bank_code,omitempty"`
	AccountNumber     string           `json:"account_number,omitempty"`
	AccountName       string           `json:"account_name,omitempty"`
	PlatformAccountID string           `json:"platform_account_id,omitempty"`
	DisplayName       string           `json:"display_name,omitempty"`
	IsDefault         bool             `json:"is_default"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// OutcomeState is the terminal state of one orchestration run.
type OutcomeState string

const (
	OutcomeSucceeded           OutcomeState = "succeeded"
	OutcomeFailedAndRefunded   OutcomeState = "failed_and_refunded"
	OutcomeFailedRefundPending OutcomeState = "failed_refund_pending"
	OutcomeFailedNoDebit       OutcomeState = "failed_no_debit"
)

// TransferOutcome is the audit record of one orchestration run, written once
// per TransferRequest. The only sanctioned mutation is the reconciliation
// sweep settling failed_refund_pending to failed_and_refunded.
type TransferOutcome struct {
	RequestID        uuid.UUID        `json:"request_id"`
	OwnerID          uuid.UUID        `json:"owner_id"`
	Category         TransferCategory `json:"category"`
	State            OutcomeState     `json:"state"`
	Amount           int64            `json:"amount"`
	Fee              int64            `json:"fee"`
	TotalDebit       int64            `json:"total_debit"`
	GatewayReference *string          `json:"gateway_reference,omitempty"`
	FailureReason    *string          `json:"failure_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// SenderSnapshot is the caller's own account identity at validation time.
// The validator is a pure function over the request and this snapshot; the
// snapshot is fetched from the account service, never from the request body.
type SenderSnapshot struct {
	OwnerID             uuid.UUID `json:"owner_id"`
	PlatformAccountID   string    `json:"platform_account_id"`
	WalletAccountNumber string    `json:"wallet_account_number"` // virtual account backing the wallet
	PayoutBankCode      string    `json:"payout_bank_code"`
	PayoutAccountNumber string    `json:"payout_account_number"`
	PayoutAccountName   string    `json:"payout_account_name"`
}

// PayoutConfigured reports whether the sender's own payout account is fully
// set up, which self_account transfers require.
func (s SenderSnapshot) PayoutConfigured() bool {
	return s.PayoutBankCode != "" && s.PayoutAccountNumber != "" && s.PayoutAccountName != ""
}

// FeeQuote is the fee calculator's answer for one amount/category/channel.
type FeeQuote struct {
	Fee        int64 `json:"fee"`         // minor units
	TotalDebit int64 `json:"total_debit"` // minor units
}
