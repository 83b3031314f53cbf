/**
 * @description
 * This file contains the transfer validator: the ordered structural and
 * business-rule checks a transfer request must pass before any money movement
 * is attempted. The validator is a pure function over the request and the
 * caller's own account snapshot; it performs no I/O and never consults the
 * resolver, so a stale "verified" name can never mask a self-transfer.
 */

package app

import (
	"fmt"

	"github.com/payvault/transfer-service/internal/domain"
)

// ValidationCode identifies why a transfer request was rejected.
type ValidationCode string

const (
	ValidationOK               ValidationCode = "ok"
	CodeAmountBelowMinimum     ValidationCode = "amount_below_minimum"
	CodeNarrationRequired      ValidationCode = "narration_required"
	CodeNarrationTooLong       ValidationCode = "narration_too_long"
	CodeCategoryUnknown        ValidationCode = "category_unknown"
	CodeRecipientMismatch      ValidationCode = "recipient_mismatch"
	CodeIncompleteProfile      ValidationCode = "incomplete_profile"
	CodeInvalidRecipient       ValidationCode = "invalid_recipient"
	CodeRecipientNotFound      ValidationCode = "recipient_not_found"
	CodeSelfTransferNotAllowed ValidationCode = "self_transfer_not_allowed"
	CodeTotalDebitMismatch     ValidationCode = "total_debit_mismatch"
)

// ValidationResult reports the first failed check, or OK.
type ValidationResult struct {
	OK      bool           `json:"ok"`
	Code    ValidationCode `json:"code"`
	Message string         `json:"message,omitempty"`
}

func pass() ValidationResult {
	return ValidationResult{OK: true, Code: ValidationOK}
}

func fail(code ValidationCode, message string) ValidationResult {
	return ValidationResult{OK: false, Code: code, Message: message}
}

// ValidationError wraps a failed ValidationResult as an error for the
// orchestrator's defensive re-validation path.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("transfer validation failed: %s (%s)", e.Result.Code, e.Result.Message)
}

// Validator enforces the platform's transfer constraints.
type Validator struct {
	MinAmount           int64 // minor units
	NarrationMaxLength  int
	AccountNumberLength int
}

// NewValidator creates a validator with the platform limits.
func NewValidator(minAmount int64, narrationMaxLength, accountNumberLength int) *Validator {
	return &Validator{
		MinAmount:           minAmount,
		NarrationMaxLength:  narrationMaxLength,
		AccountNumberLength: accountNumberLength,
	}
}

// Validate runs the checks in order and stops at the first failure.
// The self-transfer check uses the raw recipient input and runs before any
// category-specific resolution checks, so it cannot be bypassed by a cached
// verification for the same key.
func (v *Validator) Validate(req *domain.TransferRequest, sender domain.SenderSnapshot) ValidationResult {
	if req.Amount < v.MinAmount {
		return fail(CodeAmountBelowMinimum, fmt.Sprintf("amount must be at least %d", v.MinAmount))
	}
	if req.Narration == "" {
		return fail(CodeNarrationRequired, "narration is required")
	}
	if len(req.Narration) > v.NarrationMaxLength {
		return fail(CodeNarrationTooLong, fmt.Sprintf("narration must be at most %d characters", v.NarrationMaxLength))
	}
	if !req.Category.Valid() {
		return fail(CodeCategoryUnknown, "unknown transfer category")
	}
	if res := v.checkSelfTransfer(req, sender); !res.OK {
		return res
	}

	switch req.Category {
	case domain.CategorySelfAccount:
		if !sender.PayoutConfigured() {
			return fail(CodeIncompleteProfile, "payout account is not fully configured")
		}
		if req.Bank == nil {
			return fail(CodeRecipientMismatch, "self-account transfer requires a bank recipient")
		}
	case domain.CategoryExternalBank:
		if req.Bank == nil {
			return fail(CodeRecipientMismatch, "external bank transfer requires a bank recipient")
		}
		if req.Bank.BankCode == "" || !v.wellFormedAccountNumber(req.Bank.AccountNumber) || req.Bank.AccountName == "" {
			return fail(CodeInvalidRecipient, "bank code, a well-formed account number, and a resolved account name are required")
		}
	case domain.CategoryPeerToPeer:
		if req.Peer == nil {
			return fail(CodeRecipientMismatch, "peer transfer requires a platform recipient")
		}
		if req.Peer.PlatformAccountID == "" {
			return fail(CodeRecipientNotFound, "recipient has not been resolved to a platform account")
		}
	}

	// The total the user confirmed must be the total that gets withheld.
	if req.TotalDebit != req.Amount+req.Fee {
		return fail(CodeTotalDebitMismatch, "total debit does not equal amount plus fee")
	}

	return pass()
}

// checkSelfTransfer rejects a recipient that matches the sender's own
// identity, comparing raw input only.
func (v *Validator) checkSelfTransfer(req *domain.TransferRequest, sender domain.SenderSnapshot) ValidationResult {
	if req.Bank != nil && sender.WalletAccountNumber != "" && req.Bank.AccountNumber == sender.WalletAccountNumber {
		return fail(CodeSelfTransferNotAllowed, "recipient account is the sender's own wallet account")
	}
	if req.Peer != nil && sender.PlatformAccountID != "" && req.Peer.PlatformAccountID == sender.PlatformAccountID {
		return fail(CodeSelfTransferNotAllowed, "recipient is the sender's own platform account")
	}
	return pass()
}

func (v *Validator) wellFormedAccountNumber(accountNumber string) bool {
	if len(accountNumber) != v.AccountNumberLength {
		return false
	}
	for _, c := range accountNumber {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
