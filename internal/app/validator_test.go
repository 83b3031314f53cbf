package app

import (
	"testing"

	"github.com/google/uuid"

	"github.com/payvault/transfer-service/internal/domain"
)

func testSender() domain.SenderSnapshot {
	return domain.SenderSnapshot{
		OwnerID:             uuid.New(),
		PlatformAccountID:   "acct_sender_001",
		WalletAccountNumber: "9000000001",
		PayoutBankCode:      "058",
		PayoutAccountNumber: "0123456789",
		PayoutAccountName:   "Ada Obi",
	}
}

func externalBankRequest(sender domain.SenderSnapshot) *domain.TransferRequest {
	return &domain.TransferRequest{
		ID:        uuid.New(),
		OwnerID:   sender.OwnerID,
		Category:  domain.CategoryExternalBank,
		Amount:    5000,
		Narration: "rent",
		Bank: &domain.BankRecipient{
			BankCode:      "044",
			AccountNumber: "1234567890",
			AccountName:   "Jane Doe",
		},
		Fee:        50,
		TotalDebit: 5050,
	}
}

func TestValidate(t *testing.T) {
	sender := testSender()
	v := NewValidator(100, 140, 10)

	longNarration := make([]byte, 141)
	for i := range longNarration {
		longNarration[i] = 'x'
	}

	tests := []struct {
		name     string
		mutate   func(req *domain.TransferRequest)
		wantOK   bool
		wantCode ValidationCode
	}{
		{
			name:   "well-formed external bank transfer passes",
			mutate: func(req *domain.TransferRequest) {},
			wantOK: true,
		},
		{
			name:     "amount below minimum is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Amount = 50 },
			wantCode: CodeAmountBelowMinimum,
		},
		{
			name:   "amount exactly at minimum is allowed",
			mutate: func(req *domain.TransferRequest) { req.Amount = 100; req.TotalDebit = 150 },
			wantOK: true,
		},
		{
			name:     "missing narration is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Narration = "" },
			wantCode: CodeNarrationRequired,
		},
		{
			name:     "narration over the limit is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Narration = string(longNarration) },
			wantCode: CodeNarrationTooLong,
		},
		{
			name:     "unknown category is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Category = "wire" },
			wantCode: CodeCategoryUnknown,
		},
		{
			name: "sender's own wallet account is rejected before recipient checks",
			mutate: func(req *domain.TransferRequest) {
				req.Bank.AccountNumber = sender.WalletAccountNumber
			},
			wantCode: CodeSelfTransferNotAllowed,
		},
		{
			name:     "missing bank recipient is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Bank = nil },
			wantCode: CodeRecipientMismatch,
		},
		{
			name:     "missing bank code is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Bank.BankCode = "" },
			wantCode: CodeInvalidRecipient,
		},
		{
			name:     "short account number is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Bank.AccountNumber = "123456789" },
			wantCode: CodeInvalidRecipient,
		},
		{
			name:     "non-numeric account number is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Bank.AccountNumber = "12345678ab" },
			wantCode: CodeInvalidRecipient,
		},
		{
			name:     "unresolved account name is rejected",
			mutate:   func(req *domain.TransferRequest) { req.Bank.AccountName = "" },
			wantCode: CodeInvalidRecipient,
		},
		{
			name:     "total debit must equal amount plus fee",
			mutate:   func(req *domain.TransferRequest) { req.TotalDebit = 5000 },
			wantCode: CodeTotalDebitMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := externalBankRequest(sender)
			tt.mutate(req)
			res := v.Validate(req, sender)
			if res.OK != tt.wantOK {
				t.Fatalf("expected ok=%t, got %t (code=%s message=%q)", tt.wantOK, res.OK, res.Code, res.Message)
			}
			if !tt.wantOK && res.Code != tt.wantCode {
				t.Fatalf("expected code=%s, got %s", tt.wantCode, res.Code)
			}
		})
	}
}

func TestValidate_SelfAccountRequiresConfiguredPayout(t *testing.T) {
	v := NewValidator(100, 140, 10)

	sender := testSender()
	sender.PayoutBankCode = ""

	req := &domain.TransferRequest{
		ID:        uuid.New(),
		OwnerID:   sender.OwnerID,
		Category:  domain.CategorySelfAccount,
		Amount:    2000,
		Narration: "savings top-up",
		Bank: &domain.BankRecipient{
			BankCode:      "058",
			AccountNumber: "0123456789",
			AccountName:   "Ada Obi",
		},
		Fee:        20,
		TotalDebit: 2020,
	}

	res := v.Validate(req, sender)
	if res.OK {
		t.Fatal("expected validation to fail for unconfigured payout account")
	}
	if res.Code != CodeIncompleteProfile {
		t.Fatalf("expected code=%s, got %s", CodeIncompleteProfile, res.Code)
	}
}

func TestValidate_PeerTransfer(t *testing.T) {
	v := NewValidator(100, 140, 10)
	sender := testSender()

	peerRequest := func(platformID string) *domain.TransferRequest {
		return &domain.TransferRequest{
			ID:         uuid.New(),
			OwnerID:    sender.OwnerID,
			Category:   domain.CategoryPeerToPeer,
			Amount:     1500,
			Narration:  "lunch",
			Peer:       &domain.PeerRecipient{PlatformAccountID: platformID, DisplayName: "Chidi N"},
			Fee:        0,
			TotalDebit: 1500,
		}
	}

	res := v.Validate(peerRequest("acct_recipient_002"), sender)
	if !res.OK {
		t.Fatalf("expected peer transfer to pass, got code=%s", res.Code)
	}

	res = v.Validate(peerRequest(""), sender)
	if res.Code != CodeRecipientNotFound {
		t.Fatalf("expected code=%s for unresolved peer, got %s", CodeRecipientNotFound, res.Code)
	}

	res = v.Validate(peerRequest(sender.PlatformAccountID), sender)
	if res.Code != CodeSelfTransferNotAllowed {
		t.Fatalf("expected code=%s for own platform account, got %s", CodeSelfTransferNotAllowed, res.Code)
	}
}
