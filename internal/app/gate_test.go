package app

import (
	"errors"
	"testing"

	"github.com/payvault/transfer-service/internal/domain"
)

func TestConfirmationGate_HappyPath(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)
	v := NewValidator(100, 140, 10)

	gate, res := NewConfirmationGate(req, sender, v, 4)
	if gate == nil {
		t.Fatalf("expected gate to open, got validation failure code=%s", res.Code)
	}
	if gate.State() != GateAwaitingReview {
		t.Fatalf("expected state=%s, got %s", GateAwaitingReview, gate.State())
	}

	summary := gate.Summary()
	if summary.Amount != 5000 || summary.Fee != 50 || summary.TotalDebit != 5050 {
		t.Fatalf("summary does not match the frozen request: %+v", summary)
	}
	if summary.RecipientLabel != "Jane Doe" {
		t.Fatalf("expected recipient label from resolved account name, got %q", summary.RecipientLabel)
	}

	if err := gate.ConfirmReview(); err != nil {
		t.Fatalf("ConfirmReview returned error: %v", err)
	}
	if gate.State() != GateAwaitingSecret {
		t.Fatalf("expected state=%s, got %s", GateAwaitingSecret, gate.State())
	}

	if err := gate.ProvideSecret("1234"); err != nil {
		t.Fatalf("ProvideSecret returned error: %v", err)
	}
	if gate.State() != GateAuthorized {
		t.Fatalf("expected state=%s, got %s", GateAuthorized, gate.State())
	}

	auth, err := gate.Authorized()
	if err != nil {
		t.Fatalf("Authorized returned error: %v", err)
	}
	if auth.request != req {
		t.Fatal("expected the authorized transfer to carry the frozen request")
	}
	if auth.secret != "1234" {
		t.Fatal("expected the authorized transfer to carry the user's secret")
	}
}

func TestConfirmationGate_FailedValidationNeverOpens(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)
	req.Amount = 50
	v := NewValidator(100, 140, 10)

	gate, res := NewConfirmationGate(req, sender, v, 4)
	if gate != nil {
		t.Fatal("expected no gate for an invalid request")
	}
	if res.Code != CodeAmountBelowMinimum {
		t.Fatalf("expected code=%s, got %s", CodeAmountBelowMinimum, res.Code)
	}
}

func TestConfirmationGate_SecretBeforeReviewIsRejected(t *testing.T) {
	sender := testSender()
	gate, _ := NewConfirmationGate(externalBankRequest(sender), sender, NewValidator(100, 140, 10), 4)

	if err := gate.ProvideSecret("1234"); !errors.Is(err, ErrGateNotAwaitingSecret) {
		t.Fatalf("expected ErrGateNotAwaitingSecret, got %v", err)
	}
	if _, err := gate.Authorized(); !errors.Is(err, ErrGateNotAuthorized) {
		t.Fatalf("expected ErrGateNotAuthorized, got %v", err)
	}
}

func TestConfirmationGate_WrongLengthSecret(t *testing.T) {
	sender := testSender()
	gate, _ := NewConfirmationGate(externalBankRequest(sender), sender, NewValidator(100, 140, 10), 4)

	if err := gate.ConfirmReview(); err != nil {
		t.Fatalf("ConfirmReview returned error: %v", err)
	}
	if err := gate.ProvideSecret("12345"); !errors.Is(err, ErrSecretWrongLength) {
		t.Fatalf("expected ErrSecretWrongLength, got %v", err)
	}
	// The gate stays open for another attempt at the secret.
	if gate.State() != GateAwaitingSecret {
		t.Fatalf("expected state=%s after bad length, got %s", GateAwaitingSecret, gate.State())
	}
	if err := gate.ProvideSecret("1234"); err != nil {
		t.Fatalf("expected correct-length secret to be accepted, got %v", err)
	}
}

func TestConfirmationGate_CancelDiscardsEverything(t *testing.T) {
	sender := testSender()
	gate, _ := NewConfirmationGate(externalBankRequest(sender), sender, NewValidator(100, 140, 10), 4)

	if err := gate.ConfirmReview(); err != nil {
		t.Fatalf("ConfirmReview returned error: %v", err)
	}
	gate.Cancel()

	if gate.State() != GateCancelled {
		t.Fatalf("expected state=%s, got %s", GateCancelled, gate.State())
	}
	if err := gate.ProvideSecret("1234"); !errors.Is(err, ErrGateNotAwaitingSecret) {
		t.Fatalf("expected cancelled gate to reject the secret, got %v", err)
	}
	if _, err := gate.Authorized(); !errors.Is(err, ErrGateNotAuthorized) {
		t.Fatalf("expected cancelled gate to never authorize, got %v", err)
	}
	if err := gate.ConfirmReview(); !errors.Is(err, ErrGateNotAwaitingReview) {
		t.Fatalf("expected cancelled gate to reject review confirmation, got %v", err)
	}
	// The request is gone; Summary returns the zero value rather than panicking.
	if got := gate.Summary(); got != (ReviewSummary{}) {
		t.Fatalf("expected empty summary after cancel, got %+v", got)
	}
}

func TestConfirmationGate_PeerSummaryUsesDisplayName(t *testing.T) {
	sender := testSender()
	req := &domain.TransferRequest{
		ID:         sender.OwnerID,
		OwnerID:    sender.OwnerID,
		Category:   domain.CategoryPeerToPeer,
		Amount:     1500,
		Narration:  "lunch",
		Peer:       &domain.PeerRecipient{PlatformAccountID: "acct_recipient_002", DisplayName: "Chidi N"},
		TotalDebit: 1500,
	}

	gate, res := NewConfirmationGate(req, sender, NewValidator(100, 140, 10), 4)
	if gate == nil {
		t.Fatalf("expected gate to open, got code=%s", res.Code)
	}
	if got := gate.Summary().RecipientLabel; got != "Chidi N" {
		t.Fatalf("expected peer display name as label, got %q", got)
	}
}
