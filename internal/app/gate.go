/**
 * @description
 * This file models the two-step human confirmation required before any funds
 * move: review the frozen summary, then enter the secret PIN. The gate never
 * verifies the PIN (that is the gateway's job); its only job is to make it
 * impossible to invoke the orchestrator without a user-entered secret attached
 * to a validated, frozen request.
 */

package app

import (
	"errors"

	"github.com/payvault/transfer-service/internal/domain"
)

// GateState is the confirmation gate's position in its state machine.
type GateState string

const (
	GateAwaitingReview GateState = "awaiting_review"
	GateAwaitingSecret GateState = "awaiting_secret"
	GateAuthorized     GateState = "authorized"
	GateCancelled      GateState = "cancelled"
)

var (
	ErrGateNotAwaitingReview = errors.New("confirmation gate is not awaiting review")
	ErrGateNotAwaitingSecret = errors.New("confirmation gate is not awaiting the secret")
	ErrGateNotAuthorized     = errors.New("confirmation gate has not been authorized")
	ErrSecretWrongLength     = errors.New("transaction pin has the wrong length")
)

// ReviewSummary is the confirmation summary shown to the user. It is drawn
// from the frozen request, never re-fetched, so the amount the user confirms
// is guaranteed to equal the amount eventually debited.
type ReviewSummary struct {
	Amount         int64  `json:"amount"`
	Fee            int64  `json:"fee"`
	TotalDebit     int64  `json:"total_debit"`
	RecipientLabel string `json:"recipient_label"`
	Narration      string `json:"narration"`
}

// AuthorizedTransfer is the only value the orchestrator accepts. It can only
// be produced by a gate that reached Authorized, which requires a validated
// request and a secret of the expected length.
type AuthorizedTransfer struct {
	request *domain.TransferRequest
	secret  string
}

// ConfirmationGate is a per-attempt state machine. Cancellation at any step
// discards the request entirely; there is no resume from partial state.
type ConfirmationGate struct {
	state     GateState
	request   *domain.TransferRequest
	secret    string
	pinLength int
}

// NewConfirmationGate validates the request against the sender snapshot and,
// on success, enters AwaitingReview. A failed validation never opens a gate.
func NewConfirmationGate(req *domain.TransferRequest, sender domain.SenderSnapshot, v *Validator, pinLength int) (*ConfirmationGate, ValidationResult) {
	if res := v.Validate(req, sender); !res.OK {
		return nil, res
	}
	return &ConfirmationGate{
		state:     GateAwaitingReview,
		request:   req,
		pinLength: pinLength,
	}, pass()
}

// State returns the gate's current position.
func (g *ConfirmationGate) State() GateState {
	return g.state
}

// Summary returns the frozen confirmation summary. After cancellation the
// request is gone and the zero summary is returned.
func (g *ConfirmationGate) Summary() ReviewSummary {
	if g.request == nil {
		return ReviewSummary{}
	}
	label := ""
	switch {
	case g.request.Bank != nil:
		label = g.request.Bank.AccountName
	case g.request.Peer != nil:
		label = g.request.Peer.DisplayName
	}
	return ReviewSummary{
		Amount:         g.request.Amount,
		Fee:            g.request.Fee,
		TotalDebit:     g.request.TotalDebit,
		RecipientLabel: label,
		Narration:      g.request.Narration,
	}
}

// ConfirmReview records the user's explicit confirmation of the summary.
func (g *ConfirmationGate) ConfirmReview() error {
	if g.state != GateAwaitingReview {
		return ErrGateNotAwaitingReview
	}
	g.state = GateAwaitingSecret
	return nil
}

// ProvideSecret attaches the user's PIN. Only the length is checked here;
// verification happens at the gateway's withhold step.
func (g *ConfirmationGate) ProvideSecret(pin string) error {
	if g.state != GateAwaitingSecret {
		return ErrGateNotAwaitingSecret
	}
	if len(pin) != g.pinLength {
		return ErrSecretWrongLength
	}
	g.secret = pin
	g.state = GateAuthorized
	return nil
}

// Cancel discards the attempt from any non-terminal state.
func (g *ConfirmationGate) Cancel() {
	g.state = GateCancelled
	g.request = nil
	g.secret = ""
}

// Authorized hands the frozen request and secret to the orchestrator.
func (g *ConfirmationGate) Authorized() (*AuthorizedTransfer, error) {
	if g.state != GateAuthorized {
		return nil, ErrGateNotAuthorized
	}
	return &AuthorizedTransfer{request: g.request, secret: g.secret}, nil
}
