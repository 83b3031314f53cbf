/**
 * @description
 * This file contains the core business logic for the transfer-service. The
 * `Service` struct orchestrates a single transfer attempt end to end:
 * defensive re-validation of the frozen request, withholding the confirmed
 * total through the gateway, routing the transfer by category, and issuing a
 * compensating refund when routing fails after funds were taken. Every run
 * ends in exactly one TransferOutcome, the audit record the dashboard renders.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For outcome event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/payvault/transfer-service/internal/domain"
	"github.com/payvault/transfer-service/internal/store"
	"github.com/payvault/transfer-service/pkg/rabbitmq"
)

// Gateway is the ledger/wallet and bank-rail abstraction that performs the
// actual debit, credit, and refund operations. Its debit is atomic and
// idempotency-key-aware; that contract is the gateway's, not the orchestrator's.
type Gateway interface {
	Withhold(ctx context.Context, ownerID uuid.UUID, amount int64, secret, idempotencyKey string) (string, error)
	RouteExternal(ctx context.Context, reference, bankCode, accountNumber, narration string) (string, error)
	RouteInternal(ctx context.Context, reference, platformAccountID, narration string) (string, error)
	Refund(ctx context.Context, reference, idempotencyKey string) (string, error)
}

// FeeQuoter computes the fee and total debit for a prospective transfer.
type FeeQuoter interface {
	Compute(ctx context.Context, amount int64, category, channel string) (int64, int64, error)
}

// Service provides the core business logic for transfers.
type Service struct {
	repo           store.Repository
	gateway        Gateway
	fees           FeeQuoter
	eventProducer  rabbitmq.Publisher
	validator      *Validator
	eventExchange  string
	gatewayTimeout time.Duration
	pinLength      int
}

// NewService creates a new transfer service instance.
func NewService(repo store.Repository, gateway Gateway, fees FeeQuoter, producer rabbitmq.Publisher, validator *Validator, eventExchange string, gatewayTimeout time.Duration, pinLength int) *Service {
	return &Service{
		repo:           repo,
		gateway:        gateway,
		fees:           fees,
		eventProducer:  producer,
		validator:      validator,
		eventExchange:  eventExchange,
		gatewayTimeout: gatewayTimeout,
		pinLength:      pinLength,
	}
}

// QuoteFee asks the fee calculator for the fee and total debit of one
// prospective transfer. The caller freezes the quote into the request at
// confirmation time; it is never recomputed afterwards.
func (s *Service) QuoteFee(ctx context.Context, amount int64, category domain.TransferCategory, channel string) (*domain.FeeQuote, error) {
	fee, total, err := s.fees.Compute(ctx, amount, string(category), channel)
	if err != nil {
		return nil, fmt.Errorf("failed to compute fee: %w", err)
	}
	return &domain.FeeQuote{Fee: fee, TotalDebit: total}, nil
}

// BeginConfirmation validates the frozen request and opens a confirmation
// gate. A request that fails validation never reaches the gate.
func (s *Service) BeginConfirmation(req *domain.TransferRequest, sender domain.SenderSnapshot) (*ConfirmationGate, ValidationResult) {
	return NewConfirmationGate(req, sender, s.validator, s.pinLength)
}

// SubmitTransfer runs one orchestration attempt to a terminal state. It can
// only be called with an AuthorizedTransfer produced by a confirmation gate,
// so a user-entered secret is always attached. Once started, the attempt runs
// to a terminal outcome and cannot be cancelled mid-flight.
func (s *Service) SubmitTransfer(ctx context.Context, sender domain.SenderSnapshot, auth *AuthorizedTransfer) (*domain.TransferOutcome, error) {
	req := auth.request
	log.Printf("level=info component=orchestrator msg=\"starting transfer\" request_id=%s owner_id=%s category=%s amount=%d total_debit=%d",
		req.ID, req.OwnerID, req.Category, req.Amount, req.TotalDebit)

	// Defensive re-validation: inputs must not have been mutated since the
	// gate reached Authorized.
	if res := s.validator.Validate(req, sender); !res.OK {
		log.Printf("level=warn component=orchestrator msg=\"frozen request failed re-validation\" request_id=%s code=%s", req.ID, res.Code)
		return nil, &ValidationError{Result: res}
	}

	// The frozen total is the amount withheld; it is never recomputed here.
	frozenTotal := req.TotalDebit

	// Once authorized, the attempt runs to a terminal state even if the
	// caller disconnects. A cancelled inbound context must not abort the
	// refund leg or the outcome write; only the per-leg timeouts bound the
	// remaining work.
	ctx = context.WithoutCancel(ctx)

	run := CompensatingTransaction{
		Withhold: func(ctx context.Context) (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
			defer cancel()
			return s.gateway.Withhold(callCtx, req.OwnerID, frozenTotal, auth.secret, req.WithholdIdempotencyKey())
		},
		Act: func(ctx context.Context, reference string) (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
			defer cancel()
			return s.route(callCtx, req, reference)
		},
		Compensate: func(ctx context.Context, reference string) error {
			callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
			defer cancel()
			_, err := s.gateway.Refund(callCtx, reference, req.RefundIdempotencyKey())
			return err
		},
	}.Run(ctx)

	outcome := buildOutcome(req, run)

	switch run.Status {
	case CompensationSettled:
		log.Printf("level=info component=orchestrator msg=\"transfer settled\" request_id=%s reference=%s", req.ID, run.Reference)
	case CompensationFailedNoDebit:
		log.Printf("level=warn component=orchestrator msg=\"withhold failed; no funds taken\" request_id=%s err=%v", req.ID, run.Cause)
	case CompensationCompensated:
		log.Printf("level=warn component=orchestrator msg=\"routing failed; withheld funds refunded\" request_id=%s reference=%s err=%v", req.ID, run.Reference, run.Cause)
	case CompensationPending:
		log.Printf("level=error component=orchestrator msg=\"CRITICAL: routing failed and refund failed; funds held and owed back\" request_id=%s owner_id=%s reference=%s amount_held=%d route_err=%v refund_err=%v",
			req.ID, req.OwnerID, run.Reference, frozenTotal, run.Cause, run.CompensateErr)
	}

	if err := s.repo.CreateOutcome(ctx, outcome); err != nil {
		if errors.Is(err, store.ErrDuplicateOutcome) {
			// The request was already consumed by an earlier delivery of the
			// same submission; the gateway deduped the money legs on the
			// idempotency keys, so return the recorded outcome.
			prior, findErr := s.repo.FindOutcomeByRequestID(ctx, req.ID)
			if findErr != nil {
				return nil, fmt.Errorf("request already consumed but outcome unavailable: %w", findErr)
			}
			log.Printf("level=info component=orchestrator msg=\"duplicate submission; returning recorded outcome\" request_id=%s state=%s", req.ID, prior.State)
			return prior, nil
		}
		// The money legs are settled; an audit write failure is escalated,
		// not converted into a transfer failure.
		log.Printf("level=error component=orchestrator msg=\"CRITICAL: failed to persist transfer outcome\" request_id=%s state=%s err=%v", req.ID, outcome.State, err)
	}

	s.publishOutcomeEvents(ctx, req, outcome, run)

	if outcome.State == domain.OutcomeSucceeded && req.SaveRecipient {
		s.saveRecipientBestEffort(ctx, req)
	}

	return outcome, nil
}

// route dispatches the withheld funds by category. Self-account and external
// bank transfers ride the bank rail; peer transfers stay on the internal ledger.
func (s *Service) route(ctx context.Context, req *domain.TransferRequest, reference string) (string, error) {
	switch req.Category {
	case domain.CategorySelfAccount, domain.CategoryExternalBank:
		return s.gateway.RouteExternal(ctx, reference, req.Bank.BankCode, req.Bank.AccountNumber, req.Narration)
	case domain.CategoryPeerToPeer:
		return s.gateway.RouteInternal(ctx, reference, req.Peer.PlatformAccountID, req.Narration)
	}
	return "", fmt.Errorf("unroutable transfer category %q", req.Category)
}

func buildOutcome(req *domain.TransferRequest, run CompensatedRun) *domain.TransferOutcome {
	outcome := &domain.TransferOutcome{
		RequestID:  req.ID,
		OwnerID:    req.OwnerID,
		Category:   req.Category,
		Amount:     req.Amount,
		Fee:        req.Fee,
		TotalDebit: req.TotalDebit,
		CreatedAt:  time.Now().UTC(),
	}
	if run.Reference != "" {
		ref := run.Reference
		outcome.GatewayReference = &ref
	}
	if run.Cause != nil {
		// The gateway's reason is reported verbatim.
		reason := run.Cause.Error()
		outcome.FailureReason = &reason
	}
	switch run.Status {
	case CompensationSettled:
		outcome.State = domain.OutcomeSucceeded
	case CompensationFailedNoDebit:
		outcome.State = domain.OutcomeFailedNoDebit
	case CompensationCompensated:
		outcome.State = domain.OutcomeFailedAndRefunded
	case CompensationPending:
		outcome.State = domain.OutcomeFailedRefundPending
	}
	return outcome
}

func (s *Service) publishOutcomeEvents(ctx context.Context, req *domain.TransferRequest, outcome *domain.TransferOutcome, run CompensatedRun) {
	if s.eventProducer == nil {
		return
	}

	routingKey := domain.RoutingKeyOutcomeFailed
	if outcome.State == domain.OutcomeSucceeded {
		routingKey = domain.RoutingKeyOutcomeSettled
	}
	event := domain.TransferOutcomeEvent{
		RequestID:        outcome.RequestID,
		OwnerID:          outcome.OwnerID,
		Category:         outcome.Category,
		State:            outcome.State,
		Amount:           outcome.Amount,
		Fee:              outcome.Fee,
		GatewayReference: outcome.GatewayReference,
		FailureReason:    outcome.FailureReason,
		Timestamp:        time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, s.eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=orchestrator msg=\"failed to publish outcome event\" request_id=%s err=%v", outcome.RequestID, err)
	}

	if outcome.State == domain.OutcomeFailedRefundPending {
		pending := domain.RefundPendingEvent{
			RequestID:        outcome.RequestID,
			OwnerID:          outcome.OwnerID,
			AmountHeld:       outcome.TotalDebit,
			GatewayReference: run.Reference,
			IdempotencyKey:   req.RefundIdempotencyKey(),
			Timestamp:        time.Now().UTC(),
		}
		if err := s.eventProducer.Publish(ctx, s.eventExchange, domain.RoutingKeyRefundPending, pending); err != nil {
			log.Printf("level=error component=orchestrator msg=\"CRITICAL: failed to publish refund-pending event\" request_id=%s err=%v", outcome.RequestID, err)
		}
	}
}

// saveRecipientBestEffort persists the recipient after a successful transfer
// when the user opted in. A save failure must never roll back or fail the
// already-successful transfer; it is reported as a soft warning.
func (s *Service) saveRecipientBestEffort(ctx context.Context, req *domain.TransferRequest) {
	recipient := &domain.SavedRecipient{
		OwnerID:  req.OwnerID,
		Category: req.Category,
	}
	switch {
	case req.Bank != nil:
		recipient.BankCode = req.Bank.BankCode
		recipient.AccountNumber = req.Bank.AccountNumber
		recipient.AccountName = req.Bank.AccountName
	case req.Peer != nil:
		recipient.PlatformAccountID = req.Peer.PlatformAccountID
		recipient.DisplayName = req.Peer.DisplayName
	}

	if _, err := s.repo.SaveRecipient(ctx, recipient); err != nil {
		if errors.Is(err, store.ErrDuplicateRecipient) {
			return
		}
		log.Printf("level=warn component=orchestrator msg=\"opt-in recipient save failed; transfer unaffected\" request_id=%s err=%v", req.ID, err)
	}
}

// GetOutcome returns the audit record for one request.
func (s *Service) GetOutcome(ctx context.Context, requestID uuid.UUID) (*domain.TransferOutcome, error) {
	return s.repo.FindOutcomeByRequestID(ctx, requestID)
}

// ListSavedRecipients returns the caller's saved recipients for one category.
func (s *Service) ListSavedRecipients(ctx context.Context, ownerID uuid.UUID, category domain.TransferCategory) ([]domain.SavedRecipient, error) {
	return s.repo.ListSavedRecipients(ctx, ownerID, category)
}

// RemoveSavedRecipient deletes one of the caller's saved recipients.
func (s *Service) RemoveSavedRecipient(ctx context.Context, ownerID uuid.UUID, recipientID uuid.UUID) error {
	return s.repo.RemoveSavedRecipient(ctx, ownerID, recipientID)
}
