/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the transfer-service. By defining an interface,
 * we decouple the orchestration logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/payvault/transfer-service/internal/domain"
)

var (
	ErrOutcomeNotFound      = errors.New("transfer outcome not found")
	ErrDuplicateOutcome     = errors.New("transfer request already consumed")
	ErrRecipientNotFound    = errors.New("saved recipient not found")
	ErrDuplicateRecipient   = errors.New("recipient already saved")
	ErrRefundNotPending     = errors.New("outcome has no pending refund")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Transfer outcome audit trail. CreateOutcome inserts exactly once per
	// request id and returns ErrDuplicateOutcome on a replay, which is how a
	// TransferRequest is consumed exactly once.
	CreateOutcome(ctx context.Context, outcome *domain.TransferOutcome) error
	FindOutcomeByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.TransferOutcome, error)

	// Refund reconciliation. ListPendingRefunds returns outcomes stuck in
	// failed_refund_pending; SettlePendingRefund is the single sanctioned
	// mutation of an outcome, moving it to failed_and_refunded.
	ListPendingRefunds(ctx context.Context, limit int) ([]domain.TransferOutcome, error)
	SettlePendingRefund(ctx context.Context, requestID uuid.UUID) error

	// Saved recipients (beneficiaries and peer contacts).
	ListSavedRecipients(ctx context.Context, ownerID uuid.UUID, category domain.TransferCategory) ([]domain.SavedRecipient, error)
	SaveRecipient(ctx context.Context, recipient *domain.SavedRecipient) (*domain.SavedRecipient, error)
	RemoveSavedRecipient(ctx context.Context, ownerID uuid.UUID, recipientID uuid.UUID) error
}
