/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL for the transfer outcome audit trail and for saved
 * recipient management.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payvault/transfer-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// uniqueViolation is the PostgreSQL error code for duplicate key violations.
const uniqueViolation = "23505"

// CreateOutcome inserts the terminal record of one orchestration run. The
// request id is the primary key, so a second insert for the same request
// surfaces as ErrDuplicateOutcome instead of silently overwriting history.
func (r *PostgresRepository) CreateOutcome(ctx context.Context, outcome *domain.TransferOutcome) error {
	query := `
        INSERT INTO transfer_outcomes (request_id, owner_id, category, state, amount, fee, total_debit, gateway_reference, failure_reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		outcome.RequestID,
		outcome.OwnerID,
		outcome.Category,
		outcome.State,
		outcome.Amount,
		outcome.Fee,
		outcome.TotalDebit,
		outcome.GatewayReference,
		outcome.FailureReason,
	).Scan(&outcome.CreatedAt, &outcome.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateOutcome
		}
		return fmt.Errorf("failed to create transfer outcome: %w", err)
	}
	return nil
}

// FindOutcomeByRequestID returns the audit record for one request.
func (r *PostgresRepository) FindOutcomeByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.TransferOutcome, error) {
	query := `
        SELECT request_id, owner_id, category, state, amount, fee, total_debit, gateway_reference, failure_reason, created_at, updated_at
        FROM transfer_outcomes
        WHERE request_id = $1
    `
	var o domain.TransferOutcome
	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&o.RequestID, &o.OwnerID, &o.Category, &o.State, &o.Amount, &o.Fee,
		&o.TotalDebit, &o.GatewayReference, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutcomeNotFound
		}
		return nil, fmt.Errorf("failed to find transfer outcome: %w", err)
	}
	return &o, nil
}

// ListPendingRefunds returns outcomes whose compensating refund has not been
// confirmed yet, oldest first so the longest-held funds are retried first.
func (r *PostgresRepository) ListPendingRefunds(ctx context.Context, limit int) ([]domain.TransferOutcome, error) {
	query := `
        SELECT request_id, owner_id, category, state, amount, fee, total_debit, gateway_reference, failure_reason, created_at, updated_at
        FROM transfer_outcomes
        WHERE state = $1
        ORDER BY created_at ASC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, domain.OutcomeFailedRefundPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending refunds: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.TransferOutcome
	for rows.Next() {
		var o domain.TransferOutcome
		err := rows.Scan(
			&o.RequestID, &o.OwnerID, &o.Category, &o.State, &o.Amount, &o.Fee,
			&o.TotalDebit, &o.GatewayReference, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending refund row: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// SettlePendingRefund moves an outcome from failed_refund_pending to
// failed_and_refunded. The WHERE clause guards the state so a concurrent sweep
// cannot settle the same refund twice.
func (r *PostgresRepository) SettlePendingRefund(ctx context.Context, requestID uuid.UUID) error {
	query := `
        UPDATE transfer_outcomes
        SET state = $1, updated_at = NOW()
        WHERE request_id = $2 AND state = $3
    `
	result, err := r.db.Exec(ctx, query, domain.OutcomeFailedAndRefunded, requestID, domain.OutcomeFailedRefundPending)
	if err != nil {
		return fmt.Errorf("failed to settle pending refund: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRefundNotPending
	}
	return nil
}

// ListSavedRecipients retrieves a user's saved recipients for one category.
func (r *PostgresRepository) ListSavedRecipients(ctx context.Context, ownerID uuid.UUID, category domain.TransferCategory) ([]domain.SavedRecipient, error) {
	query := `
        SELECT id, owner_id, category, bank_code, account_number, account_name, platform_account_id, display_name, is_default, created_at, updated_at
        FROM saved_recipients
        WHERE owner_id = $1 AND category = $2
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, ownerID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query saved recipients: %w", err)
	}
	defer rows.Close()

	var recipients []domain.SavedRecipient
	for rows.Next() {
		var sr domain.SavedRecipient
		err := rows.Scan(
			&sr.ID, &sr.OwnerID, &sr.Category, &sr.BankCode, &sr.AccountNumber, &sr.AccountName,
			&sr.PlatformAccountID, &sr.DisplayName, &sr.IsDefault, &sr.CreatedAt, &sr.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved recipient row: %w", err)
		}
		recipients = append(recipients, sr)
	}
	return recipients, rows.Err()
}

// SaveRecipient inserts a new saved recipient. A unique index on the owner
// plus account identity reports an already-saved recipient as ErrDuplicateRecipient.
func (r *PostgresRepository) SaveRecipient(ctx context.Context, recipient *domain.SavedRecipient) (*domain.SavedRecipient, error) {
	if recipient.ID == uuid.Nil {
		recipient.ID = uuid.New()
	}
	query := `
        INSERT INTO saved_recipients (id, owner_id, category, bank_code, account_number, account_name, platform_account_id, display_name, is_default)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		recipient.ID,
		recipient.OwnerID,
		recipient.Category,
		recipient.BankCode,
		recipient.AccountNumber,
		recipient.AccountName,
		recipient.PlatformAccountID,
		recipient.DisplayName,
		recipient.IsDefault,
	).Scan(&recipient.CreatedAt, &recipient.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateRecipient
		}
		return nil, fmt.Errorf("failed to save recipient: %w", err)
	}
	return recipient, nil
}

// RemoveSavedRecipient deletes a saved recipient owned by the given user.
func (r *PostgresRepository) RemoveSavedRecipient(ctx context.Context, ownerID uuid.UUID, recipientID uuid.UUID) error {
	query := `
        DELETE FROM saved_recipients
        WHERE id = $1 AND owner_id = $2
    `
	result, err := r.db.Exec(ctx, query, recipientID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete saved recipient: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRecipientNotFound
	}
	return nil
}
