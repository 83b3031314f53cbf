/**
 * @description
 * This file contains the refund reconciliation sweep. A transfer that failed
 * after its withhold leg normally gets an inline compensating refund; when
 * that refund itself fails, the outcome is parked in failed_refund_pending and
 * this sweep re-drives the refund on a schedule using the original attempt's
 * idempotency key, so the gateway dedupes any overlap with the inline attempt.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and the audit store.
 * - pkg/rabbitmq: For refund-settled event publishing.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/payvault/transfer-service/internal/domain"
	"github.com/payvault/transfer-service/internal/store"
	"github.com/payvault/transfer-service/pkg/rabbitmq"
)

// Refunder is the gateway operation the sweep re-drives.
type Refunder interface {
	Refund(ctx context.Context, reference, idempotencyKey string) (string, error)
}

// RefundReconciler re-drives pending compensating refunds until they settle.
type RefundReconciler struct {
	repo          store.Repository
	gateway       Refunder
	eventProducer rabbitmq.Publisher
	eventExchange string
	batchSize     int
	timeout       time.Duration
}

// NewRefundReconciler creates the sweep worker.
func NewRefundReconciler(repo store.Repository, gateway Refunder, producer rabbitmq.Publisher, eventExchange string, batchSize int, timeout time.Duration) *RefundReconciler {
	return &RefundReconciler{
		repo:          repo,
		gateway:       gateway,
		eventProducer: producer,
		eventExchange: eventExchange,
		batchSize:     batchSize,
		timeout:       timeout,
	}
}

// Sweep processes one batch of pending refunds. Each outcome is handled
// independently; one failure does not stop the batch, and anything still
// unsettled is simply picked up by the next run.
func (r *RefundReconciler) Sweep(ctx context.Context) {
	outcomes, err := r.repo.ListPendingRefunds(ctx, r.batchSize)
	if err != nil {
		log.Printf("level=error component=refund_reconciler msg=\"failed to list pending refunds\" err=%v", err)
		return
	}
	if len(outcomes) == 0 {
		return
	}
	log.Printf("level=info component=refund_reconciler msg=\"sweeping pending refunds\" count=%d", len(outcomes))

	for i := range outcomes {
		r.settleOne(ctx, &outcomes[i])
	}
}

func (r *RefundReconciler) settleOne(ctx context.Context, outcome *domain.TransferOutcome) {
	if outcome.GatewayReference == nil {
		// A pending refund without a withhold reference cannot exist through
		// the orchestrator; flag it for manual intervention.
		log.Printf("level=error component=refund_reconciler msg=\"pending refund has no gateway reference; manual review required\" request_id=%s", outcome.RequestID)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := domain.RefundIdempotencyKeyFor(outcome.RequestID)
	if _, err := r.gateway.Refund(callCtx, *outcome.GatewayReference, key); err != nil {
		log.Printf("level=warn component=refund_reconciler msg=\"refund still failing; will retry next sweep\" request_id=%s err=%v", outcome.RequestID, err)
		return
	}

	if err := r.repo.SettlePendingRefund(ctx, outcome.RequestID); err != nil {
		if errors.Is(err, store.ErrRefundNotPending) {
			// Another sweep or the inline path settled it between list and update.
			return
		}
		log.Printf("level=error component=refund_reconciler msg=\"refund issued but outcome not settled\" request_id=%s err=%v", outcome.RequestID, err)
		return
	}

	log.Printf("level=info component=refund_reconciler msg=\"pending refund settled\" request_id=%s owner_id=%s amount=%d", outcome.RequestID, outcome.OwnerID, outcome.TotalDebit)

	if r.eventProducer != nil {
		event := domain.TransferOutcomeEvent{
			RequestID:        outcome.RequestID,
			OwnerID:          outcome.OwnerID,
			Category:         outcome.Category,
			State:            domain.OutcomeFailedAndRefunded,
			Amount:           outcome.Amount,
			Fee:              outcome.Fee,
			GatewayReference: outcome.GatewayReference,
			FailureReason:    outcome.FailureReason,
			Timestamp:        time.Now().UTC(),
		}
		if err := r.eventProducer.Publish(ctx, r.eventExchange, domain.RoutingKeyRefundSettled, event); err != nil {
			log.Printf("level=warn component=refund_reconciler msg=\"failed to publish refund-settled event\" request_id=%s err=%v", outcome.RequestID, err)
		}
	}
}
