/**
 * @description
 * This file defines the message payloads the transfer-service publishes to
 * RabbitMQ so the surrounding dashboard and reconciliation tooling can react
 * to terminal transfer states without polling.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for transfer outcome events on the platform topic exchange.
const (
	RoutingKeyOutcomeSettled = "transfer.outcome.settled"
	RoutingKeyOutcomeFailed  = "transfer.outcome.failed"
	RoutingKeyRefundPending  = "transfer.refund.pending"
	RoutingKeyRefundSettled  = "transfer.refund.settled"
)

// TransferOutcomeEvent is published once per orchestration run.
type TransferOutcomeEvent struct {
	RequestID        uuid.UUID        `json:"request_id"`
	OwnerID          uuid.UUID        `json:"owner_id"`
	Category         TransferCategory `json:"category"`
	State            OutcomeState     `json:"state"`
	Amount           int64            `json:"amount"`
	Fee              int64            `json:"fee"`
	GatewayReference *string          `json:"gateway_reference,omitempty"`
	FailureReason    *string          `json:"failure_reason,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// RefundPendingEvent is published when a compensating refund could not be
// issued after a failed routing leg. It represents money held that is owed
// back to the user and must be surfaced loudly, never dropped.
type RefundPendingEvent struct {
	RequestID        uuid.UUID `json:"request_id"`
	OwnerID          uuid.UUID `json:"owner_id"`
	AmountHeld       int64     `json:"amount_held"`
	GatewayReference string    `json:"gateway_reference"`
	IdempotencyKey   string    `json:"idempotency_key"`
	Timestamp        time.Time `json:"timestamp"`
}
