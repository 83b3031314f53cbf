/**
 * @description
 * This file contains the reusable compensating-transaction primitive used by
 * every money-moving workflow: withhold funds, act, and refund on failure.
 * The ordering is the load-bearing invariant of the whole service: the debit
 * happens before the routed action, and the refund is attempted only after a
 * successful debit followed by a failed action. A withhold failure takes
 * nothing, so nothing is returned.
 */

package app

import "context"

// CompensationStatus is the terminal state of one compensated run.
type CompensationStatus int

const (
	// CompensationSettled: withhold and act both succeeded.
	CompensationSettled CompensationStatus = iota
	// CompensationFailedNoDebit: withhold failed; no funds were taken and no
	// compensation was attempted.
	CompensationFailedNoDebit
	// CompensationCompensated: act failed and the refund succeeded.
	CompensationCompensated
	// CompensationPending: act failed and the refund also failed; funds are
	// held and owed back. This must be escalated, never dropped.
	CompensationPending
)

// CompensatedRun reports what happened.
type CompensatedRun struct {
	Status        CompensationStatus
	Reference     string // withhold reference, set once funds were taken
	Confirmation  string // act confirmation, set on settle
	Cause         error  // withhold or act failure
	CompensateErr error  // refund failure, set only on CompensationPending
}

// CompensatingTransaction runs a withhold, an action against the held funds,
// and a compensating refund if the action fails. Refund is called at most
// once, and only when Withhold succeeded and Act failed.
type CompensatingTransaction struct {
	Withhold   func(ctx context.Context) (reference string, err error)
	Act        func(ctx context.Context, reference string) (confirmation string, err error)
	Compensate func(ctx context.Context, reference string) error
}

// Run executes the three legs in order.
func (t CompensatingTransaction) Run(ctx context.Context) CompensatedRun {
	reference, err := t.Withhold(ctx)
	if err != nil {
		return CompensatedRun{Status: CompensationFailedNoDebit, Cause: err}
	}

	confirmation, err := t.Act(ctx, reference)
	if err == nil {
		return CompensatedRun{Status: CompensationSettled, Reference: reference, Confirmation: confirmation}
	}

	if compErr := t.Compensate(ctx, reference); compErr != nil {
		return CompensatedRun{Status: CompensationPending, Reference: reference, Cause: err, CompensateErr: compErr}
	}
	return CompensatedRun{Status: CompensationCompensated, Reference: reference, Cause: err}
}
