package app

import (
	"context"
	"errors"
	"testing"
)

func TestCompensatingTransaction_Settled(t *testing.T) {
	compensateCalls := 0
	run := CompensatingTransaction{
		Withhold: func(ctx context.Context) (string, error) { return "ref-1", nil },
		Act:      func(ctx context.Context, reference string) (string, error) { return "conf-1", nil },
		Compensate: func(ctx context.Context, reference string) error {
			compensateCalls++
			return nil
		},
	}.Run(context.Background())

	if run.Status != CompensationSettled {
		t.Fatalf("expected status settled, got %d", run.Status)
	}
	if run.Reference != "ref-1" || run.Confirmation != "conf-1" {
		t.Fatalf("expected reference and confirmation to be reported, got %+v", run)
	}
	if compensateCalls != 0 {
		t.Fatalf("expected no compensation on success, got %d calls", compensateCalls)
	}
}

func TestCompensatingTransaction_WithholdFailureTakesNothing(t *testing.T) {
	withholdErr := errors.New("insufficient funds")
	actCalls := 0
	compensateCalls := 0

	run := CompensatingTransaction{
		Withhold: func(ctx context.Context) (string, error) { return "", withholdErr },
		Act: func(ctx context.Context, reference string) (string, error) {
			actCalls++
			return "", nil
		},
		Compensate: func(ctx context.Context, reference string) error {
			compensateCalls++
			return nil
		},
	}.Run(context.Background())

	if run.Status != CompensationFailedNoDebit {
		t.Fatalf("expected status failed-no-debit, got %d", run.Status)
	}
	if !errors.Is(run.Cause, withholdErr) {
		t.Fatalf("expected the withhold error as cause, got %v", run.Cause)
	}
	if run.Reference != "" {
		t.Fatalf("expected no reference when nothing was taken, got %q", run.Reference)
	}
	if actCalls != 0 || compensateCalls != 0 {
		t.Fatalf("expected neither act nor compensation after a failed withhold, got act=%d compensate=%d", actCalls, compensateCalls)
	}
}

func TestCompensatingTransaction_ActFailureRefundsExactlyOnce(t *testing.T) {
	actErr := errors.New("destination rejected the transfer")
	compensateCalls := 0
	var compensatedRef string

	run := CompensatingTransaction{
		Withhold: func(ctx context.Context) (string, error) { return "ref-7", nil },
		Act:      func(ctx context.Context, reference string) (string, error) { return "", actErr },
		Compensate: func(ctx context.Context, reference string) error {
			compensateCalls++
			compensatedRef = reference
			return nil
		},
	}.Run(context.Background())

	if run.Status != CompensationCompensated {
		t.Fatalf("expected status compensated, got %d", run.Status)
	}
	if compensateCalls != 1 {
		t.Fatalf("expected exactly one compensation call, got %d", compensateCalls)
	}
	if compensatedRef != "ref-7" {
		t.Fatalf("expected compensation against the withhold reference, got %q", compensatedRef)
	}
	if !errors.Is(run.Cause, actErr) {
		t.Fatalf("expected the act error as cause, got %v", run.Cause)
	}
}

func TestCompensatingTransaction_RefundFailureIsPending(t *testing.T) {
	actErr := errors.New("routing failed")
	refundErr := errors.New("gateway unavailable")

	run := CompensatingTransaction{
		Withhold:   func(ctx context.Context) (string, error) { return "ref-9", nil },
		Act:        func(ctx context.Context, reference string) (string, error) { return "", actErr },
		Compensate: func(ctx context.Context, reference string) error { return refundErr },
	}.Run(context.Background())

	if run.Status != CompensationPending {
		t.Fatalf("expected status pending, got %d", run.Status)
	}
	if !errors.Is(run.Cause, actErr) {
		t.Fatalf("expected the act error as cause, got %v", run.Cause)
	}
	if !errors.Is(run.CompensateErr, refundErr) {
		t.Fatalf("expected the refund error to be reported, got %v", run.CompensateErr)
	}
	if run.Reference != "ref-9" {
		t.Fatalf("expected the withhold reference to survive for reconciliation, got %q", run.Reference)
	}
}
