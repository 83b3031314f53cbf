package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/payvault/transfer-service/internal/domain"
	"github.com/payvault/transfer-service/internal/store"
	"github.com/payvault/transfer-service/pkg/gatewayclient"
)

type repoStub struct {
	store.Repository

	createErr error
	created   *domain.TransferOutcome

	found   *domain.TransferOutcome
	findErr error

	saveErr   error
	saveCalls int
	saved     *domain.SavedRecipient
}

func (s *repoStub) CreateOutcome(ctx context.Context, outcome *domain.TransferOutcome) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = outcome
	return nil
}

func (s *repoStub) FindOutcomeByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.TransferOutcome, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.found == nil {
		return nil, store.ErrOutcomeNotFound
	}
	return s.found, nil
}

func (s *repoStub) SaveRecipient(ctx context.Context, recipient *domain.SavedRecipient) (*domain.SavedRecipient, error) {
	s.saveCalls++
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.saved = recipient
	return recipient, nil
}

type gatewayStub struct {
	withholdErr    error
	routeErr       error
	refundErr      error
	withholdCalls  int
	withheldAmount int64
	withholdSecret string
	withholdKey    string
	routeExtCalls  int
	routeIntCalls  int
	refundCalls    int
	refundRef      string
	refundKey      string
}

func (g *gatewayStub) Withhold(ctx context.Context, ownerID uuid.UUID, amount int64, secret, idempotencyKey string) (string, error) {
	g.withholdCalls++
	g.withheldAmount = amount
	g.withholdSecret = secret
	g.withholdKey = idempotencyKey
	if g.withholdErr != nil {
		return "", g.withholdErr
	}
	return "hold-ref-1", nil
}

func (g *gatewayStub) RouteExternal(ctx context.Context, reference, bankCode, accountNumber, narration string) (string, error) {
	g.routeExtCalls++
	if g.routeErr != nil {
		return "", g.routeErr
	}
	return "ext-conf-1", nil
}

func (g *gatewayStub) RouteInternal(ctx context.Context, reference, platformAccountID, narration string) (string, error) {
	g.routeIntCalls++
	if g.routeErr != nil {
		return "", g.routeErr
	}
	return "int-conf-1", nil
}

func (g *gatewayStub) Refund(ctx context.Context, reference, idempotencyKey string) (string, error) {
	g.refundCalls++
	g.refundRef = reference
	g.refundKey = idempotencyKey
	if g.refundErr != nil {
		return "", g.refundErr
	}
	return "refund-conf-1", nil
}

type feeStub struct {
	fee   int64
	total int64
	err   error
}

func (f *feeStub) Compute(ctx context.Context, amount int64, category, channel string) (int64, int64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.fee, f.total, nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *publisherStub) Close() {}

func (p *publisherStub) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.routingKey)
	}
	return keys
}

func newTestService(repo *repoStub, gateway *gatewayStub, producer *publisherStub) *Service {
	return NewService(repo, gateway, &feeStub{fee: 50, total: 5050}, producer, NewValidator(100, 140, 10), "payvault.events", time.Second, 4)
}

// authorize walks the full confirmation gate so service tests exercise the
// same path the handler does.
func authorize(t *testing.T, svc *Service, req *domain.TransferRequest, sender domain.SenderSnapshot) *AuthorizedTransfer {
	t.Helper()
	gate, res := svc.BeginConfirmation(req, sender)
	if gate == nil {
		t.Fatalf("expected gate to open, got code=%s", res.Code)
	}
	if err := gate.ConfirmReview(); err != nil {
		t.Fatalf("ConfirmReview returned error: %v", err)
	}
	if err := gate.ProvideSecret("1234"); err != nil {
		t.Fatalf("ProvideSecret returned error: %v", err)
	}
	auth, err := gate.Authorized()
	if err != nil {
		t.Fatalf("Authorized returned error: %v", err)
	}
	return auth
}

func TestSubmitTransfer_ExternalBankSuccess(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)
	req.SaveRecipient = true

	repo := &repoStub{}
	gateway := &gatewayStub{}
	producer := &publisherStub{}
	svc := newTestService(repo, gateway, producer)

	outcome, err := svc.SubmitTransfer(context.Background(), sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}

	if outcome.State != domain.OutcomeSucceeded {
		t.Fatalf("expected state=%s, got %s", domain.OutcomeSucceeded, outcome.State)
	}
	if outcome.GatewayReference == nil || *outcome.GatewayReference != "hold-ref-1" {
		t.Fatalf("expected the withhold reference on the outcome, got %v", outcome.GatewayReference)
	}

	// The frozen total is what gets withheld, along with the user's secret
	// and the request-derived idempotency key.
	if gateway.withheldAmount != 5050 {
		t.Fatalf("expected the frozen total of 5050 to be withheld, got %d", gateway.withheldAmount)
	}
	if gateway.withholdSecret != "1234" {
		t.Fatalf("expected the user's secret to reach the gateway, got %q", gateway.withholdSecret)
	}
	if gateway.withholdKey != req.WithholdIdempotencyKey() {
		t.Fatalf("expected the request-derived withhold key, got %q", gateway.withholdKey)
	}
	if gateway.routeExtCalls != 1 || gateway.routeIntCalls != 0 {
		t.Fatalf("expected exactly one external routing call, got ext=%d int=%d", gateway.routeExtCalls, gateway.routeIntCalls)
	}
	if gateway.refundCalls != 0 {
		t.Fatalf("expected no refund on success, got %d", gateway.refundCalls)
	}

	if repo.created == nil || repo.created.State != domain.OutcomeSucceeded {
		t.Fatalf("expected the outcome to be persisted, got %+v", repo.created)
	}

	keys := producer.routingKeys()
	if len(keys) != 1 || keys[0] != domain.RoutingKeyOutcomeSettled {
		t.Fatalf("expected one settled event, got %v", keys)
	}

	// Opt-in recipient save happens only after success.
	if repo.saveCalls != 1 {
		t.Fatalf("expected one recipient save, got %d", repo.saveCalls)
	}
	if repo.saved.AccountName != "Jane Doe" || repo.saved.OwnerID != sender.OwnerID {
		t.Fatalf("expected the confirmed recipient to be saved, got %+v", repo.saved)
	}
}

func TestSubmitTransfer_PeerToPeerRoutesInternally(t *testing.T) {
	sender := testSender()
	req := &domain.TransferRequest{
		ID:         uuid.New(),
		OwnerID:    sender.OwnerID,
		Category:   domain.CategoryPeerToPeer,
		Amount:     1500,
		Narration:  "lunch",
		Peer:       &domain.PeerRecipient{PlatformAccountID: "acct_recipient_002", DisplayName: "Chidi N"},
		TotalDebit: 1500,
	}

	repo := &repoStub{}
	gateway := &gatewayStub{}
	svc := newTestService(repo, gateway, &publisherStub{})

	outcome, err := svc.SubmitTransfer(context.Background(), sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}
	if outcome.State != domain.OutcomeSucceeded {
		t.Fatalf("expected state=%s, got %s", domain.OutcomeSucceeded, outcome.State)
	}
	if gateway.routeIntCalls != 1 || gateway.routeExtCalls != 0 {
		t.Fatalf("expected the internal ledger rail, got ext=%d int=%d", gateway.routeExtCalls, gateway.routeIntCalls)
	}
}

func TestSubmitTransfer_WithholdFailureTakesNothing(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)
	req.SaveRecipient = true

	repo := &repoStub{}
	gateway := &gatewayStub{withholdErr: gatewayclient.ErrInsufficientFunds}
	producer := &publisherStub{}
	svc := newTestService(repo, gateway, producer)

	outcome, err := svc.SubmitTransfer(context.Background(), sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}

	if outcome.State != domain.OutcomeFailedNoDebit {
		t.Fatalf("expected state=%s, got %s", domain.OutcomeFailedNoDebit, outcome.State)
	}
	// The gateway's reason is reported verbatim.
	if outcome.FailureReason == nil || *outcome.FailureReason != gatewayclient.ErrInsufficientFunds.Error() {
		t.Fatalf("expected the gateway's failure reason verbatim, got %v", outcome.FailureReason)
	}
	if gateway.routeExtCalls != 0 || gateway.refundCalls != 0 {
		t.Fatalf("expected neither routing nor refund after a failed withhold, got route=%d refund=%d", gateway.routeExtCalls, gateway.refundCalls)
	}
	if repo.saveCalls != 0 {
		t.Fatal("expected no recipient save on failure")
	}

	keys := producer.routingKeys()
	if len(keys) != 1 || keys[0] != domain.RoutingKeyOutcomeFailed {
		t.Fatalf("expected one failed event, got %v", keys)
	}
}

func TestSubmitTransfer_RouteFailureRefundsExactlyOnce(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)
	req.SaveRecipient = true

	repo := &repoStub{}
	gateway := &gatewayStub{routeErr: gatewayclient.ErrRecipientRejected}
	svc := newTestService(repo, gateway, &publisherStub{})

	outcome, err := svc.SubmitTransfer(context.Background(), sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}

	if outcome.State != domain.OutcomeFailedAndRefunded {
		t.Fatalf("expected state=%s, got %s", domain.OutcomeFailedAndRefunded, outcome.State)
	}
	if gateway.refundCalls != 1 {
		t.Fatalf("expected exactly one refund, got %d", gateway.refundCalls)
	}
	if gateway.refundRef != "hold-ref-1" {
		t.Fatalf("expected the refund against the withhold reference, got %q", gateway.refundRef)
	}
	if gateway.refundKey != req.RefundIdempotencyKey() {
		t.Fatalf("expected the request-derived refund key, got %q", gateway.refundKey)
	}
	if repo.saveCalls != 0 {
		t.Fatal("expected no recipient save on failure")
	}
}

func TestSubmitTransfer_RefundFailureIsEscalatedNotDropped(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)

	repo := &repoStub{}
	gateway := &gatewayStub{routeErr: gatewayclient.ErrRecipientRejected, refundErr: gatewayclient.ErrGatewayUnavailable}
	producer := &publisherStub{}
	svc := newTestService(repo, gateway, producer)

	outcome, err := svc.SubmitTransfer(context.Background(), sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}

	if outcome.State != domain.OutcomeFailedRefundPending {
		t.Fatalf("expected state=%s, got %s", domain.OutcomeFailedRefundPending, outcome.State)
	}
	if outcome.GatewayReference == nil || *outcome.GatewayReference != "hold-ref-1" {
		t.Fatalf("expected the withhold reference to survive for reconciliation, got %v", outcome.GatewayReference)
	}

	keys := producer.routingKeys()
	if len(keys) != 2 || keys[0] != domain.RoutingKeyOutcomeFailed || keys[1] != domain.RoutingKeyRefundPending {
		t.Fatalf("expected a failed event plus a refund-pending escalation, got %v", keys)
	}
}

// disconnectingGateway cancels the caller's context during routing, the way a
// dropped HTTP connection does after the withhold already succeeded. Refund
// and the repo below refuse to run on a dead context, so the test observes
// whether the orchestrator detached from the inbound request.
type disconnectingGateway struct {
	gatewayStub
	cancel context.CancelFunc
}

func (g *disconnectingGateway) RouteExternal(ctx context.Context, reference, bankCode, accountNumber, narration string) (string, error) {
	g.routeExtCalls++
	g.cancel()
	return "", gatewayclient.ErrRecipientRejected
}

func (g *disconnectingGateway) Refund(ctx context.Context, reference, idempotencyKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.gatewayStub.Refund(ctx, reference, idempotencyKey)
}

type ctxCheckingRepo struct {
	repoStub
}

func (s *ctxCheckingRepo) CreateOutcome(ctx context.Context, outcome *domain.TransferOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.repoStub.CreateOutcome(ctx, outcome)
}

func TestSubmitTransfer_CallerDisconnectDoesNotStrandFunds(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &ctxCheckingRepo{}
	gateway := &disconnectingGateway{cancel: cancel}
	producer := &publisherStub{}
	svc := NewService(repo, gateway, &feeStub{fee: 50, total: 5050}, producer, NewValidator(100, 140, 10), "payvault.events", time.Second, 4)

	outcome, err := svc.SubmitTransfer(ctx, sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}

	if outcome.State != domain.OutcomeFailedAndRefunded {
		t.Fatalf("expected state=%s, got %s", domain.OutcomeFailedAndRefunded, outcome.State)
	}
	if gateway.refundCalls != 1 {
		t.Fatalf("expected the refund to run after the caller disconnected, got %d calls", gateway.refundCalls)
	}
	if repo.created == nil || repo.created.State != domain.OutcomeFailedAndRefunded {
		t.Fatalf("expected the outcome to be persisted after the caller disconnected, got %+v", repo.created)
	}
	keys := producer.routingKeys()
	if len(keys) != 1 || keys[0] != domain.RoutingKeyOutcomeFailed {
		t.Fatalf("expected the failed event to be published, got %v", keys)
	}
}

func TestSubmitTransfer_CallerDisconnectStillPersistsPendingRefund(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := &ctxCheckingRepo{}
	gateway := &disconnectingGateway{gatewayStub: gatewayStub{refundErr: gatewayclient.ErrGatewayUnavailable}, cancel: cancel}
	producer := &publisherStub{}
	svc := NewService(repo, gateway, &feeStub{fee: 50, total: 5050}, producer, NewValidator(100, 140, 10), "payvault.events", time.Second, 4)

	outcome, err := svc.SubmitTransfer(ctx, sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}

	if outcome.State != domain.OutcomeFailedRefundPending {
		t.Fatalf("expected state=%s, got %s", domain.OutcomeFailedRefundPending, outcome.State)
	}
	// The reconciler sweeps this row; it must exist even though the caller is gone.
	if repo.created == nil || repo.created.State != domain.OutcomeFailedRefundPending {
		t.Fatalf("expected the pending-refund outcome to be persisted, got %+v", repo.created)
	}
	keys := producer.routingKeys()
	if len(keys) != 2 || keys[0] != domain.RoutingKeyOutcomeFailed || keys[1] != domain.RoutingKeyRefundPending {
		t.Fatalf("expected a failed event plus a refund-pending escalation, got %v", keys)
	}
}

func TestSubmitTransfer_DuplicateRequestReturnsRecordedOutcome(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)

	prior := &domain.TransferOutcome{
		RequestID: req.ID,
		OwnerID:   sender.OwnerID,
		State:     domain.OutcomeSucceeded,
	}
	repo := &repoStub{createErr: store.ErrDuplicateOutcome, found: prior}
	svc := newTestService(repo, &gatewayStub{}, &publisherStub{})

	outcome, err := svc.SubmitTransfer(context.Background(), sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}
	if outcome != prior {
		t.Fatalf("expected the recorded outcome for a consumed request, got %+v", outcome)
	}
}

func TestSubmitTransfer_RecipientSaveFailureDoesNotAffectOutcome(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)
	req.SaveRecipient = true

	repo := &repoStub{saveErr: errors.New("recipients table unavailable")}
	svc := newTestService(repo, &gatewayStub{}, &publisherStub{})

	outcome, err := svc.SubmitTransfer(context.Background(), sender, authorize(t, svc, req, sender))
	if err != nil {
		t.Fatalf("SubmitTransfer returned error: %v", err)
	}
	if outcome.State != domain.OutcomeSucceeded {
		t.Fatalf("expected the transfer to stay successful, got %s", outcome.State)
	}
	if repo.saveCalls != 1 {
		t.Fatalf("expected the save to have been attempted, got %d calls", repo.saveCalls)
	}
}

func TestSubmitTransfer_ReValidatesBeforeAnyMoneyMoves(t *testing.T) {
	sender := testSender()
	req := externalBankRequest(sender)

	gateway := &gatewayStub{}
	svc := newTestService(&repoStub{}, gateway, &publisherStub{})

	auth := authorize(t, svc, req, sender)
	// Simulate the inputs being mutated after authorization.
	req.TotalDebit = 9999

	_, err := svc.SubmitTransfer(context.Background(), sender, auth)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if vErr.Result.Code != CodeTotalDebitMismatch {
		t.Fatalf("expected code=%s, got %s", CodeTotalDebitMismatch, vErr.Result.Code)
	}
	if gateway.withholdCalls != 0 {
		t.Fatalf("expected no gateway calls for an invalid request, got %d", gateway.withholdCalls)
	}
}

func TestSubmitTransfer_RetryAfterFailureUsesFreshIdempotencyFamily(t *testing.T) {
	sender := testSender()
	first := externalBankRequest(sender)
	retry := externalBankRequest(sender) // same inputs, new request ID

	if first.WithholdIdempotencyKey() == retry.WithholdIdempotencyKey() {
		t.Fatal("expected a new request to derive a fresh withhold key")
	}
	if first.RefundIdempotencyKey() == retry.RefundIdempotencyKey() {
		t.Fatal("expected a new request to derive a fresh refund key")
	}
	// The same request always derives the same keys, so gateway-side
	// deduplication works across redeliveries.
	if first.WithholdIdempotencyKey() != first.WithholdIdempotencyKey() {
		t.Fatal("expected key derivation to be deterministic")
	}
}

func TestQuoteFee(t *testing.T) {
	svc := NewService(&repoStub{}, &gatewayStub{}, &feeStub{fee: 25, total: 1025}, &publisherStub{}, NewValidator(100, 140, 10), "payvault.events", time.Second, 4)

	quote, err := svc.QuoteFee(context.Background(), 1000, domain.CategoryExternalBank, "instant")
	if err != nil {
		t.Fatalf("QuoteFee returned error: %v", err)
	}
	if quote.Fee != 25 || quote.TotalDebit != 1025 {
		t.Fatalf("expected the calculator's quote, got %+v", quote)
	}

	svcErr := NewService(&repoStub{}, &gatewayStub{}, &feeStub{err: errors.New("fee service down")}, &publisherStub{}, NewValidator(100, 140, 10), "payvault.events", time.Second, 4)
	if _, err := svcErr.QuoteFee(context.Background(), 1000, domain.CategoryExternalBank, "instant"); err == nil {
		t.Fatal("expected an error when the fee calculator is unavailable")
	}
}
