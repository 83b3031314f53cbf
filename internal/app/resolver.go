/**
 * @description
 * This file contains the account resolver: the debounced, asynchronous
 * verification of a candidate recipient. Every input change advances a
 * generation counter for the sender's input scope; lookups are tagged with the
 * generation they were started under, and a result whose generation is no
 * longer current is discarded, never applied. The resolver never mutates money
 * state and is safe to call speculatively while the user is still typing.
 */

package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/payvault/transfer-service/internal/domain"
	"github.com/payvault/transfer-service/pkg/gatewayclient"
)

// ErrLookupSuperseded reports that newer input arrived while this lookup was
// debouncing or in flight. The caller must drop the result.
var ErrLookupSuperseded = errors.New("recipient lookup superseded by newer input")

// LookupClient is the directory service used to verify recipients.
type LookupClient interface {
	VerifyBankAccount(ctx context.Context, bankCode, accountNumber string) (string, error)
	LookupPlatformAccount(ctx context.Context, query string) (string, string, error)
}

// RecipientQuery is the raw input being verified.
type RecipientQuery struct {
	BankCode      string
	AccountNumber string
	PlatformQuery string
}

// Key returns the exact cache/verification key for this input. A verification
// result is only valid while this key matches the current input.
func (q RecipientQuery) Key(category domain.TransferCategory) string {
	if category == domain.CategoryPeerToPeer {
		return string(category) + ":" + q.PlatformQuery
	}
	return string(category) + ":" + q.BankCode + ":" + q.AccountNumber
}

// scopeIdleEviction is how long a sender/category scope may sit untouched
// before its generation entry is dropped. It is far past any debounce plus
// lookup timeout, so no lookup for an evicted scope can still be in flight.
const scopeIdleEviction = 30 * time.Minute

type scopeGeneration struct {
	gen     uint64
	touched time.Time
}

// Resolver performs debounced recipient verification with stale-result suppression.
type Resolver struct {
	lookup   LookupClient
	cache    NameCache
	debounce time.Duration
	timeout  time.Duration

	mu          sync.Mutex
	generations map[string]scopeGeneration
	lastSweep   time.Time
}

// NewResolver creates a resolver. The debounce window delays the remote call
// until the input has been stable for its duration; the timeout bounds each
// remote lookup.
func NewResolver(lookup LookupClient, cache NameCache, debounce, timeout time.Duration) *Resolver {
	if cache == nil {
		cache = NoopNameCache{}
	}
	return &Resolver{
		lookup:      lookup,
		cache:       cache,
		debounce:    debounce,
		timeout:     timeout,
		generations: make(map[string]scopeGeneration),
		lastSweep:   time.Now(),
	}
}

// advance registers new input for a sender/category scope and returns the
// generation token for this lookup. Scopes that have been idle past the
// eviction window are swept here so the map stays bounded by active senders.
func (r *Resolver) advance(scope string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastSweep) >= scopeIdleEviction {
		for k, v := range r.generations {
			if now.Sub(v.touched) >= scopeIdleEviction {
				delete(r.generations, k)
			}
		}
		r.lastSweep = now
	}

	entry := r.generations[scope]
	entry.gen++
	entry.touched = now
	r.generations[scope] = entry
	return entry.gen
}

// current reports whether the generation token is still the newest input.
func (r *Resolver) current(scope string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generations[scope].gen == gen
}

// Resolve verifies one candidate recipient. The raw-input self check runs
// immediately, before the debounce settles, so a self-transfer can never hide
// behind a stale verified name. All other paths wait out the debounce window
// and are discarded if newer input arrives.
func (r *Resolver) Resolve(ctx context.Context, sender domain.SenderSnapshot, category domain.TransferCategory, q RecipientQuery) (*domain.RecipientVerification, error) {
	key := q.Key(category)

	if r.selfReferential(sender, category, q) {
		return &domain.RecipientVerification{QueryKey: key, Status: domain.VerificationSelfReferential}, nil
	}

	scope := sender.OwnerID.String() + "/" + string(category)
	gen := r.advance(scope)

	timer := time.NewTimer(r.debounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	if !r.current(scope, gen) {
		return nil, ErrLookupSuperseded
	}

	if name, ok := r.cache.Get(ctx, key); ok {
		return &domain.RecipientVerification{QueryKey: key, ResolvedName: name, Status: domain.VerificationVerified}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		name       string
		platformID string
		err        error
	)
	if category == domain.CategoryPeerToPeer {
		platformID, name, err = r.lookup.LookupPlatformAccount(lookupCtx, q.PlatformQuery)
	} else {
		name, err = r.lookup.VerifyBankAccount(lookupCtx, q.BankCode, q.AccountNumber)
	}

	// An in-flight result for superseded input must never be applied.
	if !r.current(scope, gen) {
		return nil, ErrLookupSuperseded
	}

	if err != nil {
		if errors.Is(err, gatewayclient.ErrAccountNotFound) {
			return &domain.RecipientVerification{QueryKey: key, Status: domain.VerificationNotFound}, nil
		}
		// Anything else is transient: network, timeout, remote outage.
		return &domain.RecipientVerification{QueryKey: key, Status: domain.VerificationError}, nil
	}

	// Peer lookups can resolve a handle to the sender's own account.
	if platformID != "" && platformID == sender.PlatformAccountID {
		return &domain.RecipientVerification{QueryKey: key, Status: domain.VerificationSelfReferential}, nil
	}

	r.cache.Set(ctx, key, name)
	return &domain.RecipientVerification{
		QueryKey:          key,
		ResolvedName:      name,
		PlatformAccountID: platformID,
		Status:            domain.VerificationVerified,
	}, nil
}

// selfReferential compares raw input against the sender's own identity.
func (r *Resolver) selfReferential(sender domain.SenderSnapshot, category domain.TransferCategory, q RecipientQuery) bool {
	if category == domain.CategoryPeerToPeer {
		return q.PlatformQuery != "" && q.PlatformQuery == sender.PlatformAccountID
	}
	return q.AccountNumber != "" && q.AccountNumber == sender.WalletAccountNumber
}
